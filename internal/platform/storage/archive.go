package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hanko-field/orderdesk/internal/domain"
)

const archiveContentType = "application/json"

// ErrObjectExists is returned by an ObjectWriter when the object was already written.
var ErrObjectExists = errors.New("storage: object already exists")

// ObjectWriter creates objects that must not exist beforehand.
type ObjectWriter interface {
	NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
}

// AuditArchive writes every audit entry as one JSON object. It is an append-only copy of the
// audit trail; objects are never rewritten.
type AuditArchive struct {
	writer ObjectWriter
	bucket string
	prefix string
}

// NewAuditArchive constructs an archive rooted at bucket/prefix.
func NewAuditArchive(writer ObjectWriter, bucket, prefix string) (*AuditArchive, error) {
	if writer == nil {
		return nil, errors.New("storage archive: writer is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage archive: bucket is required")
	}
	return &AuditArchive{
		writer: writer,
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
	}, nil
}

// Append archives entry. Re-archiving an entry that already has an object is a no-op.
func (a *AuditArchive) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if a == nil || a.writer == nil {
		return errors.New("storage archive: not initialised")
	}
	object, err := ArchiveObjectPath(a.prefix, entry.ID, entry.CreatedAt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(newArchiveRecord(entry))
	if err != nil {
		return fmt.Errorf("storage archive: marshal entry %s: %w", entry.ID, err)
	}

	w := a.writer.NewWriter(ctx, a.bucket, object, archiveContentType)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return a.writeError(object, err)
	}
	if err := w.Close(); err != nil {
		return a.writeError(object, err)
	}
	return nil
}

func (a *AuditArchive) writeError(object string, err error) error {
	if errors.Is(err, ErrObjectExists) {
		return nil
	}
	return fmt.Errorf("storage archive: write gs://%s/%s: %w", a.bucket, object, err)
}

type archiveRecord struct {
	ID            string         `json:"id"`
	Actor         string         `json:"actor"`
	ActorType     string         `json:"actorType,omitempty"`
	Action        string         `json:"action"`
	Scope         string         `json:"scope,omitempty"`
	TargetRef     string         `json:"targetRef,omitempty"`
	TargetIDs     []string       `json:"targetIds,omitempty"`
	Filters       map[string]any `json:"filters,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ResolvedCount int            `json:"resolvedCount"`
	AffectedCount int            `json:"affectedCount"`
	IPHash        string         `json:"ipHash,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
	Severity      string         `json:"severity,omitempty"`
	RequestID     string         `json:"requestId,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

func newArchiveRecord(entry domain.AuditLogEntry) archiveRecord {
	return archiveRecord{
		ID:            entry.ID,
		Actor:         entry.Actor,
		ActorType:     entry.ActorType,
		Action:        entry.Action,
		Scope:         entry.Scope,
		TargetRef:     entry.TargetRef,
		TargetIDs:     entry.TargetIDs,
		Filters:       entry.Filters,
		Params:        entry.Params,
		Metadata:      entry.Metadata,
		ResolvedCount: entry.ResolvedCount,
		AffectedCount: entry.AffectedCount,
		IPHash:        entry.IPHash,
		UserAgent:     entry.UserAgent,
		Severity:      entry.Severity,
		RequestID:     entry.RequestID,
		CreatedAt:     entry.CreatedAt.UTC(),
	}
}
