package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/platform/textutil"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const (
	defaultHasherPrefix = "sha256:"
	auditIDPrefix       = "aud_"
	maxAuditTargetIDs   = 1000
)

// AuditLogger defines the logging contract used by the audit writer service.
type AuditLogger interface {
	Warnf(format string, args ...any)
}

// AuditSink receives a copy of every audit entry in addition to the primary repository.
type AuditSink interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
}

type auditLogService struct {
	repo     repositories.AuditLogRepository
	sinks    []AuditSink
	clock    func() time.Time
	newID    func(time.Time) string
	logger   AuditLogger
	hashSalt string
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository repositories.AuditLogRepository
	// Sinks are secondary destinations such as the relational mirror or the object archive.
	Sinks    []AuditSink
	Clock    func() time.Time
	IDGen    func(time.Time) string
	Logger   AuditLogger
	HashSalt string
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("audit log service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopAuditLogger{}
	}

	newID := deps.IDGen
	if newID == nil {
		newID = newAuditID()
	}

	sinks := make([]AuditSink, 0, len(deps.Sinks))
	for _, sink := range deps.Sinks {
		if sink != nil {
			sinks = append(sinks, sink)
		}
	}

	return &auditLogService{
		repo:     deps.Repository,
		sinks:    sinks,
		clock:    func() time.Time { return clock().UTC() },
		newID:    newID,
		logger:   logger,
		hashSalt: deps.HashSalt,
	}, nil
}

// Record persists an audit log entry to every destination after sanitising sensitive fields.
// Failures are logged and never returned so the mutation that triggered the entry still reports
// its own outcome.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	entry := s.buildEntry(record)

	group, groupCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	group.Go(func() error {
		if err := s.repo.Append(groupCtx, entry); err != nil {
			s.logger.Warnf("audit log append failed: id=%s action=%s: %v", entry.ID, entry.Action, err)
		}
		return nil
	})
	for i, sink := range s.sinks {
		group.Go(func() error {
			if err := sink.Append(groupCtx, entry); err != nil {
				s.logger.Warnf("audit sink %d append failed: id=%s action=%s: %v", i, entry.ID, entry.Action, err)
			}
			return nil
		})
	}
	_ = group.Wait()
}

// List returns one page of audit entries. Only elevated operators may browse the log.
func (s *auditLogService) List(ctx context.Context, actor Actor, filter AuditLogFilter) (domain.OffsetPage[domain.AuditLogEntry], error) {
	if err := authorize(actor); err != nil {
		return domain.OffsetPage[domain.AuditLogEntry]{}, err
	}
	if filter.Page < 0 || filter.PageSize < 0 {
		return domain.OffsetPage[domain.AuditLogEntry]{}, validationError(msgInvalidListParams, nil)
	}
	page, err := s.repo.List(ctx, repositories.AuditLogFilter{
		Actor:    strings.TrimSpace(filter.Actor),
		Action:   strings.TrimSpace(filter.Action),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
	if err != nil {
		return domain.OffsetPage[domain.AuditLogEntry]{}, fmt.Errorf("%w: list audit logs: %w", ErrOrderPersistence, err)
	}
	return page, nil
}

func (s *auditLogService) buildEntry(record AuditLogRecord) domain.AuditLogEntry {
	now := s.clock()
	occurred := record.OccurredAt
	if occurred.IsZero() {
		occurred = now
	} else {
		occurred = occurred.UTC()
	}

	entry := domain.AuditLogEntry{
		ID:            s.newID(occurred),
		Actor:         auditField(fieldActor, record.Actor),
		ActorType:     actorTypeOf(record.ActorType, record.Actor),
		Action:        auditField(fieldAction, record.Action),
		Scope:         auditField(fieldScope, record.Scope),
		TargetRef:     auditField(fieldTargetRef, record.TargetRef),
		ResolvedCount: record.ResolvedCount,
		AffectedCount: record.AffectedCount,
		Severity:      severityOf(record.Severity),
		RequestID:     auditField(fieldRequestID, record.RequestID),
		UserAgent:     auditField(fieldUserAgent, textutil.StripMarkup(record.UserAgent)),
		CreatedAt:     occurred,
	}

	if len(record.TargetIDs) > 0 {
		ids := record.TargetIDs
		if len(ids) > maxAuditTargetIDs {
			ids = ids[:maxAuditTargetIDs]
		}
		entry.TargetIDs = make([]string, 0, len(ids))
		for _, id := range ids {
			if trimmed := auditField(fieldTargetID, id); trimmed != "" {
				entry.TargetIDs = append(entry.TargetIDs, trimmed)
			}
		}
	}

	if filters := auditValues(record.Filters); len(filters) > 0 {
		entry.Filters = filters
	}
	if params := auditValues(record.Params); len(params) > 0 {
		entry.Params = params
	}

	meta := s.prepareMetadata(record.Metadata, record.SensitiveMetadataKeys)
	if len(record.TargetIDs) > maxAuditTargetIDs {
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["targetIdsTruncated"] = len(record.TargetIDs)
	}
	if len(meta) > 0 {
		entry.Metadata = meta
	}

	if ip := strings.TrimSpace(record.IPAddress); ip != "" {
		entry.IPHash = defaultHasherPrefix + s.hashString(ip)
	}

	return entry
}

func (s *auditLogService) prepareMetadata(metadata map[string]any, sensitiveKeys []string) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	sensitive := keySet(sensitiveKeys)
	result := make(map[string]any, len(metadata))
	for key, value := range metadata {
		key = auditField(fieldMetadataKey, key)
		if key == "" {
			continue
		}
		if _, ok := sensitive[strings.ToLower(key)]; ok {
			result[key] = defaultHasherPrefix + s.hashAny(value)
			continue
		}
		result[key] = auditValue(value)
	}
	return result
}

func (s *auditLogService) hashString(value string) string {
	value = strings.TrimSpace(value)
	sum := sha256.Sum256([]byte(s.hashSalt + value))
	return hex.EncodeToString(sum[:])
}

func (s *auditLogService) hashAny(value any) string {
	switch v := value.(type) {
	case string:
		return s.hashString(v)
	case fmt.Stringer:
		return s.hashString(v.String())
	case []byte:
		return s.hashString(string(v))
	default:
		// json.Marshal sorts map keys, so equal values hash equally.
		if b, err := json.Marshal(v); err == nil {
			return s.hashString(string(b))
		}
		return s.hashString(fmt.Sprintf("%T", value))
	}
}

// newAuditID returns a generator of monotonic ULIDs prefixed for audit entries.
func newAuditID() func(time.Time) string {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)
	return func(at time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		id, err := ulid.New(ulid.Timestamp(at), entropy)
		if err != nil {
			return auditIDPrefix + ulid.Make().String()
		}
		return auditIDPrefix + id.String()
	}
}

type noopAuditLogger struct{}

func (noopAuditLogger) Warnf(string, ...any) {}
