package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	pfirestore "github.com/hanko-field/orderdesk/internal/platform/firestore"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const (
	auditLogsCollection  = "auditLogs"
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

type auditLogDocument struct {
	Actor         string         `firestore:"actor"`
	ActorType     string         `firestore:"actorType"`
	Action        string         `firestore:"action"`
	Scope         string         `firestore:"scope,omitempty"`
	TargetRef     string         `firestore:"targetRef"`
	TargetIDs     []string       `firestore:"targetIds,omitempty"`
	Filters       map[string]any `firestore:"filters,omitempty"`
	Params        map[string]any `firestore:"params,omitempty"`
	Metadata      map[string]any `firestore:"metadata,omitempty"`
	ResolvedCount int            `firestore:"resolvedCount"`
	AffectedCount int            `firestore:"affectedCount"`
	IPHash        string         `firestore:"ipHash,omitempty"`
	UserAgent     string         `firestore:"userAgent,omitempty"`
	Severity      string         `firestore:"severity"`
	RequestID     string         `firestore:"requestId,omitempty"`
	CreatedAt     time.Time      `firestore:"createdAt"`
}

// AuditLogRepository persists audit entries in the auditLogs collection.
type AuditLogRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[auditLogDocument]
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection)
	return &AuditLogRepository{provider: provider, base: base}, nil
}

func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("audit log append: id is required")
	}
	doc := auditLogDocument{
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
	return r.base.Set(ctx, entry.ID, doc)
}

func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.OffsetPage[domain.AuditLogEntry], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.OffsetPage[domain.AuditLogEntry]{}, err
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultAuditPageSize
	}
	pageSize = min(pageSize, maxAuditPageSize)
	page := max(filter.Page, 1)

	query := client.Collection(auditLogsCollection).Query
	if actor := strings.TrimSpace(filter.Actor); actor != "" {
		query = query.Where("actor", "==", actor)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		query = query.Where("action", "==", action)
	}
	query = query.OrderBy("createdAt", firestore.Desc)

	total, err := countQuery(ctx, query)
	if err != nil {
		return domain.OffsetPage[domain.AuditLogEntry]{}, err
	}

	iter := query.Offset((page - 1) * pageSize).Limit(pageSize).Documents(ctx)
	defer iter.Stop()

	result := domain.OffsetPage[domain.AuditLogEntry]{Page: page, PageSize: pageSize, TotalItems: total}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.OffsetPage[domain.AuditLogEntry]{}, pfirestore.WrapError("auditLogs.list", err)
		}
		var doc auditLogDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.OffsetPage[domain.AuditLogEntry]{}, err
		}
		result.Items = append(result.Items, domain.AuditLogEntry{
			ID:            snap.Ref.ID,
			Actor:         doc.Actor,
			ActorType:     doc.ActorType,
			Action:        doc.Action,
			Scope:         doc.Scope,
			TargetRef:     doc.TargetRef,
			TargetIDs:     doc.TargetIDs,
			Filters:       doc.Filters,
			Params:        doc.Params,
			Metadata:      doc.Metadata,
			ResolvedCount: doc.ResolvedCount,
			AffectedCount: doc.AffectedCount,
			IPHash:        doc.IPHash,
			UserAgent:     doc.UserAgent,
			Severity:      doc.Severity,
			RequestID:     doc.RequestID,
			CreatedAt:     doc.CreatedAt.UTC(),
		})
	}
	result.HasNext = page*pageSize < total
	return result, nil
}
