package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// AuditLogRepository stores audit entries in memory, newest last.
type AuditLogRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditLogEntry
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

func NewAuditLogRepository() *AuditLogRepository {
	return &AuditLogRepository{}
}

func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of every stored entry in append order.
func (r *AuditLogRepository) Entries() []domain.AuditLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}

func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.OffsetPage[domain.AuditLogEntry], error) {
	if err := ctx.Err(); err != nil {
		return domain.OffsetPage[domain.AuditLogEntry]{}, err
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultAuditPageSize
	}
	pageSize = min(pageSize, maxAuditPageSize)
	page := max(filter.Page, 1)

	r.mu.RLock()
	matched := make([]domain.AuditLogEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if actor := strings.TrimSpace(filter.Actor); actor != "" && entry.Actor != actor {
			continue
		}
		if action := strings.TrimSpace(filter.Action); action != "" && entry.Action != action {
			continue
		}
		matched = append(matched, entry)
	}
	r.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b domain.AuditLogEntry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	start := min((page-1)*pageSize, len(matched))
	end := min(start+pageSize, len(matched))
	return domain.OffsetPage[domain.AuditLogEntry]{
		Items:      slices.Clone(matched[start:end]),
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(matched),
		HasNext:    end < len(matched),
	}, nil
}
