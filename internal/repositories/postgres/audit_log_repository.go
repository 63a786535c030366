package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	domain "github.com/hanko-field/orderdesk/internal/domain"
	"github.com/hanko-field/orderdesk/internal/repositories"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// auditLogRow mirrors domain.AuditLogEntry. Maps and id lists are stored as JSON text.
type auditLogRow struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)"`
	Actor         string    `gorm:"type:varchar(128);not null;index"`
	ActorType     string    `gorm:"type:varchar(32);not null"`
	Action        string    `gorm:"type:varchar(64);not null;index"`
	Scope         string    `gorm:"type:varchar(32)"`
	TargetRef     string    `gorm:"type:varchar(256)"`
	TargetIDs     string    `gorm:"type:text"`
	Filters       string    `gorm:"type:text"`
	Params        string    `gorm:"type:text"`
	Metadata      string    `gorm:"type:text"`
	ResolvedCount int       `gorm:"not null"`
	AffectedCount int       `gorm:"not null"`
	IPHash        string    `gorm:"type:varchar(80)"`
	UserAgent     string    `gorm:"type:varchar(256)"`
	Severity      string    `gorm:"type:varchar(16);not null"`
	RequestID     string    `gorm:"type:varchar(64)"`
	CreatedAt     time.Time `gorm:"not null;index"`
}

func (auditLogRow) TableName() string { return "order_audit_logs" }

// AuditLogRepository stores audit entries in Postgres through gorm.
type AuditLogRepository struct {
	db *gorm.DB
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)

// PoolOption tunes the underlying connection pool.
type PoolOption func(*poolSettings)

type poolSettings struct {
	maxOpen     int
	maxLifetime time.Duration
}

// WithMaxOpenConns bounds the number of open connections. Non-positive values keep the driver default.
func WithMaxOpenConns(n int) PoolOption {
	return func(s *poolSettings) {
		s.maxOpen = n
	}
}

// WithConnMaxLifetime recycles connections older than d.
func WithConnMaxLifetime(d time.Duration) PoolOption {
	return func(s *poolSettings) {
		s.maxLifetime = d
	}
}

// Open connects to the DSN and migrates the audit table.
func Open(ctx context.Context, dsn string, opts ...PoolOption) (*AuditLogRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres audit: dsn is required")
	}
	var pool poolSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&pool)
		}
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("postgres audit: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres audit: pool: %w", err)
	}
	if pool.maxOpen > 0 {
		sqlDB.SetMaxOpenConns(pool.maxOpen)
	}
	if pool.maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.maxLifetime)
	}
	if err := db.WithContext(ctx).AutoMigrate(&auditLogRow{}); err != nil {
		return nil, fmt.Errorf("postgres audit: migrate: %w", err)
	}
	return NewAuditLogRepository(db)
}

func NewAuditLogRepository(db *gorm.DB) (*AuditLogRepository, error) {
	if db == nil {
		return nil, errors.New("postgres audit: db is required")
	}
	return &AuditLogRepository{db: db}, nil
}

func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	row, err := newAuditLogRow(entry)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("postgres audit: append: %w", err)
	}
	return nil
}

func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.OffsetPage[domain.AuditLogEntry], error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&auditLogRow{})
		if actor := strings.TrimSpace(filter.Actor); actor != "" {
			q = q.Where("actor = ?", actor)
		}
		if action := strings.TrimSpace(filter.Action); action != "" {
			q = q.Where("action = ?", action)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return domain.OffsetPage[domain.AuditLogEntry]{}, fmt.Errorf("postgres audit: count: %w", err)
	}

	limit := filter.PageSize
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	page := max(filter.Page, 1)

	var rows []auditLogRow
	if err := scoped().Order("created_at DESC").Order("id DESC").Limit(limit).Offset((page - 1) * limit).Find(&rows).Error; err != nil {
		return domain.OffsetPage[domain.AuditLogEntry]{}, fmt.Errorf("postgres audit: list: %w", err)
	}

	result := domain.OffsetPage[domain.AuditLogEntry]{
		Items:      make([]domain.AuditLogEntry, 0, len(rows)),
		Page:       page,
		PageSize:   limit,
		TotalItems: int(total),
		HasNext:    int64(page*limit) < total,
	}
	for _, row := range rows {
		entry, err := row.toDomain()
		if err != nil {
			return domain.OffsetPage[domain.AuditLogEntry]{}, err
		}
		result.Items = append(result.Items, entry)
	}
	return result, nil
}

// Ping checks the connection for readiness probes.
func (r *AuditLogRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (r *AuditLogRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newAuditLogRow(entry domain.AuditLogEntry) (auditLogRow, error) {
	row := auditLogRow{
		ID:            entry.ID,
		Actor:         entry.Actor,
		ActorType:     entry.ActorType,
		Action:        entry.Action,
		Scope:         entry.Scope,
		TargetRef:     entry.TargetRef,
		ResolvedCount: entry.ResolvedCount,
		AffectedCount: entry.AffectedCount,
		IPHash:        entry.IPHash,
		UserAgent:     entry.UserAgent,
		Severity:      entry.Severity,
		RequestID:     entry.RequestID,
		CreatedAt:     entry.CreatedAt.UTC(),
	}
	var err error
	if row.TargetIDs, err = encodeJSON(entry.TargetIDs); err != nil {
		return auditLogRow{}, err
	}
	if row.Filters, err = encodeJSON(entry.Filters); err != nil {
		return auditLogRow{}, err
	}
	if row.Params, err = encodeJSON(entry.Params); err != nil {
		return auditLogRow{}, err
	}
	if row.Metadata, err = encodeJSON(entry.Metadata); err != nil {
		return auditLogRow{}, err
	}
	return row, nil
}

func (r auditLogRow) toDomain() (domain.AuditLogEntry, error) {
	entry := domain.AuditLogEntry{
		ID:            r.ID,
		Actor:         r.Actor,
		ActorType:     r.ActorType,
		Action:        r.Action,
		Scope:         r.Scope,
		TargetRef:     r.TargetRef,
		ResolvedCount: r.ResolvedCount,
		AffectedCount: r.AffectedCount,
		IPHash:        r.IPHash,
		UserAgent:     r.UserAgent,
		Severity:      r.Severity,
		RequestID:     r.RequestID,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if err := decodeJSON(r.TargetIDs, &entry.TargetIDs); err != nil {
		return domain.AuditLogEntry{}, err
	}
	if err := decodeJSON(r.Filters, &entry.Filters); err != nil {
		return domain.AuditLogEntry{}, err
	}
	if err := decodeJSON(r.Params, &entry.Params); err != nil {
		return domain.AuditLogEntry{}, err
	}
	if err := decodeJSON(r.Metadata, &entry.Metadata); err != nil {
		return domain.AuditLogEntry{}, err
	}
	return entry, nil
}

func encodeJSON(value any) (string, error) {
	switch v := value.(type) {
	case []string:
		if len(v) == 0 {
			return "", nil
		}
	case map[string]any:
		if len(v) == 0 {
			return "", nil
		}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("postgres audit: encode: %w", err)
	}
	return string(raw), nil
}

func decodeJSON(raw string, target any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("postgres audit: decode: %w", err)
	}
	return nil
}
