package domain

import (
	"time"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// IsZero reports whether neither bound is set.
func (r RangeQuery[T]) IsZero() bool {
	return r.From == nil && r.To == nil
}

// OffsetPage is a page of results addressed by a 1-based page number.
type OffsetPage[T any] struct {
	Items      []T
	Page       int
	PageSize   int
	TotalItems int
	HasNext    bool
}

// TotalPages derives the page count from TotalItems. It returns 0 when the total is unknown.
func (p OffsetPage[T]) TotalPages() int {
	if p.PageSize <= 0 || p.TotalItems <= 0 {
		return 0
	}
	return (p.TotalItems + p.PageSize - 1) / p.PageSize
}

// Address captures a postal address snapshot.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
	Phone      *string
}

// Clone returns a deep copy of the address.
func (a *Address) Clone() *Address {
	if a == nil {
		return nil
	}
	out := *a
	out.Line2 = cloneString(a.Line2)
	out.State = cloneString(a.State)
	out.Phone = cloneString(a.Phone)
	return &out
}

// AuditLogEntry stores normalized audit information for admin use.
type AuditLogEntry struct {
	ID            string
	Actor         string
	ActorType     string
	Action        string
	Scope         string
	TargetRef     string
	TargetIDs     []string
	Filters       map[string]any
	Params        map[string]any
	Metadata      map[string]any
	ResolvedCount int
	AffectedCount int
	IPHash        string
	UserAgent     string
	Severity      string
	RequestID     string
	CreatedAt     time.Time
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
