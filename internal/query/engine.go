// Package query is the read side of the audit trail: filtered, paginated
// search with summary statistics over the filtered set, and CSV export.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/opencampus/trail/internal/domain"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 10000 // also the export cap; bounds worst-case memory
)

// Criteria is the operator-facing filter request. Every field is
// independently optional; the zero value returns the whole trail newest-first.
type Criteria struct {
	ActorID      string
	ActorType    string
	Category     string // enum value or "all"
	Status       string
	ResourceType string
	ResourceID   string
	Search       string
	StartDate    *time.Time // inclusive, compared against the server-assigned timestamp
	EndDate      *time.Time // inclusive
	Page         int        // 1-indexed
	PageSize     int
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

type SearchResult struct {
	Events     []*domain.AuditEvent `json:"logs"`
	Pagination Pagination           `json:"pagination"`
	Statistics domain.Stats         `json:"statistics"`
}

type Engine struct {
	repo domain.EventRepository
}

func NewEngine(repo domain.EventRepository) *Engine {
	return &Engine{repo: repo}
}

// Search runs one filtered page plus statistics over the full filtered set.
// A page beyond totalPages is not an error: it returns an empty slice with
// accurate pagination metadata so callers detect the overrun by comparing
// page to totalPages.
func (e *Engine) Search(ctx context.Context, c Criteria) (*SearchResult, error) {
	c = c.normalized()
	filter := c.filter()

	offset := (c.Page - 1) * c.PageSize
	events, total, err := e.repo.Search(ctx, filter, c.PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query.Engine.Search: %w", err)
	}

	stats, err := e.repo.Stats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query.Engine.Search: stats: %w", err)
	}

	totalPages := (total + c.PageSize - 1) / c.PageSize

	return &SearchResult{
		Events: events,
		Pagination: Pagination{
			Page:       c.Page,
			Limit:      c.PageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    c.Page < totalPages,
			HasPrev:    c.Page > 1 && total > 0,
		},
		Statistics: *stats,
	}, nil
}

func (c Criteria) normalized() Criteria {
	if c.Page < 1 {
		c.Page = 1
	}
	if c.PageSize < 1 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	if c.Category == "all" {
		c.Category = ""
	}
	return c
}

func (c Criteria) filter() domain.Filter {
	f := domain.Filter{
		ActorType: domain.ActorType(c.ActorType),
		Category:  domain.Category(c.Category),
		Status:    domain.Status(c.Status),
		Search:    c.Search,
		Start:     c.StartDate,
		End:       c.EndDate,
	}
	if c.ActorID != "" {
		actorID := c.ActorID
		f.ActorID = &actorID
	}
	if c.ResourceType != "" {
		rt := c.ResourceType
		f.ResourceType = &rt
	}
	if c.ResourceID != "" {
		rid := c.ResourceID
		f.ResourceID = &rid
	}
	return f
}
