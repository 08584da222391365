package v1

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/opencampus/trail/internal/domain"
	"github.com/opencampus/trail/internal/query"
)

// AuditSearcher abstracts the query engine for handler testing.
// *query.Engine satisfies this interface.
type AuditSearcher interface {
	Search(ctx context.Context, c query.Criteria) (*query.SearchResult, error)
	ExportCSV(ctx context.Context, c query.Criteria, w io.Writer) (int, error)
}

type SearchLogsInput struct {
	Page         int    `query:"page" minimum:"1" doc:"1-indexed page number"`
	Limit        int    `query:"limit" minimum:"1" maximum:"10000" doc:"Page size (default 50)"`
	Search       string `query:"search" doc:"Free-text match over details, actor name and action"`
	Category     string `query:"category" doc:"Event category or 'all'"`
	UserType     string `query:"userType" doc:"Actor type filter"`
	Status       string `query:"status" doc:"Outcome filter"`
	ActorID      string `query:"actorId" doc:"Actor identifier filter"`
	ResourceType string `query:"resourceType" doc:"Resource type filter"`
	ResourceID   string `query:"resourceId" doc:"Resource identifier filter"`
	StartDate    string `query:"startDate" doc:"Inclusive range start (RFC 3339 or YYYY-MM-DD)"`
	EndDate      string `query:"endDate" doc:"Inclusive range end (RFC 3339 or YYYY-MM-DD)"`
}

type SearchLogsOutput struct {
	Body *query.SearchResult
}

func RegisterAuditRoutes(api huma.API, engine AuditSearcher) {
	huma.Register(api, huma.Operation{
		OperationID: "search-audit-logs",
		Method:      http.MethodGet,
		Path:        "/audit/logs",
		Summary:     "Search the audit trail",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *SearchLogsInput) (*SearchLogsOutput, error) {
		criteria, err := input.criteria()
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		result, err := engine.Search(ctx, criteria)
		if err != nil {
			// The operator asked for a report; a storage fault must surface
			// as a retryable error, unlike anything on the capture path.
			return nil, huma.Error503ServiceUnavailable("audit query failed, retry shortly", err)
		}

		return &SearchLogsOutput{Body: result}, nil
	})
}

func (in *SearchLogsInput) criteria() (query.Criteria, error) {
	c := query.Criteria{
		Page:         in.Page,
		PageSize:     in.Limit,
		Search:       in.Search,
		Category:     in.Category,
		ActorType:    in.UserType,
		Status:       in.Status,
		ActorID:      in.ActorID,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
	}

	if in.Category != "" && in.Category != "all" && !domain.Category(in.Category).Valid() {
		return c, fmt.Errorf("unknown category %q", in.Category)
	}
	if in.UserType != "" && !domain.ActorType(in.UserType).Valid() {
		return c, fmt.Errorf("unknown user type %q", in.UserType)
	}
	if in.Status != "" && !domain.Status(in.Status).Valid() {
		return c, fmt.Errorf("unknown status %q", in.Status)
	}

	start, err := parseDate(in.StartDate, false)
	if err != nil {
		return c, fmt.Errorf("invalid startDate: %w", err)
	}
	c.StartDate = start

	end, err := parseDate(in.EndDate, true)
	if err != nil {
		return c, fmt.Errorf("invalid endDate: %w", err)
	}
	c.EndDate = end

	return c, nil
}

// parseDate accepts RFC 3339 or a bare date. A bare end date is pushed to the
// end of that day so the range stays inclusive.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, errors.New("expected RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// ExportHandler streams the filtered trail as a CSV attachment. It sits
// outside huma because the payload is a fixed wire format, not JSON.
func ExportHandler(engine AuditSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		input := &SearchLogsInput{
			Search:       q.Get("search"),
			Category:     q.Get("category"),
			UserType:     q.Get("userType"),
			Status:       q.Get("status"),
			ActorID:      q.Get("actorId"),
			ResourceType: q.Get("resourceType"),
			ResourceID:   q.Get("resourceId"),
			StartDate:    q.Get("startDate"),
			EndDate:      q.Get("endDate"),
		}

		criteria, err := input.criteria()
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="audit-log-export.csv"`)

		if _, err := engine.ExportCSV(r.Context(), criteria, w); err != nil {
			// Headers may already be written; log and cut the stream.
			log.Error().Err(err).Msg("audit export failed")
		}
	}
}
