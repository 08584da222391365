package v1_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/opencampus/trail/internal/api/v1"
	"github.com/opencampus/trail/internal/domain"
	"github.com/opencampus/trail/internal/query"
)

type mockSearcher struct {
	searchFunc func(ctx context.Context, c query.Criteria) (*query.SearchResult, error)
	exportFunc func(ctx context.Context, c query.Criteria, w io.Writer) (int, error)

	lastCriteria query.Criteria
}

func (m *mockSearcher) Search(ctx context.Context, c query.Criteria) (*query.SearchResult, error) {
	m.lastCriteria = c
	if m.searchFunc != nil {
		return m.searchFunc(ctx, c)
	}
	return &query.SearchResult{
		Events:     []*domain.AuditEvent{},
		Pagination: query.Pagination{Page: 1, Limit: query.DefaultPageSize},
	}, nil
}

func (m *mockSearcher) ExportCSV(ctx context.Context, c query.Criteria, w io.Writer) (int, error) {
	m.lastCriteria = c
	if m.exportFunc != nil {
		return m.exportFunc(ctx, c, w)
	}
	_, err := io.WriteString(w, "\"Timestamp\"\r\n")
	return 0, err
}

func TestSearchLogs(t *testing.T) {
	t.Parallel()

	t.Run("passes_filters_through", func(t *testing.T) {
		t.Parallel()

		searcher := &mockSearcher{}
		_, api := humatest.New(t)
		v1.RegisterAuditRoutes(api, searcher)

		resp := api.Get("/audit/logs?page=2&limit=25&category=payment&userType=admin&status=failure&search=refund")
		require.Equal(t, http.StatusOK, resp.Code)

		c := searcher.lastCriteria
		assert.Equal(t, 2, c.Page)
		assert.Equal(t, 25, c.PageSize)
		assert.Equal(t, "payment", c.Category)
		assert.Equal(t, "admin", c.ActorType)
		assert.Equal(t, "failure", c.Status)
		assert.Equal(t, "refund", c.Search)
	})

	t.Run("bare_dates_make_an_inclusive_range", func(t *testing.T) {
		t.Parallel()

		searcher := &mockSearcher{}
		_, api := humatest.New(t)
		v1.RegisterAuditRoutes(api, searcher)

		resp := api.Get("/audit/logs?startDate=2026-08-01&endDate=2026-08-31")
		require.Equal(t, http.StatusOK, resp.Code)

		c := searcher.lastCriteria
		require.NotNil(t, c.StartDate)
		require.NotNil(t, c.EndDate)
		assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), *c.StartDate)
		// End of the last day, so events stamped during it still match.
		assert.Equal(t, 31, c.EndDate.Day())
		assert.Equal(t, 23, c.EndDate.Hour())
	})

	t.Run("unknown_category_is_422", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterAuditRoutes(api, &mockSearcher{})

		resp := api.Get("/audit/logs?category=billing")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("bad_date_is_422", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterAuditRoutes(api, &mockSearcher{})

		resp := api.Get("/audit/logs?startDate=31-08-2026")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("engine_failure_is_503", func(t *testing.T) {
		t.Parallel()

		searcher := &mockSearcher{
			searchFunc: func(context.Context, query.Criteria) (*query.SearchResult, error) {
				return nil, domain.ErrStorageUnavailable
			},
		}
		_, api := humatest.New(t)
		v1.RegisterAuditRoutes(api, searcher)

		resp := api.Get("/audit/logs")
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})
}

func TestExportHandler(t *testing.T) {
	t.Parallel()

	t.Run("csv_attachment", func(t *testing.T) {
		t.Parallel()

		handler := v1.ExportHandler(&mockSearcher{})
		rw := httptest.NewRecorder()
		handler.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/audit/logs/export?category=payment", nil))

		require.Equal(t, http.StatusOK, rw.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rw.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="audit-log-export.csv"`, rw.Header().Get("Content-Disposition"))
		assert.Contains(t, rw.Body.String(), "Timestamp")
	})

	t.Run("invalid_filter_is_422", func(t *testing.T) {
		t.Parallel()

		handler := v1.ExportHandler(&mockSearcher{})
		rw := httptest.NewRecorder()
		handler.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/audit/logs/export?status=meh", nil))

		assert.Equal(t, http.StatusUnprocessableEntity, rw.Code)
	})

	t.Run("export_error_does_not_panic", func(t *testing.T) {
		t.Parallel()

		searcher := &mockSearcher{
			exportFunc: func(_ context.Context, _ query.Criteria, w io.Writer) (int, error) {
				return 0, errors.New("stream cut")
			},
		}
		rw := httptest.NewRecorder()
		require.NotPanics(t, func() {
			v1.ExportHandler(searcher).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/audit/logs/export", nil))
		})
	})
}
