package query_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/trail/internal/domain"
	"github.com/opencampus/trail/internal/query"
	"github.com/opencampus/trail/internal/store/memory"
)

func TestExportCSV(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("header_and_rows", func(t *testing.T) {
		t.Parallel()

		repo := memory.NewEventRepo()
		email := "dana@example.edu"
		resType := "course"
		resName := "Intro to Go"
		_, err := repo.Append(ctx, &domain.AuditEvent{
			ActorType:    domain.ActorAdmin,
			ActorName:    "Dana Admin",
			ActorEmail:   &email,
			Category:     domain.CategoryCourseContent,
			Action:       "course_published",
			Details:      "Dana Admin published Intro to Go",
			Status:       domain.StatusSuccess,
			ResourceType: &resType,
			ResourceName: &resName,
		})
		require.NoError(t, err)

		var buf bytes.Buffer
		n, err := query.NewEngine(repo).ExportCSV(ctx, query.Criteria{}, &buf)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, []string{
			"Timestamp", "User Type", "User Name", "Email", "Category",
			"Action", "Details", "Status", "Resource Type", "Resource Name",
		}, records[0])

		row := records[1]
		assert.Equal(t, "Admin", row[1])
		assert.Equal(t, "Dana Admin", row[2])
		assert.Equal(t, "dana@example.edu", row[3])
		assert.Equal(t, "Course Content", row[4])
		assert.Equal(t, "Course Published", row[5])
		assert.Equal(t, "Dana Admin published Intro to Go", row[6])
		assert.Equal(t, "Success", row[7])
		assert.Equal(t, "course", row[8])
		assert.Equal(t, "Intro to Go", row[9])
	})

	t.Run("every_field_quoted_and_quotes_doubled", func(t *testing.T) {
		t.Parallel()

		repo := memory.NewEventRepo()
		_, err := repo.Append(ctx, &domain.AuditEvent{
			ActorType: domain.ActorTeacher,
			ActorName: "Kim Nguyen",
			Category:  domain.CategoryCommunication,
			Action:    "message_sent",
			Details:   `Subject: "Welcome, everyone"`,
			Status:    domain.StatusSuccess,
		})
		require.NoError(t, err)

		var buf bytes.Buffer
		_, err = query.NewEngine(repo).ExportCSV(ctx, query.Criteria{}, &buf)
		require.NoError(t, err)
		out := buf.String()

		// Raw framing: every field wrapped in quotes even when it needs none,
		// embedded quotes doubled, CRLF row endings.
		assert.Contains(t, out, `"Timestamp","User Type",`)
		assert.Contains(t, out, `"Subject: ""Welcome, everyone"""`)
		for _, line := range strings.SplitAfter(strings.TrimRight(out, "\r\n"), "\r\n") {
			assert.True(t, strings.HasPrefix(line, `"`))
		}
		assert.True(t, strings.HasSuffix(out, "\r\n"))

		// And a conforming parser still round-trips the embedded comma+quote.
		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		assert.Equal(t, `Subject: "Welcome, everyone"`, records[1][6])
	})

	t.Run("export_honors_filter", func(t *testing.T) {
		t.Parallel()

		repo := memory.NewEventRepo()
		for _, category := range []domain.Category{
			domain.CategoryPayment, domain.CategoryPayment, domain.CategorySystem,
		} {
			_, err := repo.Append(ctx, &domain.AuditEvent{
				ActorType: domain.ActorAdmin,
				ActorName: "Dana Admin",
				Category:  category,
				Action:    "payment_completed",
				Details:   "ok",
				Status:    domain.StatusSuccess,
			})
			require.NoError(t, err)
		}

		var buf bytes.Buffer
		n, err := query.NewEngine(repo).ExportCSV(ctx, query.Criteria{Category: "payment"}, &buf)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("empty_set_still_writes_header", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := query.NewEngine(memory.NewEventRepo()).ExportCSV(ctx, query.Criteria{}, &buf)
		require.NoError(t, err)
		assert.Zero(t, n)

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Timestamp", records[0][0])
	})
}
