package query

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/opencampus/trail/internal/domain"
)

// exportColumns is the fixed CSV header, in contract order.
var exportColumns = []string{
	"Timestamp", "User Type", "User Name", "Email", "Category",
	"Action", "Details", "Status", "Resource Type", "Resource Name",
}

const exportTimeLayout = "2006-01-02 15:04:05"

// ExportCSV streams the filtered set as CSV, capped at MaxPageSize rows in
// one bounded call. Every field is wrapped in double quotes with embedded
// quotes doubled; spreadsheet tools depend on this exact quoting, so it is
// written by hand rather than left to encoding/csv's quote-when-needed rules.
func (e *Engine) ExportCSV(ctx context.Context, c Criteria, w io.Writer) (int, error) {
	c.Page = 1
	c.PageSize = MaxPageSize
	c = c.normalized()

	events, _, err := e.repo.Search(ctx, c.filter(), c.PageSize, 0)
	if err != nil {
		return 0, fmt.Errorf("query.Engine.ExportCSV: %w", err)
	}

	if err := writeCSVRow(w, exportColumns); err != nil {
		return 0, err
	}

	for i, ev := range events {
		if err := writeCSVRow(w, exportRow(ev)); err != nil {
			return i, err
		}
	}
	return len(events), nil
}

func exportRow(e *domain.AuditEvent) []string {
	return []string{
		e.Timestamp.Local().Format(exportTimeLayout),
		domain.HumanizeAction(string(e.ActorType)),
		e.ActorName,
		strDeref(e.ActorEmail),
		domain.HumanizeAction(string(e.Category)),
		domain.HumanizeAction(e.Action),
		e.Details,
		domain.HumanizeAction(string(e.Status)),
		strDeref(e.ResourceType),
		strDeref(e.ResourceName),
	}
}

func writeCSVRow(w io.Writer, fields []string) error {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteString("\r\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("query.Engine.ExportCSV: write: %w", err)
	}
	return nil
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
