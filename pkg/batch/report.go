package batch

import (
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/menta2k/imagesort/internal/utils"
	"github.com/menta2k/imagesort/pkg/converter"
	"github.com/menta2k/imagesort/pkg/orientation"
)

// Entry is one processed file.
type Entry struct {
	converter.Result
	// Orientation is empty when classification failed.
	Orientation orientation.Orientation
}

// Report summarises a Process call
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    []Entry
}

func (r *Report) add(res converter.Result, o orientation.Orientation) {
	r.Entries = append(r.Entries, Entry{Result: res, Orientation: o})
}

// Count returns the number of entries with status and, if reason is not
// empty, that skip reason.
func (r *Report) Count(status converter.Status, reason converter.SkipReason) int {
	n := 0
	for _, e := range r.Entries {
		if e.Status != status {
			continue
		}
		if reason != "" && e.Reason != reason {
			continue
		}
		n++
	}
	return n
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Table renders the per-outcome counts for terminal output.
func (r *Report) Table() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	tw.SetTitle("run " + r.RunID)
	tw.AppendHeader(table.Row{"Outcome", "Files"})

	var written int64
	for _, e := range r.Entries {
		written += e.Bytes
	}

	rows := []struct {
		label  string
		status converter.Status
		reason converter.SkipReason
	}{
		{"converted", converter.StatusConverted, ""},
		{"skipped (duplicate)", converter.StatusSkipped, converter.ReasonDuplicate},
		{"skipped (too_large)", converter.StatusSkipped, converter.ReasonTooLarge},
		{"skipped (already_exists)", converter.StatusSkipped, converter.ReasonAlreadyExists},
		{"failed", converter.StatusFailed, ""},
	}
	for _, row := range rows {
		tw.AppendRow(table.Row{row.label, strconv.Itoa(r.Count(row.status, row.reason))})
	}
	tw.AppendFooter(table.Row{"written", utils.FormatFileSize(written)})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft, AlignFooter: text.AlignRight},
	})
	return tw.Render()
}
