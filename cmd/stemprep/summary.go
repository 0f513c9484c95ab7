package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"stemprep/internal/pipeline"
)

// printSummary renders one row per file followed by the batch totals.
func printSummary(w io.Writer, r *pipeline.BatchReport) {
	outputHeader := "Output"
	if r.DryRun {
		outputHeader = "Planned"
	}

	rows := make([][]string, 0, len(r.Files))
	var written int64
	for _, f := range r.Files {
		outcome := string(f.Outcome)
		if f.Skipped {
			outcome += " (skipped)"
		}
		output := "-"
		if f.Output != "" {
			output = filepath.Base(f.Output)
		}
		size := "-"
		if f.Bytes > 0 {
			size = humanize.Bytes(uint64(f.Bytes))
			if !f.Skipped && !r.DryRun {
				written += f.Bytes
			}
		}
		rows = append(rows, []string{
			filepath.Base(f.Source),
			output,
			outcome,
			problems(f),
			size,
			f.Duration.Round(10 * time.Millisecond).String(),
		})
	}

	fmt.Fprintln(w, renderTable(
		[]string{"Source", outputHeader, "Outcome", "Problems", "Size", "Time"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))

	fmt.Fprintf(w, "%d files: %d success, %d partial, %d failed, %d skipped; %d identified\n",
		r.Total, r.Success, r.Partial, r.Failed, r.Skipped, r.Matched())
	if r.DryRun {
		fmt.Fprintf(w, "Dry run: nothing written (%s)\n", r.Elapsed.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "Wrote %s in %s (run %s)\n", humanize.Bytes(uint64(written)), r.Elapsed.Round(time.Millisecond), r.RunID)
}

// problems lists the distinct error kinds of a file.
func problems(f pipeline.FileReport) string {
	if len(f.Errors) == 0 {
		return ""
	}
	seen := map[string]bool{}
	var kinds []string
	for _, e := range f.Errors {
		k := string(e.Kind)
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return strings.Join(kinds, ", ")
}
