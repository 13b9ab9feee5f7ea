// Package summarizer recomputes every coverage percentage from
// primitive per-file counts.
package summarizer

import (
	"fmt"

	"github.com/covstar/luacov/internal/luacov/covstore"
	"github.com/covstar/luacov/internal/luacov/pathkey"
)

// Diagnostic records one summary/per-file mismatch the summarizer
// corrected; the per-file side is authoritative.
type Diagnostic struct {
	Message string
}

// Recompute walks every file in store, re-derives its primitive totals
// directly from LineRecord/FunctionRecord state, sums them into a
// fresh SummaryCounters, and replaces store.Summary wholesale; the
// recomputed summary is always authoritative, it is never merged with
// whatever the previous summary held. If the previously stored summary
// disagreed with the freshly recomputed one on any primitive count, a
// Diagnostic is returned per mismatched field.
func Recompute(store *covstore.CoverageData) []Diagnostic {
	prev := store.Summary

	var totals covstore.SummaryCounters
	totals.TotalFiles = len(store.Files)

	store.IterFiles(func(_ pathkey.Key, fr *covstore.FileRecord) {
		fileCovered := false

		for _, lr := range fr.Lines {
			if !lr.Executable {
				continue
			}
			totals.ExecutableLines++
			if lr.Executed {
				totals.ExecutedLines++
			}
			if lr.Covered {
				totals.CoveredLines++
				fileCovered = true
			}
		}

		for _, fn := range fr.Functions {
			totals.TotalFunctions++
			if fn.Executed {
				totals.ExecutedFunctions++
			}
			if fn.Covered {
				totals.CoveredFunctions++
			}
		}

		if fileCovered {
			totals.CoveredFiles++
		}
	})

	totals.LineCoverage = ratio(totals.CoveredLines, totals.ExecutableLines)
	totals.ExecutionCoverage = ratio(totals.ExecutedLines, totals.ExecutableLines)
	totals.FunctionCoverage = ratio(totals.CoveredFunctions, totals.TotalFunctions)
	totals.FileCoverage = ratio(totals.CoveredFiles, totals.TotalFiles)
	totals.OverallCoverage = 0.7*totals.LineCoverage + 0.2*totals.FunctionCoverage + 0.1*totals.FileCoverage

	diags := mismatches(prev, totals)
	store.Summary = totals
	return diags
}

// ratio returns num/den, yielding 0 instead of NaN/Inf when den is 0.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func mismatches(prev, next covstore.SummaryCounters) []Diagnostic {
	var diags []Diagnostic
	check := func(field string, before, after int) {
		if before != after {
			diags = append(diags, Diagnostic{Message: fmt.Sprintf(
				"summarizer: %s was %d, recomputed %d from per-file state; summary corrected",
				field, before, after)})
		}
	}
	check("total_files", prev.TotalFiles, next.TotalFiles)
	check("covered_files", prev.CoveredFiles, next.CoveredFiles)
	check("executable_lines", prev.ExecutableLines, next.ExecutableLines)
	check("executed_lines", prev.ExecutedLines, next.ExecutedLines)
	check("covered_lines", prev.CoveredLines, next.CoveredLines)
	check("total_functions", prev.TotalFunctions, next.TotalFunctions)
	check("executed_functions", prev.ExecutedFunctions, next.ExecutedFunctions)
	check("covered_functions", prev.CoveredFunctions, next.CoveredFunctions)
	return diags
}
