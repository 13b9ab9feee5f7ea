// Package reporter renders a covstore.CoverageData snapshot as text,
// JSON, Cobertura XML, HTML, or LCOV. It sits outside the engine
// proper and reads CoverageData only through the data-store's own
// exported fields.
package reporter

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/covstar/luacov/internal/luacov/covstore"
	"github.com/covstar/luacov/internal/luacov/pathkey"
)

// Reporter outputs a CoverageData snapshot to a writer.
type Reporter interface {
	Write(w io.Writer, store *covstore.CoverageData) error
}

// filePaths returns every tracked file's key, sorted, so report output
// is deterministic across runs.
func filePaths(store *covstore.CoverageData) []pathkey.Key {
	keys := make([]pathkey.Key, 0, len(store.Files))
	for k := range store.Files {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// -----------------------------------------------------------------------------
// Text Reporter
// -----------------------------------------------------------------------------

// TextReporter outputs coverage in human-readable text format.
type TextReporter struct {
	ShowMissing bool
	// Colorize enables ANSI coloring of the percentage column. The CLI
	// sets this based on golang.org/x/term's TTY detection, never
	// unconditionally, so piped/redirected output stays plain text.
	Colorize bool
}

func (r *TextReporter) Write(w io.Writer, store *covstore.CoverageData) error {
	writef(w, "Coverage Report\n")
	writef(w, "===============\n\n")

	keys := filePaths(store)

	for _, key := range keys {
		fr := store.Files[key]
		executable, covered := lineTotals(fr)
		pct := percentage(covered, executable)
		writef(w, "%-60s %s (%d/%d lines)\n",
			truncatePath(key.String(), 60),
			r.formatPct(pct),
			covered, executable,
		)
		if r.ShowMissing && covered < executable {
			missing := missingLines(fr)
			if len(missing) > 0 {
				writef(w, "  Missing: %s\n", formatLineRanges(missing))
			}
		}
	}
	writef(w, "\n")

	executable, covered := store.Summary.ExecutableLines, store.Summary.CoveredLines
	writef(w, "Total: %s (%d/%d lines)\n", r.formatPct(store.Summary.LineCoverage*100), covered, executable)
	writef(w, "Functions: %.1f%% (%d/%d)\n", store.Summary.FunctionCoverage*100,
		store.Summary.CoveredFunctions, store.Summary.TotalFunctions)
	writef(w, "Overall: %.1f%%\n", store.Summary.OverallCoverage*100)

	return nil
}

func (r *TextReporter) formatPct(pct float64) string {
	s := fmt.Sprintf("%6.1f%%", pct)
	if !r.Colorize {
		return s
	}
	switch {
	case pct >= 80:
		return "\x1b[32m" + s + "\x1b[0m"
	case pct >= 50:
		return "\x1b[33m" + s + "\x1b[0m"
	default:
		return "\x1b[31m" + s + "\x1b[0m"
	}
}

func lineTotals(fr *covstore.FileRecord) (executable, covered int) {
	for _, lr := range fr.Lines {
		if lr.Executable {
			executable++
			if lr.Covered {
				covered++
			}
		}
	}
	return
}

func missingLines(fr *covstore.FileRecord) []int {
	var missing []int
	for line, lr := range fr.Lines {
		if lr.Executable && !lr.Covered {
			missing = append(missing, line)
		}
	}
	sort.Ints(missing)
	return missing
}

func percentage(covered, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(covered) / float64(total) * 100
}

func formatLineRanges(lines []int) string {
	if len(lines) == 0 {
		return ""
	}
	var parts []string
	start, end := lines[0], lines[0]
	for i := 1; i < len(lines); i++ {
		if lines[i] == end+1 {
			end = lines[i]
		} else {
			parts = append(parts, formatRange(start, end))
			start, end = lines[i], lines[i]
		}
	}
	parts = append(parts, formatRange(start, end))
	return strings.Join(parts, ", ")
}

func formatRange(start, end int) string {
	if start == end {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d-%d", start, end)
}

func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}

// -----------------------------------------------------------------------------
// JSON Reporter
// -----------------------------------------------------------------------------

// JSONReporter outputs coverage as JSON.
type JSONReporter struct {
	Pretty bool
}

type jsonReport struct {
	Timestamp    string        `json:"timestamp"`
	TotalLines   int           `json:"total_lines"`
	CoveredLines int           `json:"covered_lines"`
	Percentage   float64       `json:"percentage"`
	Files        []jsonFileCov `json:"files"`
}

type jsonFileCov struct {
	Path         string  `json:"path"`
	TotalLines   int     `json:"total_lines"`
	CoveredLines int     `json:"covered_lines"`
	Percentage   float64 `json:"percentage"`
	Lines        []int   `json:"missing_lines,omitempty"`
}

func (r *JSONReporter) Write(w io.Writer, store *covstore.CoverageData) error {
	jr := jsonReport{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		TotalLines:   store.Summary.ExecutableLines,
		CoveredLines: store.Summary.CoveredLines,
		Percentage:   store.Summary.LineCoverage * 100,
	}

	for _, key := range filePaths(store) {
		fr := store.Files[key]
		executable, covered := lineTotals(fr)
		jr.Files = append(jr.Files, jsonFileCov{
			Path:         key.String(),
			TotalLines:   executable,
			CoveredLines: covered,
			Percentage:   percentage(covered, executable),
			Lines:        missingLines(fr),
		})
	}

	var data []byte
	var err error
	if r.Pretty {
		data, err = json.MarshalIndent(jr, "", "  ")
	} else {
		data, err = json.Marshal(jr)
	}
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
	return nil
}

// -----------------------------------------------------------------------------
// Cobertura XML Reporter
// -----------------------------------------------------------------------------

// CoberturaReporter outputs Cobertura XML, compatible with most CI
// systems (Jenkins, GitLab, etc.).
type CoberturaReporter struct {
	SourceDir string
}

type coberturaCoverage struct {
	XMLName      xml.Name          `xml:"coverage"`
	LineRate     string            `xml:"line-rate,attr"`
	BranchRate   string            `xml:"branch-rate,attr"`
	Version      string            `xml:"version,attr"`
	Timestamp    int64             `xml:"timestamp,attr"`
	LinesValid   int               `xml:"lines-valid,attr"`
	LinesCovered int               `xml:"lines-covered,attr"`
	Sources      coberturaSources  `xml:"sources"`
	Packages     coberturaPackages `xml:"packages"`
}

type coberturaSources struct {
	Source []string `xml:"source"`
}

type coberturaPackages struct {
	Package []coberturaPackage `xml:"package"`
}

type coberturaPackage struct {
	Name     string           `xml:"name,attr"`
	LineRate string           `xml:"line-rate,attr"`
	Classes  coberturaClasses `xml:"classes"`
}

type coberturaClasses struct {
	Class []coberturaClass `xml:"class"`
}

type coberturaClass struct {
	Name     string         `xml:"name,attr"`
	Filename string         `xml:"filename,attr"`
	LineRate string         `xml:"line-rate,attr"`
	Lines    coberturaLines `xml:"lines"`
}

type coberturaLines struct {
	Line []coberturaLine `xml:"line"`
}

type coberturaLine struct {
	Number int `xml:"number,attr"`
	Hits   int `xml:"hits,attr"`
}

func (r *CoberturaReporter) Write(w io.Writer, store *covstore.CoverageData) error {
	cov := coberturaCoverage{
		LineRate:     fmt.Sprintf("%.4f", store.Summary.LineCoverage),
		BranchRate:   "0",
		Version:      "1.0",
		Timestamp:    time.Now().Unix(),
		LinesValid:   store.Summary.ExecutableLines,
		LinesCovered: store.Summary.CoveredLines,
	}
	if r.SourceDir != "" {
		cov.Sources.Source = []string{r.SourceDir}
	}

	packages := map[string][]pathkey.Key{}
	for _, key := range filePaths(store) {
		dir := filepath.Dir(key.String())
		packages[dir] = append(packages[dir], key)
	}

	pkgNames := make([]string, 0, len(packages))
	for name := range packages {
		pkgNames = append(pkgNames, name)
	}
	sort.Strings(pkgNames)

	for _, pkgName := range pkgNames {
		pkg := coberturaPackage{Name: pkgName}
		var pkgTotal, pkgCovered int

		for _, key := range packages[pkgName] {
			fr := store.Files[key]
			executable, covered := lineTotals(fr)
			pkgTotal += executable
			pkgCovered += covered

			class := coberturaClass{
				Name:     filepath.Base(key.String()),
				Filename: key.String(),
				LineRate: fmt.Sprintf("%.4f", percentage(covered, executable)/100.0),
			}
			lines := make([]int, 0, len(fr.Lines))
			for line, lr := range fr.Lines {
				if lr.Executable {
					lines = append(lines, line)
				}
			}
			sort.Ints(lines)
			for _, line := range lines {
				hits := 0
				if fr.Lines[line].Covered {
					hits = fr.Lines[line].ExecutionCount
					if hits == 0 {
						hits = 1
					}
				}
				class.Lines.Line = append(class.Lines.Line, coberturaLine{Number: line, Hits: hits})
			}
			pkg.Classes.Class = append(pkg.Classes.Class, class)
		}

		if pkgTotal > 0 {
			pkg.LineRate = fmt.Sprintf("%.4f", float64(pkgCovered)/float64(pkgTotal))
		} else {
			pkg.LineRate = "1.0"
		}
		cov.Packages.Package = append(cov.Packages.Package, pkg)
	}

	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(cov); err != nil {
		return fmt.Errorf("encoding Cobertura XML: %w", err)
	}
	_, _ = w.Write([]byte("\n"))
	return nil
}

// -----------------------------------------------------------------------------
// HTML Reporter
// -----------------------------------------------------------------------------

// HTMLReporter outputs a single-file HTML report with embedded CSS.
type HTMLReporter struct {
	Title string
}

type htmlTemplateData struct {
	Title        string
	Percentage   float64
	CoveredLines int
	TotalLines   int
	FileCount    int
	Files        []htmlFileData
	Timestamp    string
}

type htmlFileData struct {
	Path         string
	Percentage   float64
	CoveredLines int
	TotalLines   int
	BadgeClass   string
	Lines        []htmlLineData
}

type htmlLineData struct {
	Number int
	Hits   int
	Class  string
}

func (r *HTMLReporter) Write(w io.Writer, store *covstore.CoverageData) error {
	title := r.Title
	if title == "" {
		title = "Coverage Report"
	}

	data := htmlTemplateData{
		Title:        title,
		Percentage:   store.Summary.LineCoverage * 100,
		CoveredLines: store.Summary.CoveredLines,
		TotalLines:   store.Summary.ExecutableLines,
		FileCount:    len(store.Files),
		Timestamp:    time.Now().Format(time.RFC1123),
	}

	for _, key := range filePaths(store) {
		fr := store.Files[key]
		executable, covered := lineTotals(fr)
		filePct := percentage(covered, executable)

		badgeClass := "badge-good"
		if filePct < 50 {
			badgeClass = "badge-bad"
		} else if filePct < 80 {
			badgeClass = "badge-warn"
		}

		fileData := htmlFileData{
			Path:         key.String(),
			Percentage:   filePct,
			CoveredLines: covered,
			TotalLines:   executable,
			BadgeClass:   badgeClass,
		}

		lines := make([]int, 0, len(fr.Lines))
		for line, lr := range fr.Lines {
			if lr.Executable {
				lines = append(lines, line)
			}
		}
		sort.Ints(lines)
		for _, line := range lines {
			lr := fr.Lines[line]
			lineClass := "line-covered"
			if !lr.Covered {
				lineClass = "line-uncovered"
			}
			fileData.Lines = append(fileData.Lines, htmlLineData{
				Number: line,
				Hits:   lr.ExecutionCount,
				Class:  lineClass,
			})
		}

		data.Files = append(data.Files, fileData)
	}

	return htmlTemplate.Execute(w, data)
}

var htmlTemplate = template.Must(template.New("coverage").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #1a1a2e; color: #eee; padding: 2rem; }
.container { max-width: 1200px; margin: 0 auto; }
.summary { background: #16213e; border-radius: 8px; padding: 1.5rem; margin-bottom: 2rem; display: flex; gap: 2rem; }
.stat-value { font-size: 2rem; font-weight: bold; }
.stat-label { color: #888; font-size: 0.875rem; }
.file { background: #16213e; border-radius: 8px; margin-bottom: 1rem; }
.file-header { padding: 1rem; display: flex; justify-content: space-between; }
.badge { padding: 0.25rem 0.75rem; border-radius: 9999px; font-size: 0.75rem; }
.badge-good { color: #4ade80; } .badge-warn { color: #fbbf24; } .badge-bad { color: #f87171; }
.line { display: flex; padding: 0 1rem; font-family: monospace; }
.line-covered { background: rgba(74,222,128,0.1); }
.line-uncovered { background: rgba(248,113,113,0.1); }
</style>
</head>
<body>
<div class="container">
<h1>{{.Title}}</h1>
<div class="summary">
  <div><div class="stat-value">{{printf "%.1f" .Percentage}}%</div><div class="stat-label">Line Coverage</div></div>
  <div><div class="stat-value">{{.CoveredLines}}</div><div class="stat-label">Lines Covered</div></div>
  <div><div class="stat-value">{{.TotalLines}}</div><div class="stat-label">Total Lines</div></div>
  <div><div class="stat-value">{{.FileCount}}</div><div class="stat-label">Files</div></div>
</div>
<div class="files">
{{range .Files}}
  <div class="file">
    <div class="file-header">
      <span>{{.Path}}</span>
      <span>{{.CoveredLines}}/{{.TotalLines}} <span class="badge {{.BadgeClass}}">{{printf "%.1f" .Percentage}}%</span></span>
    </div>
{{range .Lines}}
    <div class="line {{.Class}}"><span>{{.Number}}</span><span>{{.Hits}}x</span></div>
{{end}}
  </div>
{{end}}
</div>
<div>Generated: {{.Timestamp}}</div>
</div>
</body>
</html>
`))

// -----------------------------------------------------------------------------
// LCOV Reporter
// -----------------------------------------------------------------------------

// LCOVReporter outputs LCOV tracefile format, compatible with genhtml
// and many IDE extensions.
type LCOVReporter struct{}

func (r *LCOVReporter) Write(w io.Writer, store *covstore.CoverageData) error {
	for _, key := range filePaths(store) {
		fr := store.Files[key]

		writef(w, "TN:\n")
		writef(w, "SF:%s\n", key.String())

		fnIDs := make([]string, 0, len(fr.Functions))
		for id := range fr.Functions {
			fnIDs = append(fnIDs, id)
		}
		sort.Strings(fnIDs)

		fnHit := 0
		for _, id := range fnIDs {
			fn := fr.Functions[id]
			writef(w, "FN:%d,%s\n", fn.StartLine, fn.Name)
			writef(w, "FNDA:%d,%s\n", fn.ExecutionCount, fn.Name)
			if fn.Executed {
				fnHit++
			}
		}
		writef(w, "FNF:%d\n", len(fr.Functions))
		writef(w, "FNH:%d\n", fnHit)

		lines := make([]int, 0, len(fr.Lines))
		for line, lr := range fr.Lines {
			if lr.Executable {
				lines = append(lines, line)
			}
		}
		sort.Ints(lines)

		executable, covered := 0, 0
		for _, line := range lines {
			lr := fr.Lines[line]
			executable++
			if lr.Covered {
				covered++
			}
			writef(w, "DA:%d,%d\n", line, lr.ExecutionCount)
		}
		writef(w, "LF:%d\n", executable)
		writef(w, "LH:%d\n", covered)

		writef(w, "end_of_record\n")
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
