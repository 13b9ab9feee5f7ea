package reporter

import (
	"bytes"
	"strings"
	"testing"

	"github.com/covstar/luacov/internal/luacov/analyzer"
	"github.com/covstar/luacov/internal/luacov/covstore"
	"github.com/covstar/luacov/internal/luacov/pathkey"
	"github.com/covstar/luacov/internal/luacov/source"
	"github.com/covstar/luacov/internal/luacov/summarizer"
)

func sampleStore(t *testing.T) *covstore.CoverageData {
	t.Helper()
	store := covstore.Create()
	key := pathkey.MustNormalize("src/math.lua")
	buf := source.New([]byte("local function add(a, b)\n  return a + b\nend\nreturn add(1, 2)\n"))
	store.InitializeFile(key, buf)
	for _, line := range []int{1, 2, 3, 4} {
		store.SetLineClassification(key, line, analyzer.Code, true)
	}
	store.MarkLineExecuted(key, 1)
	store.MarkLineExecuted(key, 2)
	store.MarkLineExecuted(key, 4)
	if err := store.MarkLineCovered(key, 1); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkLineCovered(key, 2); err != nil {
		t.Fatal(err)
	}
	summarizer.Recompute(store)
	return store
}

func TestTextReporterWrite(t *testing.T) {
	store := sampleStore(t)
	var buf bytes.Buffer
	r := &TextReporter{ShowMissing: true}
	if err := r.Write(&buf, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "src/math.lua") {
		t.Errorf("output missing file path: %s", out)
	}
	if !strings.Contains(out, "Missing: 3-4") {
		t.Errorf("output missing uncovered-line hint: %s", out)
	}
}

func TestJSONReporterWrite(t *testing.T) {
	store := sampleStore(t)
	var buf bytes.Buffer
	r := &JSONReporter{Pretty: false}
	if err := r.Write(&buf, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"path":"src/math.lua"`) {
		t.Errorf("JSON output missing file entry: %s", buf.String())
	}
}

func TestLCOVReporterWrite(t *testing.T) {
	store := sampleStore(t)
	var buf bytes.Buffer
	r := &LCOVReporter{}
	if err := r.Write(&buf, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"SF:src/math.lua", "DA:1,1", "LF:4", "LH:2", "end_of_record"} {
		if !strings.Contains(out, want) {
			t.Errorf("LCOV output missing %q:\n%s", want, out)
		}
	}
}

func TestCoberturaReporterWrite(t *testing.T) {
	store := sampleStore(t)
	var buf bytes.Buffer
	r := &CoberturaReporter{SourceDir: "src"}
	if err := r.Write(&buf, store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "<coverage") {
		t.Errorf("Cobertura output missing root element: %s", buf.String())
	}
}
