package luacov

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := RunWithIO(context.Background(), []string{"-version"}, nil, &stdout, &stderr)

	if code != 0 {
		t.Errorf("RunWithIO(-version) returned %d, want 0", code)
	}
	if stdout.Len() == 0 {
		t.Error("RunWithIO(-version) produced no output")
	}
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := RunWithIO(context.Background(), []string{"-help"}, nil, &stdout, &stderr)

	if code != 0 {
		t.Errorf("RunWithIO(-help) returned %d, want 0", code)
	}
}

func TestRun_DemoMode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := RunWithIO(context.Background(), nil, nil, &stdout, &stderr)

	if code != 0 {
		t.Errorf("RunWithIO() returned %d, want 0\nstderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "src/math.lua") {
		t.Errorf("demo output missing sample file: %s", stdout.String())
	}
}

func TestRun_CoverageReport(t *testing.T) {
	dir := t.TempDir()

	covFile := filepath.Join(dir, "coverage.json")
	covContent := `{
  "files": {
    "lib.lua": {
      "lines": {
        "1": 5,
        "2": 5,
        "3": 3,
        "4": 3,
        "5": 0
      }
    }
  }
}`
	if err := os.WriteFile(covFile, []byte(covContent), 0644); err != nil {
		t.Fatalf("failed to write coverage file: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := RunWithIO(context.Background(), []string{covFile}, nil, &stdout, &stderr)

	if code != 0 {
		t.Errorf("RunWithIO(coverage) returned %d, want 0\nstderr: %s", code, stderr.String())
	}

	output := stdout.String()
	if !strings.Contains(output, "Total:") {
		t.Errorf("output does not contain coverage info\noutput: %s", output)
	}
}

func TestRun_CoverageOutputFormats(t *testing.T) {
	dir := t.TempDir()

	covFile := filepath.Join(dir, "coverage.json")
	covContent := `{"files":{"lib.lua":{"lines":{"1":5,"2":5}}}}`
	if err := os.WriteFile(covFile, []byte(covContent), 0644); err != nil {
		t.Fatalf("failed to write coverage file: %v", err)
	}

	formats := []struct {
		name string
		flag string
	}{
		{"text", "text"},
		{"json", "json"},
		{"cobertura", "cobertura"},
		{"html", "html"},
		{"lcov", "lcov"},
	}

	for _, tc := range formats {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := RunWithIO(context.Background(), []string{"-format=" + tc.flag, covFile}, nil, &stdout, &stderr)
			if code != 0 {
				t.Errorf("RunWithIO(-format=%s) returned %d, want 0\nstderr: %s", tc.flag, code, stderr.String())
			}
			if stdout.Len() == 0 {
				t.Errorf("RunWithIO(-format=%s) produced no output", tc.flag)
			}
		})
	}
}

func TestRun_BelowMinimum(t *testing.T) {
	dir := t.TempDir()

	covFile := filepath.Join(dir, "coverage.json")
	covContent := `{"files":{"lib.lua":{"lines":{"1":1,"2":0}}}}`
	if err := os.WriteFile(covFile, []byte(covContent), 0644); err != nil {
		t.Fatalf("failed to write coverage file: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := RunWithIO(context.Background(), []string{"-min=90", covFile}, nil, &stdout, &stderr)

	if code != 2 {
		t.Errorf("RunWithIO(-min=90) returned %d, want 2\nstderr: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "below minimum") {
		t.Errorf("stderr missing below-minimum message: %s", stderr.String())
	}
}

func TestRun_OutputFile(t *testing.T) {
	dir := t.TempDir()

	covFile := filepath.Join(dir, "coverage.json")
	if err := os.WriteFile(covFile, []byte(`{"files":{"lib.lua":{"lines":{"1":1}}}}`), 0644); err != nil {
		t.Fatalf("failed to write coverage file: %v", err)
	}
	outFile := filepath.Join(dir, "out.txt")

	var stdout, stderr bytes.Buffer
	code := RunWithIO(context.Background(), []string{"-o", outFile, covFile}, nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("RunWithIO(-o) returned %d, want 0\nstderr: %s", code, stderr.String())
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	if !strings.Contains(string(data), "lib.lua") {
		t.Errorf("output file missing report content: %s", data)
	}
}
