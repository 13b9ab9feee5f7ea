// Package luacov implements the luacov command line tool: a coverage
// report renderer that reads a coverage snapshot written by an
// instrumented Lua test run, renders it in one of several formats, and
// enforces a minimum coverage threshold, reading the
// richer per-line snapshot this engine's instrumentation produces.
package luacov

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/covstar/luacov/internal/cli"
	"github.com/covstar/luacov/internal/luacov/analyzer"
	"github.com/covstar/luacov/internal/luacov/config"
	"github.com/covstar/luacov/internal/luacov/covstore"
	"github.com/covstar/luacov/internal/luacov/eligibility"
	"github.com/covstar/luacov/internal/luacov/pathkey"
	"github.com/covstar/luacov/internal/luacov/reporter"
	"github.com/covstar/luacov/internal/luacov/source"
	"github.com/covstar/luacov/internal/luacov/summarizer"
	"github.com/covstar/luacov/internal/luacov/watchmode"
	"github.com/covstar/luacov/internal/version"
)

// Run executes luacov with the given arguments. Returns an exit code.
func Run(args []string) int {
	return RunWithIO(context.Background(), args, os.Stdin, os.Stdout, os.Stderr)
}

// RunWithIO allows custom IO for embedding/testing.
func RunWithIO(ctx context.Context, args []string, _ io.Reader, stdout, stderr io.Writer) int {
	var (
		formatFlag  string
		outputFlag  string
		minFlag     float64
		sourceFlag  string
		configFlag  string
		watchFlag   bool
		versionFlag bool
		verboseFlag bool
	)

	fs := flag.NewFlagSet("luacov", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&formatFlag, "format", "text", "output format: text, json, cobertura, html, lcov")
	fs.StringVar(&outputFlag, "o", "", "output file (default: stdout)")
	fs.Float64Var(&minFlag, "min", 0, "minimum coverage percentage (fail if below)")
	fs.StringVar(&sourceFlag, "source", "", "source directory for relative paths")
	fs.StringVar(&configFlag, "config", "", "path to luacov.toml or config.lua.sky (default: auto-discover)")
	fs.BoolVar(&watchFlag, "watch", false, "re-render the report whenever an eligible .lua file under source_dirs changes")
	fs.BoolVar(&versionFlag, "version", false, "print version and exit")
	fs.BoolVar(&verboseFlag, "v", false, "verbose output")

	fs.Usage = func() {
		cli.Writeln(stderr, "Usage: luacov [flags] <coverage-data>")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Coverage reporter for Lua code.")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Output Formats:")
		cli.Writeln(stderr, "  text      Human-readable summary (default)")
		cli.Writeln(stderr, "  json      JSON format for tooling")
		cli.Writeln(stderr, "  cobertura Cobertura XML for CI (Jenkins, GitLab, etc.)")
		cli.Writeln(stderr, "  html      Single-file HTML report")
		cli.Writeln(stderr, "  lcov      LCOV tracefile for genhtml and IDEs")
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Flags:")
		fs.PrintDefaults()
		cli.Writeln(stderr)
		cli.Writeln(stderr, "Examples:")
		cli.Writeln(stderr, "  luacov coverage.json                 # Display text report")
		cli.Writeln(stderr, "  luacov -format=cobertura -o cov.xml coverage.json")
		cli.Writeln(stderr, "  luacov -min=80 coverage.json          # Fail if < 80% coverage")
		cli.Writeln(stderr, "  luacov -watch coverage.json           # Re-render on change")
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return cli.ExitOK
		}
		return cli.ExitError
	}

	if versionFlag {
		cli.Writef(stdout, "luacov %s\n", version.String())
		return cli.ExitOK
	}

	cfg, err := loadConfig(configFlag)
	if err != nil {
		cli.Writef(stderr, "luacov: %v\n", err)
		return cli.ExitError
	}

	inputFiles := fs.Args()
	var store *covstore.CoverageData

	if len(inputFiles) == 0 {
		store = demoStore()
		if verboseFlag {
			cli.Writeln(stderr, "luacov: no input files, showing demo output")
		}
	} else {
		store, err = loadCoverageData(inputFiles[0])
		if err != nil {
			cli.Writef(stderr, "luacov: %v\n", err)
			cli.Writeln(stderr)
			cli.Writeln(stderr, "Run 'luacov --help' for more information.")
			return cli.ExitError
		}
	}

	render := func() int {
		return renderOnce(store, formatFlag, outputFlag, sourceFlag, minFlag, verboseFlag, stdout, stderr)
	}

	if !watchFlag || len(inputFiles) == 0 {
		return render()
	}

	return runWatch(ctx, inputFiles[0], cfg, render, stdout, stderr)
}

func renderOnce(store *covstore.CoverageData, formatFlag, outputFlag, sourceFlag string, minFlag float64, verbose bool, stdout, stderr io.Writer) int {
	var w io.Writer = stdout
	if outputFlag != "" {
		f, err := os.Create(outputFlag)
		if err != nil {
			cli.Writef(stderr, "luacov: %v\n", err)
			return cli.ExitError
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	var rep reporter.Reporter
	switch formatFlag {
	case "text":
		rep = &reporter.TextReporter{ShowMissing: verbose, Colorize: cli.IsTerminal(w)}
	case "json":
		rep = &reporter.JSONReporter{Pretty: true}
	case "cobertura":
		rep = &reporter.CoberturaReporter{SourceDir: sourceFlag}
	case "html":
		rep = &reporter.HTMLReporter{}
	case "lcov":
		rep = &reporter.LCOVReporter{}
	default:
		cli.Writef(stderr, "luacov: unknown format %q\n", formatFlag)
		return cli.ExitError
	}

	if err := rep.Write(w, store); err != nil {
		cli.Writef(stderr, "luacov: %v\n", err)
		return cli.ExitError
	}

	if minFlag > 0 && store.Summary.LineCoverage*100 < minFlag {
		cli.Writef(stderr, "luacov: coverage %.1f%% is below minimum %.1f%%\n",
			store.Summary.LineCoverage*100, minFlag)
		return cli.ExitBelowMinimum
	}

	return cli.ExitOK
}

func loadConfig(explicit string) (*config.Config, error) {
	if explicit != "" {
		return config.LoadConfig(explicit)
	}
	cfg, _, err := config.DiscoverConfig("")
	return cfg, err
}

// runWatch re-renders the report each time an eligible .lua file under
// cfg's source_dirs (or the current directory when none are set) is
// written or created, filtered by eligibility.Policy. The coverage file
// itself is not watched, and every re-render shows the snapshot loaded
// at startup; covPath is not read again.
func runWatch(ctx context.Context, covPath string, cfg *config.Config, render func() int, stdout, stderr io.Writer) int {
	policy := eligibility.Policy{
		Include:          cfg.Include,
		Exclude:          cfg.Exclude,
		SourceDirs:       cfg.SourceDirs,
		TrackAllExecuted: true,
		SourceSuffix:     ".lua",
	}

	w, err := watchmode.New(policy)
	if err != nil {
		cli.Writef(stderr, "luacov: %v\n", err)
		return cli.ExitError
	}
	defer func() { _ = w.Close() }()

	roots := cfg.SourceDirs
	if len(roots) == 0 {
		roots = []string{"."}
	}
	for _, root := range roots {
		if err := w.AddRoot(root); err != nil {
			cli.Writef(stderr, "luacov: watching %s: %v\n", root, err)
		}
	}

	cli.Writeln(stderr, "luacov: watching for changes (ctrl-c to stop)")
	code := render()

	for {
		select {
		case <-ctx.Done():
			return code
		case evt, ok := <-w.Events:
			if !ok {
				return code
			}
			cli.Writef(stderr, "luacov: %s changed, re-rendering\n", evt.File)
			code = render()
		case err, ok := <-w.Errors:
			if !ok {
				return code
			}
			cli.Writef(stderr, "luacov: watch error: %v\n", err)
		}
	}
}

// demoStore creates a sample CoverageData to demonstrate output
// formats when no coverage file is given.
func demoStore() *covstore.CoverageData {
	store := covstore.Create()

	load := func(path string, lineCount int) pathkey.Key {
		key := pathkey.MustNormalize(path)
		buf := source.New([]byte(strings.Repeat("x\n", lineCount)))
		store.InitializeFile(key, buf)
		for line := 1; line <= lineCount; line++ {
			store.SetLineClassification(key, line, analyzer.Code, true)
		}
		return key
	}

	mathKey := load("src/math.lua", 20)
	for line := 1; line <= 20; line++ {
		store.MarkLineExecuted(mathKey, line)
		_ = store.MarkLineCovered(mathKey, line)
	}

	utilsKey := load("src/utils.lua", 10)
	for line := 1; line <= 7; line++ {
		store.MarkLineExecuted(utilsKey, line)
		_ = store.MarkLineCovered(utilsKey, line)
	}

	legacyKey := load("src/legacy.lua", 15)
	for _, line := range []int{1, 2} {
		store.MarkLineExecuted(legacyKey, line)
		_ = store.MarkLineCovered(legacyKey, line)
	}

	summarizer.Recompute(store)
	return store
}

// rawSnapshot is the coverage-data wire format a Lua test runner
// writes: per-file, per-line execution counts, keyed by line number as
// a string (encoding/json requires string map keys).
type rawSnapshot struct {
	Files map[string]rawFile `json:"files"`
}

type rawFile struct {
	Lines map[string]int `json:"lines"`
}

// loadCoverageData loads a coverage snapshot written by an
// instrumented Lua test run and replays it into a CoverageData so the
// reporters can render it.
func loadCoverageData(path string) (*covstore.CoverageData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	store := covstore.Create()
	for filePath, fileData := range raw.Files {
		key, err := pathkey.Normalize(filePath)
		if err != nil {
			continue
		}

		maxLine := 0
		for lineStr := range fileData.Lines {
			n, err := strconv.Atoi(lineStr)
			if err != nil || n <= 0 {
				continue
			}
			if n > maxLine {
				maxLine = n
			}
		}
		if maxLine == 0 {
			continue
		}

		buf := source.New([]byte(strings.Repeat("x\n", maxLine)))
		store.InitializeFile(key, buf)
		for line := 1; line <= maxLine; line++ {
			store.SetLineClassification(key, line, analyzer.Code, true)
		}

		for lineStr, hits := range fileData.Lines {
			line, err := strconv.Atoi(lineStr)
			if err != nil || line <= 0 {
				continue
			}
			for i := 0; i < hits; i++ {
				store.MarkLineExecuted(key, line)
			}
			if hits > 0 {
				_ = store.MarkLineCovered(key, line)
			}
		}
	}

	summarizer.Recompute(store)
	return store, nil
}
