// Package engine wires the path normalizer, parser, analyzer, data
// store, tracker, instrumenter, patch-up pass, summarizer, and error
// translator into one explicit entry point: New(config).Start()
// returns a handle, and nothing runs at import time. Package init()
// registers no global state and installs no hooks; every side effect
// happens inside Start/PrepareFile/Stop.
package engine

import (
	"os"
	"path/filepath"
	"time"

	"github.com/covstar/luacov/internal/luacov/analyzer"
	"github.com/covstar/luacov/internal/luacov/cache"
	"github.com/covstar/luacov/internal/luacov/comments"
	"github.com/covstar/luacov/internal/luacov/config"
	"github.com/covstar/luacov/internal/luacov/covstore"
	"github.com/covstar/luacov/internal/luacov/eligibility"
	"github.com/covstar/luacov/internal/luacov/errs"
	"github.com/covstar/luacov/internal/luacov/errtranslate"
	"github.com/covstar/luacov/internal/luacov/instrumenter"
	"github.com/covstar/luacov/internal/luacov/luasyntax"
	"github.com/covstar/luacov/internal/luacov/patchup"
	"github.com/covstar/luacov/internal/luacov/pathkey"
	"github.com/covstar/luacov/internal/luacov/source"
	"github.com/covstar/luacov/internal/luacov/summarizer"
	"github.com/covstar/luacov/internal/luacov/tracker"
)

// denylist is the coverage engine's own module paths, matched as exact
// file keys: the
// mode selector must never instrument these, or a test run would
// instrument the tracking calls themselves.
var denylist = map[pathkey.Key]bool{
	pathkey.MustNormalize("luacov/runtime.lua"): true,
}

// Engine is the handle returned by New(...).Start(). It owns the
// CoverageData store exclusively for the run's lifetime.
type Engine struct {
	cfg       *config.Config
	policy    eligibility.Policy
	store     *covstore.CoverageData
	cache     *cache.Cache
	errs      *errtranslate.Registry
	selector  tracker.Selector
	callbacks *tracker.Callbacks
	hook      *tracker.Hook

	diskCache *diskCache
	started   bool
	stopped   bool
}

// New builds an Engine from cfg. No I/O happens here; PrepareFile and
// Start perform all filesystem and store work.
func New(cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	policy := eligibility.Policy{
		Include:          cfg.Include,
		Exclude:          cfg.Exclude,
		SourceDirs:       cfg.SourceDirs,
		TrackAllExecuted: cfg.TrackAllExecuted,
		SourceSuffix:     ".lua",
	}
	selector := tracker.NewSelector(denylist)
	if cfg.Instrumentation.MaxFileSize > 0 {
		selector.MaxFileSize = cfg.Instrumentation.MaxFileSize
	}
	return &Engine{
		cfg:      cfg,
		policy:   policy,
		selector: selector,
	}
}

// Start allocates the store and tracker callbacks and returns the
// handle itself for chaining. Calling Start twice is a no-op.
func (e *Engine) Start() *Engine {
	if e.started {
		return e
	}
	e.store = covstore.Create()
	e.cache = cache.New()
	e.errs = errtranslate.NewRegistry()
	e.callbacks = tracker.NewCallbacks(e.store)
	e.hook = tracker.NewHook(e.callbacks, e.policy)
	if e.cfg.Instrumentation.CacheEnabled {
		e.diskCache = newDiskCache(filepath.Join(os.TempDir(), "luacov-cache"))
	}
	e.started = true
	return e
}

// Callbacks exposes the tracker callback surface for instrumented code
// to call (activate_file/track_line/track_function/track_block/
// track_condition/register_hook_tracked).
func (e *Engine) Callbacks() *tracker.Callbacks { return e.callbacks }

// Hook exposes the trace-hook fallback tracker for files the mode
// selector decided not to instrument.
func (e *Engine) Hook() *tracker.Hook { return e.hook }

// Store exposes the underlying CoverageData for read-only inspection
// mid-run.
func (e *Engine) Store() *covstore.CoverageData { return e.store }

// ErrorTranslator exposes the sourcemap registry for a test runner to
// translate raised errors back to original line numbers.
func (e *Engine) ErrorTranslator() *errtranslate.Registry { return e.errs }

// Eligible reports whether path should be tracked under the engine's
// include/exclude/source_dirs/track_all_executed policy.
func (e *Engine) Eligible(path string) bool {
	return e.policy.Eligible(path) && e.policy.UnderSourceDirs(path)
}

// PrepareResult is what PrepareFile returns for one source file: the
// bytes a Lua loader should actually run, plus which tracking mode was
// used and any recoverable diagnostics.
type PrepareResult struct {
	Key         pathkey.Key
	Mode        tracker.Mode
	Source      []byte
	Diagnostics []error
}

// PrepareFile runs the per-file pipeline: normalizes the path, loads
// the bytes, parses and analyzes, then either instruments the file or
// produces the large-file/unparseable fallback shim.
//
// Errors from the parser or analyzer are recovered locally:
// PrepareFile never fails outright for a parse error, it falls
// back to hook mode and records a diagnostic instead. Only a file read
// failure (IoError) is fatal to this one file's processing.
func (e *Engine) PrepareFile(path string) (*PrepareResult, error) {
	key, err := pathkey.Normalize(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.IoError{Path: path, Err: err}
	}

	info, statErr := os.Stat(path)
	var size int64
	if statErr == nil {
		size = info.Size()
	} else {
		size = int64(len(raw))
	}

	buf := source.New(raw)

	var diags []error
	var cm *analyzer.CodeMap
	file, perr := luasyntax.Parse(path, raw)
	parseOK := perr == nil
	if perr != nil {
		diags = append(diags, perr)
	} else {
		cmap := comments.Scan(buf)
		opts := analyzer.Options{
			StructuralIsExecutable: e.cfg.StructuralIsExecutable,
			NodeBudget:             e.cfg.Analyzer.NodeBudget,
			TimeBudget:             time.Duration(e.cfg.Analyzer.TimeBudgetMS) * time.Millisecond,
		}
		cm = analyzer.Analyze(buf, file, cmap, opts)
		if cm.Truncated {
			diags = append(diags, &errs.AnalysisTruncated{File: path, Reason: "budget_exceeded"})
		}
	}

	mode := e.selector.Decide(key, size, parseOK)

	fr := e.store.InitializeFile(key, buf)
	for line := 1; line <= buf.LineCount(); line++ {
		lt := analyzer.Code
		if cm != nil {
			lt = cm.LineTypeAt(line)
		}
		e.store.SetLineClassification(key, line, lt, e.cfg.StructuralIsExecutable)
	}
	if cm != nil {
		fr.CodeMap = cm
		e.registerStaticMap(key, cm)
	}

	if mode == tracker.HookTracked {
		if size > e.maxFileSize() {
			diags = append(diags, &errs.InstrumentationTooLarge{File: path, Size: size, Cap: e.maxFileSize()})
		}
		e.callbacks.RegisterHookTracked(key)
		shim := instrumenter.Shim(key, path, instrumenter.Options{StaticImports: e.cfg.Instrumentation.StaticImports})
		appendDiagnostics(fr, diags)
		return &PrepareResult{Key: key, Mode: mode, Source: shim, Diagnostics: diags}, nil
	}

	result := e.rewriteCached(buf, cm, key)
	out, warnings := instrumenter.Validate(result.Source)
	if len(warnings) > 0 {
		repairDiff := instrumenter.RepairDiff(result.Source, out)
		for _, w := range warnings {
			msg := w.Message
			if repairDiff != "" {
				msg += "\n" + repairDiff
			}
			diags = append(diags, &errs.InstrumentationUnsafe{File: path, Warning: msg})
		}
	}
	if e.cfg.Instrumentation.SourcemapEnabled {
		e.errs.Put(key, result.SourceMap)
	}

	appendDiagnostics(fr, diags)
	return &PrepareResult{Key: key, Mode: mode, Source: out, Diagnostics: diags}, nil
}

func appendDiagnostics(fr *covstore.FileRecord, diags []error) {
	for _, d := range diags {
		fr.Diagnostics = append(fr.Diagnostics, d.Error())
	}
}

func (e *Engine) rewriteCached(buf *source.Buffer, cm *analyzer.CodeMap, key pathkey.Key) *instrumenter.Result {
	opts := instrumenter.Options{StaticImports: e.cfg.Instrumentation.StaticImports}
	if e.cfg.Instrumentation.CacheEnabled {
		if v, ok := e.cache.Get(key, buf.Hash()); ok {
			if result, ok := v.(*instrumenter.Result); ok {
				return result
			}
		}
		// A disk entry from an earlier subprocess carries only the
		// instrumented bytes, so it can stand in for a rewrite only when
		// no sourcemap is needed this run.
		if e.diskCache != nil && !e.cfg.Instrumentation.SourcemapEnabled {
			if src, ok := e.diskCache.get(key, buf.Hash()); ok {
				result := &instrumenter.Result{Source: src}
				e.cache.Put(key, buf.Hash(), result)
				return result
			}
		}
	}
	result := instrumenter.Rewrite(buf, cm, key, opts)
	if e.cfg.Instrumentation.CacheEnabled {
		e.cache.Put(key, buf.Hash(), result)
		if e.diskCache != nil {
			_ = e.diskCache.put(key, buf.Hash(), result.Source)
		}
	}
	return result
}

func (e *Engine) registerStaticMap(key pathkey.Key, cm *analyzer.CodeMap) {
	for _, fn := range cm.Functions {
		e.store.RegisterFunction(key, fn.ID, fn.Name, fn.StartLine, fn.EndLine, fn.Kind)
	}
	for _, b := range cm.Blocks {
		e.store.RegisterBlock(key, b.ID, b.Kind, b.ParentID)
	}
	for _, c := range cm.Conditions {
		e.store.RegisterCondition(key, c.ID, c.Kind, c.ParentID, c.IsCompound, c.Operator, c.Components)
	}
}

func (e *Engine) maxFileSize() int64 {
	if e.cfg.Instrumentation.MaxFileSize > 0 {
		return e.cfg.Instrumentation.MaxFileSize
	}
	return tracker.DefaultMaxFileSize
}

// Stop runs the patch-up pass and the summarizer over the frozen
// store and returns it; summary computation observes a consistent
// snapshot because it only runs here. Calling Stop twice is
// idempotent: patchup and Recompute are both idempotent by
// construction, so a second call recomputes the same fixed point.
func (e *Engine) Stop() (*covstore.CoverageData, []summarizer.Diagnostic) {
	patchup.RunWithOptions(e.store, patchup.Options{
		FixRelationships: e.cfg.AutoFixBlockRelationships,
	})
	diags := summarizer.Recompute(e.store)
	e.stopped = true
	return e.store, diags
}

// Reset clears the store for a fresh run. Only valid after Stop.
func (e *Engine) Reset() {
	if !e.stopped {
		return
	}
	e.store.Reset()
	e.cache.Clear()
	e.stopped = false
}
