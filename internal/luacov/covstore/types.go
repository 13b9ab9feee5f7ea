// Package covstore implements the coverage data store: the runtime
// mutable coverage state, with the LineRecord and
// FunctionRecord invariants enforced atomically by every mutating
// operation rather than checked after the fact.
package covstore

import (
	"github.com/covstar/luacov/internal/luacov/analyzer"
	"github.com/covstar/luacov/internal/luacov/pathkey"
)

// LineRecord is per-file, per-line coverage state. Invariants (always
// held after any store operation returns):
//
//	line_type ∈ {COMMENT, BLANK} ⇒ executable=false ∧ executed=false ∧ covered=false
//	executed ⇒ executable
//	covered ⇒ executed
//	execution_count > 0 ⇒ executed
type LineRecord struct {
	LineType       analyzer.LineType
	Executable     bool
	Executed       bool
	Covered        bool
	ExecutionCount int
	Content        string
}

// FunctionRecord is per-function coverage state; Covered ⇒ Executed.
type FunctionRecord struct {
	Name           string
	StartLine      int
	EndLine        int
	Kind           analyzer.FuncKind
	Executed       bool
	Covered        bool
	ExecutionCount int
	Lines          []int
}

// BlockRecord is per-block coverage state. A block's Executed implies
// nothing about its own ancestors directly; propagation is an
// explicit operation (mark_block_executed walks ancestors).
type BlockRecord struct {
	Kind           string
	ParentID       string
	Executed       bool
	ExecutionCount int
}

// ConditionRecord is per-condition coverage state.
// (ExecutedTrue ∨ ExecutedFalse) ⇒ Executed.
type ConditionRecord struct {
	Kind           string
	ParentID       string
	IsCompound     bool
	Operator       string
	Components     []string
	Executed       bool
	ExecutedTrue   bool
	ExecutedFalse  bool
	ExecutionCount int
}

// FileRecord aggregates every per-file record kind, indexed by the
// codemap-assigned ids for functions/blocks/conditions and by 1-based
// line number for lines.
type FileRecord struct {
	Key        pathkey.Key
	LineCount  int
	Lines      map[int]*LineRecord
	Functions  map[string]*FunctionRecord
	Blocks     map[string]*BlockRecord
	Conditions map[string]*ConditionRecord

	// CodeMap is the most recently associated static analysis for this
	// file, consulted by patch-up and by the tracker when it resolves a
	// function from its start line.
	CodeMap *analyzer.CodeMap

	Active      bool // set by activate_file, even if no line ever fires
	HookTracked bool // set by register_hook_tracked: this file relies on the trace hook, not instrumented calls
	Diagnostics []string
}

// SummaryCounters holds the cross-file totals the summarizer
// recomputes from primitive per-file counts.
type SummaryCounters struct {
	TotalFiles        int
	CoveredFiles      int
	ExecutableLines   int
	ExecutedLines     int
	CoveredLines      int
	TotalFunctions    int
	ExecutedFunctions int
	CoveredFunctions  int
	LineCoverage      float64
	ExecutionCoverage float64
	FunctionCoverage  float64
	FileCoverage      float64
	OverallCoverage   float64
}
