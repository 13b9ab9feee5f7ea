package covstore

import (
	"errors"
	"fmt"

	"github.com/covstar/luacov/internal/luacov/analyzer"
	"github.com/covstar/luacov/internal/luacov/pathkey"
	"github.com/covstar/luacov/internal/luacov/source"
)

// ErrInvariantViolation is returned by mark_line_covered when the
// caller tries to cover a line that was never executed, or whose
// executability is false. This is a bug signal: the
// store must not silently repair it.
var ErrInvariantViolation = errors.New("invariant violation")

// InvariantError wraps ErrInvariantViolation with the offending
// file/line for diagnostics.
type InvariantError struct {
	Key  pathkey.Key
	Line int
	Msg  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Key, e.Line, e.Msg)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// softGrowthBound caps how far beyond a file's known line count
// mark_line_executed will auto-create a LineRecord for.
const softGrowthBound = 10000

// CoverageData is the runtime coverage store. It is single-writer
// and not safe for concurrent use from multiple goroutines without
// external serialization; the engine package is responsible for
// ensuring only one goroutine calls into a CoverageData at a time.
type CoverageData struct {
	Files   map[pathkey.Key]*FileRecord
	Summary SummaryCounters

	stopped bool
}

// Create returns an empty CoverageData with a zeroed summary.
func Create() *CoverageData {
	return &CoverageData{Files: map[pathkey.Key]*FileRecord{}}
}

// InitializeFile creates a FileRecord if absent, seeding one LineRecord
// per line with line_type=CODE and every boolean false. Idempotent:
// calling it twice with the same key leaves an existing FileRecord
// unchanged.
func (c *CoverageData) InitializeFile(key pathkey.Key, src *source.Buffer) *FileRecord {
	if fr, ok := c.Files[key]; ok {
		return fr
	}
	n := src.LineCount()
	fr := &FileRecord{
		Key:        key,
		LineCount:  n,
		Lines:      make(map[int]*LineRecord, n),
		Functions:  map[string]*FunctionRecord{},
		Blocks:     map[string]*BlockRecord{},
		Conditions: map[string]*ConditionRecord{},
	}
	for line := 1; line <= n; line++ {
		fr.Lines[line] = &LineRecord{
			LineType: analyzer.Code,
			Content:  string(src.Line(line)),
		}
	}
	c.Files[key] = fr
	c.Summary.TotalFiles = len(c.Files)
	return fr
}

// ActivateFile marks a file active for reporting even if no line ever
// fires, per the execution tracker's activate_file callback contract.
func (c *CoverageData) ActivateFile(key pathkey.Key) {
	fr := c.fileOrCreate(key)
	fr.Active = true
}

// RegisterHookTracked marks a file as relying on the trace hook instead
// of instrumented calls, per the large-file/parse-failure/denylist
// fallback path the tracker's mode selector chooses.
// It also activates the file, since the shim that calls this never
// otherwise reaches activate_file.
func (c *CoverageData) RegisterHookTracked(key pathkey.Key) {
	fr := c.fileOrCreate(key)
	fr.Active = true
	fr.HookTracked = true
}

func (c *CoverageData) fileOrCreate(key pathkey.Key) *FileRecord {
	fr, ok := c.Files[key]
	if ok {
		return fr
	}
	fr = &FileRecord{
		Key:        key,
		Lines:      map[int]*LineRecord{},
		Functions:  map[string]*FunctionRecord{},
		Blocks:     map[string]*BlockRecord{},
		Conditions: map[string]*ConditionRecord{},
	}
	c.Files[key] = fr
	c.Summary.TotalFiles = len(c.Files)
	return fr
}

// SetLineClassification updates a line's type and recomputes its
// executability per the given policy. If the transition makes the
// line non-executable, executed/covered/execution_count are reset and
// a diagnostic is logged.
func (c *CoverageData) SetLineClassification(key pathkey.Key, line int, lt analyzer.LineType, structuralIsExecutable bool) {
	fr := c.fileOrCreate(key)
	lr, ok := fr.Lines[line]
	if !ok {
		lr = &LineRecord{}
		fr.Lines[line] = lr
		if line > fr.LineCount {
			fr.LineCount = line
		}
	}
	lr.LineType = lt

	executable := false
	switch lt {
	case analyzer.Code:
		executable = true
	case analyzer.Structure:
		executable = structuralIsExecutable
	}
	lr.Executable = executable

	if !executable && (lr.Executed || lr.Covered || lr.ExecutionCount != 0) {
		lr.Executed = false
		lr.Covered = false
		lr.ExecutionCount = 0
		fr.Diagnostics = append(fr.Diagnostics, fmt.Sprintf(
			"line %d became non-executable (%s); execution state reset", line, lt))
	}
}

// MarkLineExecuted increments a line's execution count and sets
// executed=true. If the line is missing and within the soft growth
// bound, it is auto-created as CODE/executable.
func (c *CoverageData) MarkLineExecuted(key pathkey.Key, line int) {
	fr := c.fileOrCreate(key)
	lr, ok := fr.Lines[line]
	if !ok {
		if line > fr.LineCount+softGrowthBound {
			return
		}
		lr = &LineRecord{LineType: analyzer.Code, Executable: true}
		fr.Lines[line] = lr
		if line > fr.LineCount {
			fr.LineCount = line
		}
	}
	lr.ExecutionCount++
	lr.Executed = true
}

// MarkLineCovered requires executed=true and executable=true; else it
// returns InvariantError and leaves state unchanged.
func (c *CoverageData) MarkLineCovered(key pathkey.Key, line int) error {
	fr, ok := c.Files[key]
	if !ok {
		return &InvariantError{Key: key, Line: line, Msg: "file not tracked"}
	}
	lr, ok := fr.Lines[line]
	if !ok || !lr.Executed || !lr.Executable {
		return &InvariantError{Key: key, Line: line, Msg: "line not executed/executable"}
	}
	lr.Covered = true
	return nil
}

// RegisterFunction seeds a FunctionRecord, idempotent on func_id.
func (c *CoverageData) RegisterFunction(key pathkey.Key, id, name string, start, end int, kind analyzer.FuncKind) {
	fr := c.fileOrCreate(key)
	if _, ok := fr.Functions[id]; ok {
		return
	}
	lines := make([]int, 0, end-start+1)
	for l := start; l <= end; l++ {
		lines = append(lines, l)
	}
	fr.Functions[id] = &FunctionRecord{Name: name, StartLine: start, EndLine: end, Kind: kind, Lines: lines}
}

// MarkFunctionExecuted increments a function's execution count and
// sets executed=true.
func (c *CoverageData) MarkFunctionExecuted(key pathkey.Key, funcID string) {
	fr := c.fileOrCreate(key)
	fn, ok := fr.Functions[funcID]
	if !ok {
		return
	}
	fn.ExecutionCount++
	fn.Executed = true
}

// RegisterBlock seeds a BlockRecord, idempotent on block id.
func (c *CoverageData) RegisterBlock(key pathkey.Key, id, kind, parentID string) {
	fr := c.fileOrCreate(key)
	if _, ok := fr.Blocks[id]; ok {
		return
	}
	fr.Blocks[id] = &BlockRecord{Kind: kind, ParentID: parentID}
}

// MarkBlockExecuted sets a block executed and propagates executed=true
// to every ancestor block.
func (c *CoverageData) MarkBlockExecuted(key pathkey.Key, blockID string) {
	fr := c.fileOrCreate(key)
	id := blockID
	for id != "" {
		b, ok := fr.Blocks[id]
		if !ok {
			return
		}
		b.ExecutionCount++
		b.Executed = true
		if id == b.ParentID {
			return // guard against a malformed self-referential parent
		}
		id = b.ParentID
	}
}

// RegisterCondition seeds a ConditionRecord, idempotent on cond id.
func (c *CoverageData) RegisterCondition(key pathkey.Key, id, kind, parentID string, isCompound bool, operator string, components []string) {
	fr := c.fileOrCreate(key)
	if _, ok := fr.Conditions[id]; ok {
		return
	}
	fr.Conditions[id] = &ConditionRecord{Kind: kind, ParentID: parentID, IsCompound: isCompound, Operator: operator, Components: components}
}

// MarkConditionOutcome sets executed_true or executed_false (and
// executed), then propagates the outcome to parent compound conditions
// (an "and"'s left operand evaluating false makes the whole
// "and" evaluate false without evaluating the right operand.
func (c *CoverageData) MarkConditionOutcome(key pathkey.Key, condID string, outcome bool) {
	fr := c.fileOrCreate(key)
	cond, ok := fr.Conditions[condID]
	if !ok {
		return
	}
	cond.ExecutionCount++
	cond.Executed = true
	if outcome {
		cond.ExecutedTrue = true
	} else {
		cond.ExecutedFalse = true
	}
	c.propagateConditionOutcome(fr, condID, outcome)
}

// propagateConditionOutcome walks conditions whose Components include
// condID and re-derives their own outcome from short-circuit logic.
func (c *CoverageData) propagateConditionOutcome(fr *FileRecord, childID string, childOutcome bool) {
	for parentID, parent := range fr.Conditions {
		idx := -1
		for i, comp := range parent.Components {
			if comp == childID {
				idx = i
				break
			}
		}
		if idx == -1 {
			continue
		}
		switch parent.Operator {
		case "and":
			if !childOutcome {
				c.MarkConditionOutcome(fr.Key, parentID, false)
			} else if idx == len(parent.Components)-1 {
				c.MarkConditionOutcome(fr.Key, parentID, true)
			}
		case "or":
			if childOutcome {
				c.MarkConditionOutcome(fr.Key, parentID, true)
			} else if idx == len(parent.Components)-1 {
				c.MarkConditionOutcome(fr.Key, parentID, false)
			}
		case "not":
			c.MarkConditionOutcome(fr.Key, parentID, !childOutcome)
		}
		return
	}
}

// GetFile returns a read-only view of one file's record.
func (c *CoverageData) GetFile(key pathkey.Key) (*FileRecord, bool) {
	fr, ok := c.Files[key]
	return fr, ok
}

// IterFiles calls fn for every tracked file, in indeterminate order.
func (c *CoverageData) IterFiles(fn func(pathkey.Key, *FileRecord)) {
	for k, fr := range c.Files {
		fn(k, fr)
	}
}

// Reset clears all coverage data. Callers must only invoke this while
// the tracker is stopped.
func (c *CoverageData) Reset() {
	c.Files = map[pathkey.Key]*FileRecord{}
	c.Summary = SummaryCounters{}
}
