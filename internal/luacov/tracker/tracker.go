// Package tracker implements the execution tracker: the two runtime
// tracking modes instrumented code or a trace hook feed into.
package tracker

import (
	"github.com/covstar/luacov/internal/luacov/covstore"
	"github.com/covstar/luacov/internal/luacov/pathkey"
)

// DefaultMaxFileSize is the default instrumentation.max_file_size
// cap: files over this are hook-tracked instead of rewritten.
const DefaultMaxFileSize = 1 << 20

// Callbacks implements the stable instrumented-mode callback names:
// activate_file/track_line/track_function/track_block.
// Instrumented Lua source calls these directly (see the instrumenter's
// static-import preamble); they are also what the hook-mode tracer
// calls internally once it has resolved a source event to a
// (file, line).
type Callbacks struct {
	store *covstore.CoverageData
}

// NewCallbacks binds the tracking callbacks to a data store.
func NewCallbacks(store *covstore.CoverageData) *Callbacks {
	return &Callbacks{store: store}
}

// ActivateFile ensures the file is recorded as active for reporting
// even if no line ever fires.
func (c *Callbacks) ActivateFile(key pathkey.Key) {
	c.store.ActivateFile(key)
}

// TrackLine records that a source line executed.
func (c *Callbacks) TrackLine(key pathkey.Key, line int) {
	c.store.MarkLineExecuted(key, line)
}

// TrackFunction locates the func_id whose start_line equals line (via
// the file's associated CodeMap) and marks it executed. If no CodeMap
// is associated, or no function starts at that line, this is a no-op:
// hook mode's dynamic registration path (see Hook.OnCall) handles
// functions static analysis never saw.
func (c *Callbacks) TrackFunction(key pathkey.Key, line int) {
	fr, ok := c.store.GetFile(key)
	if !ok || fr.CodeMap == nil {
		return
	}
	fn, ok := fr.CodeMap.FunctionByStartLine(line)
	if !ok {
		return
	}
	c.store.MarkFunctionExecuted(key, fn.ID)
}

// TrackCondition records a leaf condition's boolean outcome.
// ConditionRecord's executed_true/executed_false state has to come
// from the instrumented expression itself: branch-block execution
// alone can't distinguish a compound condition's sub-expression
// outcomes. The instrumenter's static-import preamble binds this
// under its own internal name; it is never called directly by user
// Lua code.
func (c *Callbacks) TrackCondition(key pathkey.Key, condID string, outcome bool) {
	c.store.MarkConditionOutcome(key, condID, outcome)
}

// RegisterHookTracked marks a file as falling back to hook-mode
// tracking (see mode.Selector), called by the instrumenter's large-file
// shim in place of the static-import preamble's activate_file.
func (c *Callbacks) RegisterHookTracked(key pathkey.Key) {
	c.store.RegisterHookTracked(key)
}

// TrackBlock registers the block if not already known (instrumented
// code always supplies kind, so a late-seen block can self-describe)
// and marks it executed, propagating to ancestors.
func (c *Callbacks) TrackBlock(key pathkey.Key, line int, blockID, kind string) {
	c.store.RegisterBlock(key, blockID, kind, "")
	c.store.MarkBlockExecuted(key, blockID)
}
