package tracker

import (
	"strconv"
	"strings"

	"github.com/covstar/luacov/internal/luacov/analyzer"
	"github.com/covstar/luacov/internal/luacov/eligibility"
	"github.com/covstar/luacov/internal/luacov/pathkey"
)

// frame is one entry in the hook tracer's call stack, tracking which
// source a "return" event should pop back to.
type frame struct {
	key  pathkey.Key
	name string
}

// Hook implements the fallback per-line/per-call trace hook for files
// the mode-selection policy declined to instrument (too large, failed
// to parse, or denylisted). It is reentrancy-guarded: the callback
// path must never invoke user code that re-enters the tracker, so a
// line/call event that fires while a previous one is still being
// processed is simply dropped rather than queued or recursed into.
type Hook struct {
	callbacks *Callbacks
	policy    eligibility.Policy

	guard bool
	stack []frame
}

// NewHook creates a hook-mode tracer bound to the tracking callbacks
// and the file eligibility policy used to filter line events.
func NewHook(callbacks *Callbacks, policy eligibility.Policy) *Hook {
	return &Hook{callbacks: callbacks, policy: policy}
}

// OnLine handles a line event. source follows the "@path" convention;
// the leading "@" is stripped before normalization.
func (h *Hook) OnLine(source string, line int) {
	if h.guard {
		return
	}
	h.guard = true
	defer func() { h.guard = false }()

	path := strings.TrimPrefix(source, "@")
	if !h.policy.Eligible(path) {
		return
	}
	key, err := pathkey.Normalize(path)
	if err != nil {
		return
	}
	h.callbacks.ActivateFile(key)
	h.callbacks.TrackLine(key, line)
}

// OnCall handles a call event: it dynamically registers the function
// (static analysis may not have seen it, e.g. loaded via dofile) and
// marks it executed, then pushes a frame so OnReturn can pop it.
func (h *Hook) OnCall(source, name string, line int) {
	if h.guard {
		return
	}
	h.guard = true
	defer func() { h.guard = false }()

	path := strings.TrimPrefix(source, "@")
	if !h.policy.Eligible(path) {
		h.stack = append(h.stack, frame{name: name})
		return
	}
	key, err := pathkey.Normalize(path)
	if err != nil {
		h.stack = append(h.stack, frame{name: name})
		return
	}
	h.stack = append(h.stack, frame{key: key, name: name})

	fr, ok := h.callbacks.store.GetFile(key)
	funcID := name + ":" + strconv.Itoa(line)
	if !ok || fr.CodeMap == nil {
		h.callbacks.store.RegisterFunction(key, funcID, name, line, line, analyzer.FuncGlobal)
		h.callbacks.store.MarkFunctionExecuted(key, funcID)
		return
	}
	if fn, found := fr.CodeMap.FunctionByStartLine(line); found {
		h.callbacks.store.MarkFunctionExecuted(key, fn.ID)
		return
	}
	h.callbacks.store.RegisterFunction(key, funcID, name, line, line, analyzer.FuncGlobal)
	h.callbacks.store.MarkFunctionExecuted(key, funcID)
}

// OnReturn pops the current call frame. Unbalanced returns (more
// returns than calls, e.g. because tracking started mid-call) are
// ignored rather than panicking.
func (h *Hook) OnReturn() {
	if h.guard {
		return
	}
	if len(h.stack) == 0 {
		return
	}
	h.stack = h.stack[:len(h.stack)-1]
}
