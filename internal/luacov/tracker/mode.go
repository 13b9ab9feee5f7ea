package tracker

import "github.com/covstar/luacov/internal/luacov/pathkey"

// Mode is the tracking mode chosen for one file.
type Mode int

const (
	// Instrumented means the file's source is rewritten to call
	// the Callbacks directly.
	Instrumented Mode = iota
	// HookTracked means the file relies on the runtime trace hook
	// (Hook) instead.
	HookTracked
)

func (m Mode) String() string {
	if m == Instrumented {
		return "instrumented"
	}
	return "hook"
}

// Selector decides per-file tracking mode: a file is instrumented
// when its size is under the
// cap, the parser succeeded, and it is not on the engine's own
// denylist (the coverage engine must never instrument itself or its
// direct utility dependencies; doing so would instrument the
// tracking calls themselves).
type Selector struct {
	MaxFileSize int64
	Denylist    map[pathkey.Key]bool
}

// NewSelector builds a Selector with the default size cap.
func NewSelector(denylist map[pathkey.Key]bool) Selector {
	if denylist == nil {
		denylist = map[pathkey.Key]bool{}
	}
	return Selector{MaxFileSize: DefaultMaxFileSize, Denylist: denylist}
}

// Decide applies the three mode-selection conditions in order and
// returns HookTracked on the first that fails. The returned Mode does
// not say which condition disqualified the file.
func (s Selector) Decide(key pathkey.Key, size int64, parseOK bool) Mode {
	max := s.MaxFileSize
	if max <= 0 {
		max = DefaultMaxFileSize
	}
	if size > max {
		return HookTracked
	}
	if !parseOK {
		return HookTracked
	}
	if s.Denylist[key] {
		return HookTracked
	}
	return Instrumented
}
