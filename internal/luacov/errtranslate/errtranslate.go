// Package errtranslate implements the error translator: rewriting
// "path:line:" prefixes in a runtime error message back to their
// pre-instrumentation original line numbers.
package errtranslate

import (
	"regexp"
	"strconv"

	"github.com/covstar/luacov/internal/luacov/instrumenter"
	"github.com/covstar/luacov/internal/luacov/pathkey"
)

// locationPrefix matches a leading "path:line:" token the way Lua's
// own runtime formats error locations (e.g. "big/huge.lua:12: attempt
// to call a nil value"). The path portion is greedy but stops short of
// the final ":NNN:" so names containing ':' (Windows drive letters,
// unlikely on Lua source but not excluded) still match the rightmost
// line marker.
var locationPrefix = regexp.MustCompile(`^(.+):(\d+):`)

// Registry holds the SourceMap produced for each instrumented file,
// looked up by the same pathkey.Key the instrumenter was invoked with.
// It is the engine's responsibility to populate one entry per
// instrumented file at rewrite time and hand the Registry to whatever
// surfaces runtime errors.
type Registry struct {
	maps map[pathkey.Key]*instrumenter.SourceMap
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{maps: map[pathkey.Key]*instrumenter.SourceMap{}}
}

// Put associates a SourceMap with the file it was built for. Calling
// Put again for the same key replaces the previous SourceMap, which
// matters when instrumentation.cache_enabled is off and a file is
// re-instrumented across runs.
func (r *Registry) Put(key pathkey.Key, sm *instrumenter.SourceMap) {
	r.maps[key] = sm
}

// Translate rewrites the leading "path:line:" prefix of msg using the
// SourceMap registered for path, replacing line with its original_line.
// Messages whose path has no registered SourceMap, or whose line has no
// corresponding original_line entry (e.g. a line the rewriter invented
// that never existed in the source), are returned unchanged.
func (r *Registry) Translate(msg string) string {
	m := locationPrefix.FindStringSubmatchIndex(msg)
	if m == nil {
		return msg
	}
	path := msg[m[2]:m[3]]
	lineText := msg[m[4]:m[5]]

	key, err := pathkey.Normalize(path)
	if err != nil {
		return msg
	}
	sm, ok := r.maps[key]
	if !ok {
		return msg
	}
	line, err := strconv.Atoi(lineText)
	if err != nil {
		return msg
	}
	orig, ok := sm.OriginalLine(line)
	if !ok {
		return msg
	}
	return path + ":" + strconv.Itoa(orig) + ":" + msg[m[5]+1:]
}
