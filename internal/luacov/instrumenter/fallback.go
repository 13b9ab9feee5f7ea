package instrumenter

import (
	"fmt"

	"github.com/covstar/luacov/internal/luacov/pathkey"
)

// Shim produces the minimal large-file fallback source: a file over
// the size cap is never rewritten line-by-line
// (too slow, too easy to corrupt); instead the instrumenter returns a
// tiny wrapper that activates the file for reporting, registers it for
// hook-mode tracking, and loads the untouched original through Lua's
// own loader.
//
// originalPath is the on-disk path the Lua loader should read, kept
// separate from key (the canonical FileKey) since the two may differ
// in separator/casing convention.
func Shim(key pathkey.Key, originalPath string, opts Options) []byte {
	if opts.StaticImports {
		return []byte(fmt.Sprintf(
			"local __cov_rt = require(%q)\n"+
				"__cov_rt.activate_file(%q)\n"+
				"__cov_rt.register_hook_tracked(%q)\n"+
				"return loadfile(%q)()\n",
			runtimeModule, key.String(), key.String(), originalPath))
	}
	return []byte(fmt.Sprintf(
		"require(%q).activate_file(%q)\n"+
			"require(%q).register_hook_tracked(%q)\n"+
			"return loadfile(%q)()\n",
		runtimeModule, key.String(), runtimeModule, key.String(), originalPath))
}
