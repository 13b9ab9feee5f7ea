// Package cmdtest provides a testscript-based test harness for
// luacov's CLI.
//
// It uses txtar format test files to specify input files and expected
// outputs, making it easy to write comprehensive CLI tests.
//
// Example test file (testdata/luacov/below_minimum.txtar):
//
//	# Test that luacov fails the run when coverage is below -min
//	! exec luacov -min=90 coverage.json
//	stderr 'below minimum'
//
//	-- coverage.json --
//	{"files":{"lib.lua":{"lines":{"1":1,"2":0}}}}
package cmdtest

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/covstar/luacov/internal/cmd/luacov"
)

// Run executes the testscript tests in the given directory.
func Run(t *testing.T, dir string) {
	testscript.Run(t, testscript.Params{
		Dir: dir,
	})
}

// Main is the TestMain function that should be called from test files.
// It sets up the CLI tool as a testscript command.
func Main(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"luacov": wrapRun(luacov.Run),
	}))
}

// wrapRun wraps a Run(args []string) int function to func() int for testscript.
// The args are taken from os.Args[1:].
func wrapRun(run func(args []string) int) func() int {
	return func() int {
		return run(os.Args[1:])
	}
}
