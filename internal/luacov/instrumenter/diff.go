package instrumenter

import (
	"github.com/pmezard/go-difflib/difflib"
)

// RepairDiff renders a unified diff between the rewriter's output and
// the validator's repaired output, for attaching to an
// InstrumentationUnsafe diagnostic so a human can see exactly what the
// repair pass appended.
func RepairDiff(before, after []byte) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: "rewritten",
		ToFile:   "repaired",
		Context:  2,
	}
	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return out
}
