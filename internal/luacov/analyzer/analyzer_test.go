package analyzer

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/covstar/luacov/internal/luacov/comments"
	"github.com/covstar/luacov/internal/luacov/luasyntax"
	"github.com/covstar/luacov/internal/luacov/source"
)

func analyze(t *testing.T, src string, opts Options) *CodeMap {
	t.Helper()
	buf := source.New([]byte(src))
	file, err := luasyntax.Parse("test.lua", buf.Bytes())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	cmap := comments.Scan(buf)
	return Analyze(buf, file, cmap, opts)
}

func TestCommentOnlyFileHasNoExecutableLines(t *testing.T) {
	cm := analyze(t, "-- just a comment\n-- another one\n\n", DefaultOptions())
	for i := 1; i <= cm.LineCount; i++ {
		if cm.IsExecutable(i) {
			t.Errorf("line %d should not be executable in a comment-only file", i)
		}
	}
}

func TestScenarioSingleFunctionSingleCall(t *testing.T) {
	src := "local function f(x)\n  if x > 0 then\n    return x\n  end\n  return 0\nend\nreturn f(1)\n"
	cm := analyze(t, src, DefaultOptions())

	// Lines 4 and 6 are bare "end" tokens (STRUCTURE); under the default
	// structural_is_executable=true policy they count as executable
	// alongside the statement lines.
	wantExecutable := map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true}
	for line, want := range wantExecutable {
		if got := cm.IsExecutable(line); got != want {
			t.Errorf("line %d executable = %v, want %v (type=%s)", line, got, want, cm.LineTypeAt(line))
		}
	}

	if len(cm.Functions) != 1 {
		t.Fatalf("want 1 function, got %d: %+v", len(cm.Functions), cm.Functions)
	}
	if cm.Functions[0].Kind != FuncLocal {
		t.Errorf("function kind = %v, want FuncLocal", cm.Functions[0].Kind)
	}

	if len(cm.Conditions) == 0 {
		t.Fatal("expected at least one condition for the if test")
	}
}

func TestStructuralIsExecutableFlagTogglesEndLine(t *testing.T) {
	src := "local function f(x)\n  if x > 0 then\n    return x\n  end\n  return 0\nend\nreturn f(1)\n"
	opts := DefaultOptions()
	opts.StructuralIsExecutable = false
	cm := analyze(t, src, opts)
	if cm.IsExecutable(4) {
		t.Error("line 4 (\"end\") should not be executable when structural_is_executable=false")
	}
}

func TestGlobalFunctionKind(t *testing.T) {
	cm := analyze(t, "function add(a, b)\n  return a + b\nend\n", DefaultOptions())
	if len(cm.Functions) != 1 || cm.Functions[0].Kind != FuncGlobal {
		t.Fatalf("unexpected functions: %+v", cm.Functions)
	}
}

func TestMethodFunctionKind(t *testing.T) {
	cm := analyze(t, "function obj:method(x)\n  return self.x + x\nend\n", DefaultOptions())
	if len(cm.Functions) != 1 || cm.Functions[0].Kind != FuncMethod {
		t.Fatalf("unexpected functions: %+v", cm.Functions)
	}
}

func TestClosureDetection(t *testing.T) {
	src := `
function make_counter()
  local count = 0
  return function()
    count = count + 1
    return count
  end
end
`
	cm := analyze(t, src, DefaultOptions())
	var found bool
	for _, f := range cm.Functions {
		if f.Kind == FuncClosure {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a CLOSURE-kind function among %+v", cm.Functions)
	}
}

func TestAnonymousFunctionAsCallArgument(t *testing.T) {
	cm := analyze(t, "register(function()\n  ping()\nend)\n", DefaultOptions())
	if len(cm.Functions) != 1 || cm.Functions[0].Kind != FuncAnonymous {
		t.Fatalf("unexpected functions: %+v", cm.Functions)
	}
}

func TestCompoundConditionDecomposition(t *testing.T) {
	cm := analyze(t, "if a > 0 and b < 10 then\n  ok()\nend\n", DefaultOptions())
	var root *ConditionInfo
	for i := range cm.Conditions {
		if cm.Conditions[i].IsCompound && cm.Conditions[i].Operator == "and" {
			root = &cm.Conditions[i]
		}
	}
	if root == nil {
		t.Fatal("expected a compound 'and' condition")
	}
	if len(root.Components) != 2 {
		t.Fatalf("want 2 components, got %d", len(root.Components))
	}
}

func TestBlockTreeParentChildConsistency(t *testing.T) {
	cm := analyze(t, "if a then\n  x = 1\nelse\n  x = 2\nend\n", DefaultOptions())
	byID := map[string]BlockInfo{}
	for _, b := range cm.Blocks {
		byID[b.ID] = b
	}
	for _, b := range cm.Blocks {
		if b.ParentID == "" {
			continue
		}
		parent, ok := byID[b.ParentID]
		if !ok {
			t.Fatalf("block %s has missing parent %s", b.ID, b.ParentID)
		}
		found := false
		for _, c := range parent.Children {
			if c == b.ID {
				found = true
			}
		}
		if !found {
			t.Errorf("block %s not listed among parent %s's children", b.ID, b.ParentID)
		}
	}
}

func TestWhileLoopBlocks(t *testing.T) {
	cm := analyze(t, "while x < 10 do\n  x = x + 1\nend\n", DefaultOptions())
	var haveWhile, haveBody bool
	for _, b := range cm.Blocks {
		if b.Kind == "while" {
			haveWhile = true
		}
		if b.Kind == "while_body" {
			haveBody = true
		}
	}
	if !haveWhile || !haveBody {
		t.Errorf("expected while/while_body blocks, got %+v", cm.Blocks)
	}
}

func TestBlankAndCommentLinesNeverExecutable(t *testing.T) {
	cm := analyze(t, "local x = 1\n\n-- comment\nreturn x\n", DefaultOptions())
	if cm.IsExecutable(2) {
		t.Error("blank line should not be executable")
	}
	if cm.IsExecutable(3) {
		t.Error("comment line should not be executable")
	}
}

func TestTimeBudgetExceededTruncates(t *testing.T) {
	var src string
	for i := 0; i < 2000; i++ {
		src += "x = x + 1\n"
	}
	opts := DefaultOptions()
	opts.TimeBudget = 1 * time.Nanosecond
	cm := analyze(t, src, opts)
	if !cm.Truncated {
		t.Error("expected an exceeded time budget to truncate the walk")
	}
}

func TestZeroTimeBudgetNeverTruncatesOnTime(t *testing.T) {
	cm := analyze(t, "local x = 1\nreturn x\n", DefaultOptions())
	if cm.Truncated {
		t.Error("no time budget configured; walk should not be truncated by time")
	}
}

// TestAnalyzeIsDeterministic re-runs the same source through Analyze
// twice and compares the resulting CodeMaps structurally: the
// function/block/condition enumeration order and shape must be stable
// across runs, since the instrumenter and data store both key off
// array position as well as ID.
func TestAnalyzeIsDeterministic(t *testing.T) {
	src := "local function f(x)\n  if x > 0 and x < 10 then\n    return x\n  end\n  return 0\nend\nreturn f(1)\n"
	first := analyze(t, src, DefaultOptions())
	second := analyze(t, src, DefaultOptions())

	if diff := cmp.Diff(first, second, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Analyze is not deterministic for identical input (-first +second):\n%s", diff)
	}
}

// TestStructuralIsExecutableOnlyAffectsExecutableMask checks that
// toggling structural_is_executable changes nothing about the
// function/block/condition enumeration itself; only the Executable
// mask and the flag record on CodeMap.
func TestStructuralIsExecutableOnlyAffectsExecutableMask(t *testing.T) {
	src := "local function f(x)\n  if x > 0 then\n    return x\n  end\n  return 0\nend\nreturn f(1)\n"

	withStructural := analyze(t, src, DefaultOptions())
	opts := DefaultOptions()
	opts.StructuralIsExecutable = false
	withoutStructural := analyze(t, src, opts)

	diff := cmp.Diff(withStructural, withoutStructural, cmpopts.EquateEmpty(),
		cmpopts.IgnoreFields(CodeMap{}, "Executable", "StructuralIsExecutable"))
	if diff != "" {
		t.Errorf("toggling structural_is_executable changed more than the executable mask (-with +without):\n%s", diff)
	}
}
