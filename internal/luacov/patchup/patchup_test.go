package patchup

import (
	"testing"

	"github.com/covstar/luacov/internal/luacov/analyzer"
	"github.com/covstar/luacov/internal/luacov/comments"
	"github.com/covstar/luacov/internal/luacov/covstore"
	"github.com/covstar/luacov/internal/luacov/luasyntax"
	"github.com/covstar/luacov/internal/luacov/pathkey"
	"github.com/covstar/luacov/internal/luacov/source"
)

func analyzeAndInit(t *testing.T, src string) (*covstore.CoverageData, pathkey.Key, *covstore.FileRecord) {
	t.Helper()
	buf := source.New([]byte(src))
	file, err := luasyntax.Parse("t.lua", buf.Bytes())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	cmap := comments.Scan(buf)
	cm := analyzer.Analyze(buf, file, cmap, analyzer.DefaultOptions())

	store := covstore.Create()
	key := pathkey.MustNormalize("t.lua")
	fr := store.InitializeFile(key, buf)
	fr.CodeMap = cm
	for line := 1; line <= cm.LineCount; line++ {
		store.SetLineClassification(key, line, cm.LineTypeAt(line), cm.StructuralIsExecutable)
	}
	for _, fn := range cm.Functions {
		store.RegisterFunction(key, fn.ID, fn.Name, fn.StartLine, fn.EndLine, fn.Kind)
	}
	for _, b := range cm.Blocks {
		store.RegisterBlock(key, b.ID, b.Kind, b.ParentID)
	}
	return store, key, fr
}

func TestPatchUpMarksFunctionExecutedFromExecutedLine(t *testing.T) {
	src := "local function f(x)\n  return x + 1\nend\nreturn f(1)\n"
	store, key, fr := analyzeAndInit(t, src)

	// Simulate the tracker having executed line 2 (the body) without
	// ever observing track_function (as hook-mode tracking might).
	store.MarkLineExecuted(key, 2)

	Run(store)

	if len(fr.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(fr.Functions))
	}
	for _, fn := range fr.Functions {
		if !fn.Executed {
			t.Errorf("expected function containing executed line 2 to be marked executed: %+v", fn)
		}
	}
}

func TestPatchUpDemotesNonExecutableLineAndResetsState(t *testing.T) {
	src := "-- a comment\nlocal x = 1\n"
	store, _, fr := analyzeAndInit(t, src)

	// Force line 1 (a COMMENT line) into a bogus executed state, as if
	// the tracker fired on a stale executable projection.
	fr.Lines[1].Executable = true
	fr.Lines[1].Executed = true
	fr.Lines[1].ExecutionCount = 1

	Run(store)

	if fr.Lines[1].Executable || fr.Lines[1].Executed || fr.Lines[1].ExecutionCount != 0 {
		t.Errorf("comment line should be demoted to fully non-executable, got %+v", fr.Lines[1])
	}
	if len(fr.Diagnostics) == 0 {
		t.Error("expected a diagnostic recording the demotion")
	}
}

func TestPatchUpPropagatesBlockExecutionToAncestors(t *testing.T) {
	src := "if x > 0 then\n  if y > 0 then\n    return 1\n  end\nend\n"
	store, key, fr := analyzeAndInit(t, src)

	store.MarkLineExecuted(key, 3) // the innermost return statement

	Run(store)

	executedKinds := map[string]bool{}
	for _, b := range fr.Blocks {
		if b.Executed {
			executedKinds[b.Kind] = true
		}
	}
	for _, kind := range []string{"if", "then_block"} {
		if !executedKinds[kind] {
			t.Errorf("expected a %q block to be marked executed via ancestor propagation, got %+v", kind, fr.Blocks)
		}
	}
}

func TestPatchUpReattachesOrphanedBlock(t *testing.T) {
	store, key, fr := analyzeAndInit(t, "return 1\n")
	fr.Blocks["stray"] = &covstore.BlockRecord{Kind: "if", ParentID: "does-not-exist"}

	stats := Run(store)

	if fr.Blocks["stray"].ParentID != "root" {
		t.Errorf("orphaned block should be reattached to root, got parent_id=%q", fr.Blocks["stray"].ParentID)
	}
	if stats.RelationshipsFixed == 0 {
		t.Error("expected RelationshipsFixed > 0")
	}
	_ = key
}

func TestPatchUpResolvesPendingParentLink(t *testing.T) {
	src := "if x > 0 then\n  return 1\nend\n"
	store, key, fr := analyzeAndInit(t, src)

	var thenBlockID string
	for _, b := range fr.CodeMap.Blocks {
		if b.Kind == "then_block" {
			thenBlockID = b.ID
		}
	}
	if thenBlockID == "" {
		t.Fatal("expected a then_block in the code map")
	}
	// Simulate the tracker observing this block before the engine ever
	// registered it from the code map: parent_id starts empty.
	fr.Blocks[thenBlockID].ParentID = ""

	Run(store)

	if fr.Blocks[thenBlockID].ParentID == "" {
		t.Error("expected the pending parent link to be resolved from the code map")
	}
	_ = key
}

func TestPatchUpRelationshipFixingCanBeDisabled(t *testing.T) {
	store, _, fr := analyzeAndInit(t, "return 1\n")
	fr.Blocks["stray"] = &covstore.BlockRecord{Kind: "if", ParentID: "does-not-exist"}

	stats := RunWithOptions(store, Options{FixRelationships: false})

	if stats.RelationshipsFixed != 0 {
		t.Errorf("RelationshipsFixed = %d, want 0 with fixing disabled", stats.RelationshipsFixed)
	}
	if fr.Blocks["stray"].ParentID != "does-not-exist" {
		t.Errorf("orphan should be left alone with fixing disabled, got parent_id=%q", fr.Blocks["stray"].ParentID)
	}
}

func TestPatchUpIsIdempotent(t *testing.T) {
	src := "if x > 0 then\n  return 1\nend\nreturn 0\n"
	store, key, _ := analyzeAndInit(t, src)
	store.MarkLineExecuted(key, 2)

	first := Run(store)
	second := Run(store)

	if second.RelationshipsFixed != 0 {
		t.Errorf("second patch-up pass should find nothing left to fix, got %+v (first was %+v)", second, first)
	}
}
