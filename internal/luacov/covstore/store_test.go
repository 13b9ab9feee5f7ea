package covstore

import (
	"errors"
	"testing"

	"github.com/covstar/luacov/internal/luacov/analyzer"
	"github.com/covstar/luacov/internal/luacov/pathkey"
	"github.com/covstar/luacov/internal/luacov/source"
)

func TestInitializeFileIsIdempotent(t *testing.T) {
	c := Create()
	key := pathkey.MustNormalize("a.lua")
	buf := source.New([]byte("local x = 1\nreturn x\n"))

	fr1 := c.InitializeFile(key, buf)
	fr1.Diagnostics = append(fr1.Diagnostics, "marker")
	fr2 := c.InitializeFile(key, buf)

	if fr2 != fr1 {
		t.Fatal("InitializeFile should return the same record on a second call")
	}
	if len(fr2.Diagnostics) != 1 {
		t.Fatalf("second InitializeFile call should not reset state, got %+v", fr2.Diagnostics)
	}
	if fr1.LineCount != 2 {
		t.Errorf("LineCount = %d, want 2", fr1.LineCount)
	}
}

func TestMarkLineCoveredRequiresExecutedAndExecutable(t *testing.T) {
	c := Create()
	key := pathkey.MustNormalize("a.lua")
	buf := source.New([]byte("local x = 1\nreturn x\n"))
	c.InitializeFile(key, buf)

	err := c.MarkLineCovered(key, 1)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected InvariantViolation for uncovered line, got %v", err)
	}

	fr, _ := c.GetFile(key)
	if fr.Lines[1].Covered {
		t.Error("Covered must remain false after a rejected mark_line_covered")
	}

	fr.Lines[1].Executable = true
	c.MarkLineExecuted(key, 1)
	if err := c.MarkLineCovered(key, 1); err != nil {
		t.Fatalf("expected success once executed+executable, got %v", err)
	}
	if !fr.Lines[1].Covered {
		t.Error("line should be covered")
	}
}

func TestMarkLineExecutedAutoCreatesWithinSoftBound(t *testing.T) {
	c := Create()
	key := pathkey.MustNormalize("a.lua")
	buf := source.New([]byte("return 1\n"))
	c.InitializeFile(key, buf)

	c.MarkLineExecuted(key, 5)
	fr, _ := c.GetFile(key)
	lr, ok := fr.Lines[5]
	if !ok {
		t.Fatal("expected auto-created line record")
	}
	if !lr.Executed || lr.ExecutionCount != 1 || !lr.Executable {
		t.Errorf("unexpected auto-created record: %+v", lr)
	}

	c.MarkLineExecuted(key, 5+softGrowthBound+1)
	if _, ok := fr.Lines[5+softGrowthBound+1]; ok {
		t.Error("line far beyond the soft growth bound should not be auto-created")
	}
}

func TestSetLineClassificationResetsExecutionStateOnDemotion(t *testing.T) {
	c := Create()
	key := pathkey.MustNormalize("a.lua")
	buf := source.New([]byte("return 1\n"))
	c.InitializeFile(key, buf)

	fr, _ := c.GetFile(key)
	fr.Lines[1].Executable = true
	c.MarkLineExecuted(key, 1)
	c.MarkLineCovered(key, 1)

	c.SetLineClassification(key, 1, analyzer.Comment, true)

	lr := fr.Lines[1]
	if lr.Executed || lr.Covered || lr.ExecutionCount != 0 {
		t.Errorf("expected execution state reset on demotion to non-executable, got %+v", lr)
	}
	if len(fr.Diagnostics) == 0 {
		t.Error("expected a diagnostic to be logged for the reset")
	}
}

func TestMarkBlockExecutedPropagatesToAncestors(t *testing.T) {
	c := Create()
	key := pathkey.MustNormalize("a.lua")
	c.RegisterBlock(key, "root", "root", "")
	c.RegisterBlock(key, "if#1", "if", "root")
	c.RegisterBlock(key, "then_block#1", "then_block", "if#1")

	c.MarkBlockExecuted(key, "then_block#1")

	fr, _ := c.GetFile(key)
	for _, id := range []string{"then_block#1", "if#1", "root"} {
		if !fr.Blocks[id].Executed {
			t.Errorf("block %s should be executed by propagation", id)
		}
	}
}

func TestMarkConditionOutcomePropagatesAndShortCircuit(t *testing.T) {
	c := Create()
	key := pathkey.MustNormalize("a.lua")
	c.RegisterCondition(key, "and#1", "and", "", true, "and", []string{"left#1", "right#1"})
	c.RegisterCondition(key, "left#1", "simple", "and#1", false, "", nil)
	c.RegisterCondition(key, "right#1", "simple", "and#1", false, "", nil)

	c.MarkConditionOutcome(key, "left#1", false)

	fr, _ := c.GetFile(key)
	andCond := fr.Conditions["and#1"]
	if !andCond.ExecutedFalse {
		t.Error("'and' should evaluate false when its left operand is false, without needing the right operand")
	}
	if fr.Conditions["right#1"].Executed {
		t.Error("short-circuited right operand should not be marked executed")
	}
}

func TestRegisterFunctionIsIdempotent(t *testing.T) {
	c := Create()
	key := pathkey.MustNormalize("a.lua")
	c.RegisterFunction(key, "f:1-3", "f", 1, 3, analyzer.FuncGlobal)
	c.MarkFunctionExecuted(key, "f:1-3")
	c.RegisterFunction(key, "f:1-3", "f", 1, 3, analyzer.FuncGlobal)

	fr, _ := c.GetFile(key)
	fn := fr.Functions["f:1-3"]
	if fn.ExecutionCount != 1 {
		t.Errorf("re-registering an existing function must not reset its counters, got count=%d", fn.ExecutionCount)
	}
}

func TestResetClearsAllState(t *testing.T) {
	c := Create()
	key := pathkey.MustNormalize("a.lua")
	buf := source.New([]byte("return 1\n"))
	c.InitializeFile(key, buf)

	c.Reset()
	if len(c.Files) != 0 {
		t.Error("Reset should clear all files")
	}
	if c.Summary != (SummaryCounters{}) {
		t.Error("Reset should zero the summary")
	}
}
