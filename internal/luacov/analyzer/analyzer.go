package analyzer

import (
	"time"

	"github.com/covstar/luacov/internal/luacov/comments"
	"github.com/covstar/luacov/internal/luacov/luasyntax"
	"github.com/covstar/luacov/internal/luacov/source"
)

// DefaultNodeBudget is the default cap on statements processed by the
// walker before AnalysisTruncated is signaled.
const DefaultNodeBudget = 100000

// Options controls analyzer policy.
type Options struct {
	StructuralIsExecutable bool
	NodeBudget             int

	// TimeBudget is the wall-clock cap on one file's walk
	// (analyzer.time_budget_ms). Zero disables the time budget (only
	// NodeBudget bounds the walk).
	TimeBudget time.Duration
}

// DefaultOptions returns the default policy:
// structural_is_executable = true.
func DefaultOptions() Options {
	return Options{StructuralIsExecutable: true, NodeBudget: DefaultNodeBudget}
}

// Analyze builds a CodeMap from a parsed file, its source buffer, and
// the line-accurate comment map. It never returns an error:
// a budget overrun sets CodeMap.Truncated and yields a partial, but
// always internally consistent, map. Missing line types default to
// non-executable.
func Analyze(buf *source.Buffer, file *luasyntax.File, cmap *comments.Map, opts Options) *CodeMap {
	if opts.NodeBudget <= 0 {
		opts.NodeBudget = DefaultNodeBudget
	}

	w := walkFile(buf, file, opts.NodeBudget, opts.TimeBudget)

	types := classifyLines(buf, cmap, w.execStartLines)
	exec := deriveExecutable(types, opts.StructuralIsExecutable)

	cm := &CodeMap{
		LineCount:              buf.LineCount(),
		LineTypes:              types,
		Executable:             exec,
		Functions:              w.functions,
		Blocks:                 w.blocks,
		Conditions:             w.conditions,
		StructuralIsExecutable: opts.StructuralIsExecutable,
		Truncated:              w.bud.truncated,
	}
	repairOrphanedBlocks(cm)
	return cm
}

// repairOrphanedBlocks reattaches any block whose recorded parent_id
// does not exist in the map to root. The patch-up pass does the same
// for runtime state; it is also needed here since a truncated walk
// can leave dangling parent references the instant it stops, not only
// after a full tracker run.
func repairOrphanedBlocks(cm *CodeMap) {
	ids := map[string]bool{}
	for _, b := range cm.Blocks {
		ids[b.ID] = true
	}
	for i, b := range cm.Blocks {
		if b.ParentID == "" {
			continue // root itself
		}
		if !ids[b.ParentID] {
			cm.Blocks[i].ParentID = "root"
			for j := range cm.Blocks {
				if cm.Blocks[j].ID == "root" {
					cm.Blocks[j].Children = append(cm.Blocks[j].Children, b.ID)
				}
			}
		}
	}
}

// ReclassifyExecutable re-derives the Executable projection from the
// already-computed LineTypes under a new structural_is_executable
// policy, without re-walking the AST.
func (c *CodeMap) ReclassifyExecutable(structuralIsExecutable bool) {
	c.Executable = deriveExecutable(c.LineTypes, structuralIsExecutable)
	c.StructuralIsExecutable = structuralIsExecutable
}
