// Package patchup implements the patch-up pass: the reconciliation
// of dynamic tracker output with the static CodeMap that runs once
// tracking stops.
package patchup

import (
	"fmt"

	"github.com/covstar/luacov/internal/luacov/analyzer"
	"github.com/covstar/luacov/internal/luacov/covstore"
	"github.com/covstar/luacov/internal/luacov/pathkey"
)

// Stats reports how much one patch-up pass changed.
type Stats struct {
	RelationshipsFixed int
}

// Options controls optional patch-up behavior.
type Options struct {
	// FixRelationships resolves pending parent links and reattaches
	// orphaned blocks to root (auto_fix_block_relationships).
	FixRelationships bool
}

// Run applies the full patch-up pass, relationship fixing included.
func Run(store *covstore.CoverageData) Stats {
	return RunWithOptions(store, Options{FixRelationships: true})
}

// RunWithOptions applies the patch-up pass to every file in store that
// has an associated CodeMap; files the analyzer never touched (e.g.
// pure hook-tracked files with no static analysis) are left untouched:
// only files with a CodeMap to join against are reconciled.
// The pass is idempotent: calling it twice in a row leaves state
// unchanged the second time.
func RunWithOptions(store *covstore.CoverageData, opts Options) Stats {
	var stats Stats
	store.IterFiles(func(_ pathkey.Key, fr *covstore.FileRecord) {
		if fr.CodeMap == nil {
			return
		}
		stats.RelationshipsFixed += patchFile(fr, opts)
	})
	return stats
}

func patchFile(fr *covstore.FileRecord, opts Options) int {
	cm := fr.CodeMap

	joinLinesWithCodeMap(fr, cm)
	markFunctionsExecuted(fr)

	relFixed := 0
	if opts.FixRelationships {
		relFixed = resolvePendingParentLinks(fr, cm)
		relFixed += reattachOrphanedBlocks(fr)
	}

	propagateBlockExecution(fr, cm)

	return relFixed
}

// joinLinesWithCodeMap implements step 1: executable is always
// re-derived from the CodeMap projection, overriding whatever the
// tracker observed, and the LineRecord invariants are re-applied. This
// guarantees a line the code map now says is non-executable (e.g.
// after a structural_is_executable config change) can never surface in
// a report as "not covered".
func joinLinesWithCodeMap(fr *covstore.FileRecord, cm *analyzer.CodeMap) {
	for line, lr := range fr.Lines {
		executable := cm.IsExecutable(line)
		lr.Executable = executable
		if !executable && (lr.Executed || lr.Covered || lr.ExecutionCount != 0) {
			lr.Executed = false
			lr.Covered = false
			lr.ExecutionCount = 0
			fr.Diagnostics = append(fr.Diagnostics, fmt.Sprintf(
				"patch-up: line %d demoted to non-executable by code map; execution state reset", line))
		}
	}
}

// markFunctionsExecuted implements step 2: a function is executed if
// any CODE line within its body executed, independent of whether
// track_function itself ever fired (e.g. a function entered only via
// the hook-tracked fallback, which never calls track_function). It
// also derives FunctionRecord.Covered the same way from Covered lines.
// The external API only exposes mark_line_covered, so "a function is
// covered" is never asserted directly; it is always a derived property
// of its lines, exactly like a file counting as covered once any of
// its lines is.
func markFunctionsExecuted(fr *covstore.FileRecord) {
	for _, fn := range fr.Functions {
		for _, line := range fn.Lines {
			lr, ok := fr.Lines[line]
			if !ok {
				continue
			}
			if !fn.Executed && lr.Executed && lr.LineType == analyzer.Code {
				fn.Executed = true
			}
			if !fn.Covered && lr.Covered {
				fn.Covered = true
			}
		}
	}
}

// resolvePendingParentLinks implements step 5: a block observed by the
// tracker before the engine registered it from the code map is seeded
// with an empty parent_id (see tracker.Callbacks.TrackBlock); once the
// code map is available, fill in the real parent.
func resolvePendingParentLinks(fr *covstore.FileRecord, cm *analyzer.CodeMap) int {
	fixed := 0
	for _, b := range cm.Blocks {
		if b.ParentID == "" {
			continue
		}
		br, ok := fr.Blocks[b.ID]
		if ok && br.ParentID == "" {
			br.ParentID = b.ParentID
			fixed++
		}
	}
	return fixed
}

// reattachOrphanedBlocks implements step 4: any block whose parent_id
// still does not resolve to a known block (a parent the code map never
// mentioned, or malformed dynamic registration) is reattached to root.
func reattachOrphanedBlocks(fr *covstore.FileRecord) int {
	fixed := 0
	for id, br := range fr.Blocks {
		if br.ParentID == "" || br.ParentID == "root" || id == "root" {
			continue
		}
		if _, ok := fr.Blocks[br.ParentID]; !ok {
			br.ParentID = "root"
			fixed++
		}
	}
	return fixed
}

// propagateBlockExecution implements step 3: a block is executed iff
// any of its contained executable lines executed, with the outcome
// propagated to every ancestor. This walks the CodeMap's own
// StartLine/EndLine ranges rather than covstore.MarkBlockExecuted's
// execution-count bump, since patch-up must be idempotent and
// execution_count is reserved for tracker-observed hits.
func propagateBlockExecution(fr *covstore.FileRecord, cm *analyzer.CodeMap) {
	for _, b := range cm.Blocks {
		if b.Kind == "root" {
			continue
		}
		if anyExecutableLineExecuted(fr, b.StartLine, b.EndLine) {
			markExecutedUpward(fr, b.ID)
		}
	}
}

func anyExecutableLineExecuted(fr *covstore.FileRecord, start, end int) bool {
	for line := start; line <= end; line++ {
		lr, ok := fr.Lines[line]
		if ok && lr.Executable && lr.Executed {
			return true
		}
	}
	return false
}

func markExecutedUpward(fr *covstore.FileRecord, blockID string) {
	// Walks the full ancestor chain even when a block is already marked:
	// a tracker-marked block may have gained its parent link only during
	// this pass, so its ancestors can still be unmarked.
	id := blockID
	for id != "" {
		b, ok := fr.Blocks[id]
		if !ok {
			return
		}
		b.Executed = true
		if id == b.ParentID {
			return // guard against a malformed self-referential parent
		}
		id = b.ParentID
	}
}
