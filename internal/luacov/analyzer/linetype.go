package analyzer

import (
	"regexp"
	"strings"

	"github.com/covstar/luacov/internal/luacov/comments"
	"github.com/covstar/luacov/internal/luacov/source"
)

var (
	reLineComment   = regexp.MustCompile(`^--(\[(=*)\[)?`)
	rePureClosing   = regexp.MustCompile(`^(end|else|until|then|do|repeat)\b.*$`)
	reClosingBrkt   = regexp.MustCompile(`^[)\]}]+[,;]?$`)
	reLocalNoAssign = regexp.MustCompile(`^local\s+[A-Za-z_][A-Za-z0-9_]*(\s*,\s*[A-Za-z_][A-Za-z0-9_]*)*\s*$`)
	reReturnIdent   = regexp.MustCompile(`^return\s+[A-Za-z_][A-Za-z0-9_.]*\s*$`)
)

// classifyLines applies the line classification rules
// 1-6, applied in order for every line.
func classifyLines(buf *source.Buffer, cmap *comments.Map, execStartLines map[int]bool) []LineType {
	n := buf.LineCount()
	types := make([]LineType, n+1)

	for line := 1; line <= n; line++ {
		raw := string(buf.Line(line))
		trimmed := strings.TrimSpace(raw)

		switch {
		case execStartLines[line] && cmap.InBlockComment(line):
			// A statement followed by a block-comment opener that does
			// not close on the same line: the statement exists, so the
			// line is CODE, not COMMENT.
			types[line] = Code
		case cmap.InBlockComment(line):
			// Rule 1.
			types[line] = Comment
		case trimmed == "":
			// Rule 2.
			types[line] = Blank
		case reLineComment.MatchString(trimmed) && strings.HasPrefix(trimmed, "--") && !strings.HasPrefix(trimmed, "--[["):
			// Rule 3: a bare "--" line comment (not an opening block
			// marker, which rule 1 already accounted for when it spans
			// lines; a same-line-closing block comment is still inert
			// trivia here since no code precedes it).
			types[line] = Comment
		case execStartLines[line]:
			// Rule 5 takes priority over the structural heuristics in
			// rule 4: any AST node with an executable kind starting on
			// this line makes it CODE, even if it also contains a
			// structural keyword (e.g. "if x then" with a trailing
			// same-line body is still classified by its AST role
			// elsewhere; this line itself is the header, i.e. CODE).
			types[line] = Code
		case isStructuralOnly(trimmed):
			// Rule 4.
			types[line] = Structure
		default:
			// Rule 6.
			if trimmed == "--[[" || strings.HasPrefix(trimmed, "--[[") {
				types[line] = Comment
			} else {
				types[line] = Code
			}
		}
	}
	return types
}

func isStructuralOnly(trimmed string) bool {
	if rePureClosing.MatchString(trimmed) {
		return true
	}
	if reClosingBrkt.MatchString(trimmed) {
		return true
	}
	if reLocalNoAssign.MatchString(trimmed) {
		return true
	}
	if reReturnIdent.MatchString(trimmed) {
		return true
	}
	return false
}

// deriveExecutable projects LineType into the boolean executability
// array per the structural_is_executable policy.
func deriveExecutable(types []LineType, structuralIsExecutable bool) []bool {
	exec := make([]bool, len(types))
	for i, t := range types {
		switch t {
		case Code:
			exec[i] = true
		case Structure:
			exec[i] = structuralIsExecutable
		default:
			exec[i] = false
		}
	}
	return exec
}
