// Package comments implements the line-accurate multiline comment
// scan. It is a single forward byte pass,
// independent of the parser: the Lua grammar's AST carries no trivia
// spans, so comment/long-string extents have to be recovered directly
// from the source text.
package comments

import "github.com/covstar/luacov/internal/luacov/source"

// Map reports, for every 1-based line, whether any non-whitespace byte
// on that line falls inside a block comment (--[[ ... ]], including any
// long-bracket level [=[ ... ]=]).
type Map struct {
	inBlockComment []bool // index 0 unused; 1-based lines
}

// InBlockComment reports whether line is inside a block comment.
func (m *Map) InBlockComment(line int) bool {
	if line < 1 || line >= len(m.inBlockComment) {
		return false
	}
	return m.inBlockComment[line]
}

type scanState int

const (
	stateCode scanState = iota
	stateLineComment
	stateBlockComment
	stateLongString
	stateShortString
)

// Scan performs the single forward pass over buf and returns the
// per-line block-comment map.
//
// Markers recognized: line comment "--", block comment open "--[[" (or
// "--[=[", "--[==[", ...), block comment / long string close "]]" (or
// "]=]", ...) at the matching level, long string open "[[" (or
// "[=[", ...), and short string quotes ' and " (which suppress marker
// recognition until the matching unescaped quote, so a quoted "--[["
// does not fool the scanner).
func Scan(buf *source.Buffer) *Map {
	content := buf.Bytes()
	n := buf.LineCount()
	m := &Map{inBlockComment: make([]bool, n+1)}

	state := stateCode
	longLevel := -1 // bracket level for the currently open long string/comment
	shortQuote := byte(0)
	line := 1
	anyCommentOnLine := false

	flushLine := func() {
		// anyCommentOnLine is set both while scanning block-comment
		// bytes and on the line that closes one, so the closing "]]"
		// line is reported even though the state is back to code by
		// the time the line ends.
		if anyCommentOnLine {
			m.inBlockComment[line] = true
		}
		line++
		anyCommentOnLine = false
		if state == stateLineComment {
			state = stateCode
		}
	}

	i := 0
	for i < len(content) {
		c := content[i]

		if c == '\n' {
			flushLine()
			i++
			continue
		}

		switch state {
		case stateCode:
			if isSpaceOrTab(c) {
				i++
				continue
			}

			if c == '-' && i+1 < len(content) && content[i+1] == '-' {
				// "--" seen. Check for a block-comment opener "--[=*[" right after.
				level, ok := longBracketOpen(content, i+2)
				if ok {
					state = stateBlockComment
					longLevel = level
					anyCommentOnLine = true
					i += 2 + bracketMarkerLen(level)
					continue
				}
				// Plain line comment: inert for the rest of the physical line,
				// and any block-comment opener later on this line is inert too
				// (single-line comment marker takes precedence).
				state = stateLineComment
				i += 2
				continue
			}

			if c == '[' {
				if level, ok := longBracketOpen(content, i); ok {
					state = stateLongString
					longLevel = level
					i += bracketMarkerLen(level)
					continue
				}
			}

			if c == '\'' || c == '"' {
				state = stateShortString
				shortQuote = c
				i++
				continue
			}

			i++

		case stateLineComment:
			i++

		case stateBlockComment:
			if !isSpaceOrTab(c) {
				anyCommentOnLine = true
			}
			if closed, width := longBracketClose(content, i, longLevel); closed {
				state = stateCode
				i += width
				continue
			}
			i++

		case stateLongString:
			if closed, width := longBracketClose(content, i, longLevel); closed {
				state = stateCode
				i += width
				continue
			}
			i++

		case stateShortString:
			if c == '\\' && i+1 < len(content) {
				i += 2
				continue
			}
			if c == shortQuote {
				state = stateCode
			}
			i++
		}
	}
	flushLine()

	return m
}

func isSpaceOrTab(c byte) bool { return c == ' ' || c == '\t' || c == '\r' }

// longBracketOpen checks for "[=*[" starting at content[i]. Returns the
// bracket level (count of '=') and true on match.
func longBracketOpen(content []byte, i int) (level int, ok bool) {
	if i >= len(content) || content[i] != '[' {
		return 0, false
	}
	j := i + 1
	for j < len(content) && content[j] == '=' {
		j++
	}
	if j < len(content) && content[j] == '[' {
		return j - i - 1, true
	}
	return 0, false
}

// bracketMarkerLen returns the byte length of "[" + "="*level + "[".
func bracketMarkerLen(level int) int { return level + 2 }

// longBracketClose checks for "]=*]" at content[i] matching the given
// level. Returns whether it matched and the width consumed.
func longBracketClose(content []byte, i, level int) (bool, int) {
	if i >= len(content) || content[i] != ']' {
		return false, 0
	}
	j := i + 1
	eq := 0
	for j < len(content) && content[j] == '=' {
		j++
		eq++
	}
	if eq == level && j < len(content) && content[j] == ']' {
		return true, j - i + 1
	}
	return false, 0
}
