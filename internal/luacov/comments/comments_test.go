package comments

import (
	"testing"

	"github.com/covstar/luacov/internal/luacov/source"
)

func scanLines(t *testing.T, text string) *Map {
	t.Helper()
	return Scan(source.New([]byte(text)))
}

func TestLineComment(t *testing.T) {
	m := scanLines(t, "local x = 1\n-- a comment\nreturn x\n")
	for _, l := range []int{1, 2, 3} {
		if m.InBlockComment(l) {
			t.Errorf("line %d: single-line comments must not be reported as block comments", l)
		}
	}
}

func TestBlockCommentMultiline(t *testing.T) {
	m := scanLines(t, "local x = 1\n--[[\nblock comment\nspanning lines\n]]\nreturn x\n")
	for _, l := range []int{2, 3, 4, 5} {
		if !m.InBlockComment(l) {
			t.Errorf("line %d should be in block comment", l)
		}
	}
	for _, l := range []int{1, 6} {
		if m.InBlockComment(l) {
			t.Errorf("line %d should not be in block comment", l)
		}
	}
}

func TestLongBracketLevel(t *testing.T) {
	m := scanLines(t, "--[==[\nnested ]] still open\n]==]\nx = 1\n")
	if !m.InBlockComment(2) {
		t.Error("line 2 should be inside the level-2 block comment despite a ]] inside")
	}
	if m.InBlockComment(4) {
		t.Error("line 4 is after the comment closes")
	}
}

func TestLongStringNotReportedAsComment(t *testing.T) {
	m := scanLines(t, "local s = [[\nraw text\n]]\n")
	for _, l := range []int{1, 2, 3} {
		if m.InBlockComment(l) {
			t.Errorf("long string literal on line %d must not be classified as a comment", l)
		}
	}
}

func TestQuotedStringDoesNotFoolScanner(t *testing.T) {
	m := scanLines(t, "local s = \"--[[ not a comment\"\nlocal t = 2\n")
	if m.InBlockComment(1) || m.InBlockComment(2) {
		t.Error("a string literal containing comment-like text must not open a block comment")
	}
}

func TestSingleLineMarkerBeforeBlockOpenIsInert(t *testing.T) {
	// "-- [[" (with a space) is just a line comment; no block comment opens.
	m := scanLines(t, "-- [[ still just a comment\nx = 1\n")
	if m.InBlockComment(1) || m.InBlockComment(2) {
		t.Error("space-separated bracket after -- must not start a block comment")
	}
}

func TestUnterminatedBlockCommentRunsToEOF(t *testing.T) {
	m := scanLines(t, "--[[\nnever closes\n")
	if !m.InBlockComment(2) {
		t.Error("unterminated block comment should cover remaining lines")
	}
}
