package source

import "testing"

func TestLineCount(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"empty", "", 0},
		{"no trailing newline", "a\nb\nc", 3},
		{"trailing newline", "a\nb\nc\n", 3},
		{"single line no newline", "a", 1},
		{"blank lines", "\n\n\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New([]byte(tt.content))
			if got := b.LineCount(); got != tt.want {
				t.Errorf("LineCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLineContents(t *testing.T) {
	b := New([]byte("local x = 1\nif x then\n  return x\nend\n"))
	want := []string{"local x = 1", "if x then", "  return x", "end"}
	for i, w := range want {
		line := i + 1
		if got := string(b.Line(line)); got != w {
			t.Errorf("Line(%d) = %q, want %q", line, got, w)
		}
	}
}

func TestPositionToLine(t *testing.T) {
	content := "aaa\nbbb\nccc\n"
	b := New([]byte(content))
	for offset := 0; offset < len(content); offset++ {
		line := b.PositionToLine(offset)
		start, end := b.LineStart(line), b.LineStart(line)+len(b.Line(line))
		if offset < start || offset > end {
			t.Errorf("PositionToLine(%d) = %d, out of that line's span [%d,%d]", offset, line, start, end)
		}
	}
}

func TestHashStableForSameContent(t *testing.T) {
	a := New([]byte("same"))
	b := New([]byte("same"))
	if a.Hash() != b.Hash() {
		t.Error("identical content produced different hashes")
	}
	c := New([]byte("different"))
	if a.Hash() == c.Hash() {
		t.Error("different content produced the same hash")
	}
}
