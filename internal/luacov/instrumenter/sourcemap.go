package instrumenter

// LineTag classifies one line of instrumented output.
type LineTag int

const (
	Original LineTag = iota
	LineTracking
	FunctionTracking
	BlockTracking
)

func (t LineTag) String() string {
	switch t {
	case Original:
		return "ORIGINAL"
	case LineTracking:
		return "LINE_TRACKING"
	case FunctionTracking:
		return "FUNCTION_TRACKING"
	case BlockTracking:
		return "BLOCK_TRACKING"
	}
	return "UNKNOWN"
}

// SourceMapEntry records one emitted output line's provenance.
type SourceMapEntry struct {
	Tag          LineTag
	OriginalLine int    // the original line this output line corresponds to or annotates
	OriginalText string // verbatim pre-rewrite text, set only when Tag == Original
}

// SourceMap is built alongside the rewritten output: the rewriter
// appends each output line's entry as it emits that line.
// Entries are 1-based; index 0 is unused.
type SourceMap struct {
	Entries []SourceMapEntry
}

func newSourceMap(capacity int) *SourceMap {
	return &SourceMap{Entries: make([]SourceMapEntry, 1, capacity+1)}
}

func (sm *SourceMap) append(tag LineTag, originalLine int) {
	sm.Entries = append(sm.Entries, SourceMapEntry{Tag: tag, OriginalLine: originalLine})
}

// appendOriginal records an ORIGINAL-tagged output line together with
// its verbatim pre-rewrite text. Tracking an original line's literal
// text separately from the emitted output matters because a leaf
// condition on that line is wrapped in place (see rewriter.go's
// lineTextWithConditions): the emitted text itself is no longer
// byte-identical to the source even though the line counts as
// ORIGINAL for every other purpose (diagnostics, error translation).
func (sm *SourceMap) appendOriginal(line int, text string) {
	sm.Entries = append(sm.Entries, SourceMapEntry{Tag: Original, OriginalLine: line, OriginalText: text})
}

// Strip reconstructs the original source from instrumented output,
// using each ORIGINAL entry's recorded verbatim text rather than
// re-reading the (possibly condition-wrapped) emitted bytes, keeping
// the round-trip property: instrument ∘ parse ∘
// strip_tracking = identity (modulo trailing-whitespace
// normalization).
func Strip(sm *SourceMap) []byte {
	var out [][]byte
	for i := 1; i < len(sm.Entries); i++ {
		e := sm.Entries[i]
		if e.Tag == Original {
			out = append(out, trimTrailingSpace([]byte(e.OriginalText)))
		}
	}
	return joinLines(out)
}

func joinLines(lines [][]byte) []byte {
	var out []byte
	for i, l := range lines {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, l...)
	}
	return out
}

func trimTrailingSpace(l []byte) []byte {
	end := len(l)
	for end > 0 && (l[end-1] == ' ' || l[end-1] == '\t' || l[end-1] == '\r') {
		end--
	}
	return l[:end]
}

// OriginalLine returns the original_line for an emitted output line,
// used by the error translator to rewrite "path:line:" prefixes.
func (sm *SourceMap) OriginalLine(outputLine int) (int, bool) {
	if outputLine < 1 || outputLine >= len(sm.Entries) {
		return 0, false
	}
	e := sm.Entries[outputLine]
	if e.OriginalLine == 0 {
		return 0, false
	}
	return e.OriginalLine, true
}
