package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Span is one chunk of normalized document text. Start and End are byte
// offsets into the normalized text, not the raw upload.
type Span struct {
	Text  string
	Start int
	End   int
}

// Chunker splits normalized text into fixed-size overlapping windows,
// preferring to break at whitespace so words stay intact.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 || overlap >= size {
		overlap = 100
	}
	return &Chunker{size: size, overlap: overlap}
}

func (c *Chunker) Split(input string) []Span {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	if len(input) <= c.size {
		return []Span{{Text: input, Start: 0, End: len(input)}}
	}

	var spans []Span
	start := 0
	for start < len(input) {
		end := start + c.size
		if end < len(input) {
			// Walk back to the last space inside the window. Without one,
			// cut mid-word but never mid-rune.
			if cut := strings.LastIndexByte(input[start:end], ' '); cut > 0 {
				end = start + cut
			} else {
				for end > start && !utf8.RuneStart(input[end]) {
					end--
				}
				if end == start {
					_, n := utf8.DecodeRuneInString(input[start:])
					end = start + n
				}
			}
		} else {
			end = len(input)
		}
		if span, ok := trimSpan(input, start, end); ok {
			spans = append(spans, span)
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		for next < len(input) && !utf8.RuneStart(input[next]) {
			next++
		}
		start = next
	}
	return spans
}

// trimSpan shrinks [start,end) to exclude surrounding whitespace, keeping
// the offsets pointing at the retained text.
func trimSpan(input string, start, end int) (Span, bool) {
	for start < end && isSpace(input[start]) {
		start++
	}
	for end > start && isSpace(input[end-1]) {
		end--
	}
	if start >= end {
		return Span{}, false
	}
	return Span{Text: input[start:end], Start: start, End: end}, true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Normalize strips markdown structure down to plain text. Headings, list
// markers, emphasis and link syntax are dropped; code block contents are
// kept verbatim. Chunk offsets refer to this normalized form.
func Normalize(input string) string {
	source := []byte(input)
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			blockBreak(&sb)
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.FencedCodeBlock:
			writeLines(&sb, t, source)
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			writeLines(&sb, t, source)
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			sb.Write(t.URL(source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func blockBreak(sb *strings.Builder) {
	s := sb.String()
	if s == "" || strings.HasSuffix(s, "\n\n") {
		return
	}
	if strings.HasSuffix(s, "\n") {
		sb.WriteByte('\n')
		return
	}
	sb.WriteString("\n\n")
}

func writeLines(sb *strings.Builder, n ast.Node, source []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
}
