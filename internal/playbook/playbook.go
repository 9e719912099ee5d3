// Package playbook implements the Playbook Overlay (spec C3): a view
// over a Notebook that attributes surrounding Markdown narrative to
// each code cell as that cell's instructions.
package playbook

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/connerohnesorge/spry/internal/notebook"
)

// DelimiterKind selects what resets the instructions buffer early,
// independent of code cell boundaries (spec §4.3).
type DelimiterKind int

const (
	// HeadingDelimiter resets the buffer at every Markdown heading of
	// the configured depth.
	HeadingDelimiter DelimiterKind = iota
	// ThematicBreakDelimiter resets the buffer at every thematic break
	// ("---" on its own line).
	ThematicBreakDelimiter
)

// Delimiter configures buffer-reset boundaries. HeadingDepth is
// meaningful only when Kind is HeadingDelimiter.
type Delimiter struct {
	Kind        DelimiterKind
	HeadingDepth int
}

// DefaultDelimiter matches spec §4.3's default: a level-2 heading.
func DefaultDelimiter() Delimiter {
	return Delimiter{Kind: HeadingDelimiter, HeadingDepth: 2}
}

// Playbook is the C3 overlay result. Empty buffers are omitted rather
// than stored as "" (spec §4.3 invariant).
type Playbook struct {
	Instructions    string
	CellInstructions map[int]string // keyed by index into the source Notebook.Cells
	Appendix        string
}

var md = goldmark.New()

// Build partitions nb's Markdown narrative around its code cells
// according to delim.
func Build(nb *notebook.Notebook, delim Delimiter) *Playbook {
	pb := &Playbook{CellInstructions: make(map[int]string)}

	var buffer strings.Builder
	seenFirstCode := false
	lastCodeIdx := -1

	flush := func(idx int) {
		content := buffer.String()
		buffer.Reset()

		if strings.TrimSpace(content) == "" {
			return
		}

		if !seenFirstCode {
			pb.Instructions = content

			return
		}

		pb.CellInstructions[idx] = content
	}

	for i, cell := range nb.Cells {
		switch c := cell.(type) {
		case *notebook.MarkdownCell:
			appendWithResets(&buffer, c.Text, delim)
		case *notebook.CodeCell:
			flush(i)
			seenFirstCode = true
			lastCodeIdx = i
		}
	}

	if lastCodeIdx >= 0 {
		content := buffer.String()
		if strings.TrimSpace(content) != "" {
			pb.Appendix = content
		}
	} else {
		// No code cells at all: flush never ran, so the accumulated
		// buffer is the document's only narrative and becomes
		// Instructions.
		content := buffer.String()
		if strings.TrimSpace(content) != "" {
			pb.Instructions = content
		}
	}

	return pb
}

// appendWithResets appends text to buf, clearing buf at each delimiter
// boundary found within text so buf always starts at or after the
// nearest preceding delimiter.
func appendWithResets(buf *strings.Builder, mdText string, delim Delimiter) {
	bounds := delimiterBounds([]byte(mdText), delim)

	offset := 0
	for _, b := range bounds {
		buf.WriteString(mdText[offset:b.start])
		buf.Reset()
		offset = b.end
	}

	buf.WriteString(mdText[offset:])
}

type bound struct{ start, end int }

// delimiterBounds locates every top-level heading (at the configured
// depth) or thematic break in content, in document order.
func delimiterBounds(content []byte, delim Delimiter) []bound {
	reader := text.NewReader(content)
	doc := md.Parser().Parse(reader)

	var bounds []bound

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if !matchesDelimiter(n, delim) {
			continue
		}

		span, ok := lineSpanOf(n)
		if !ok {
			continue
		}

		bounds = append(bounds, bound{start: span.start, end: span.end})
	}

	return bounds
}

func matchesDelimiter(n ast.Node, delim Delimiter) bool {
	switch delim.Kind {
	case HeadingDelimiter:
		h, ok := n.(*ast.Heading)

		return ok && h.Level == delim.HeadingDepth
	case ThematicBreakDelimiter:
		_, ok := n.(*ast.ThematicBreak)

		return ok
	default:
		return false
	}
}

type byteSpan struct{ start, end int }

func lineSpanOf(n ast.Node) (byteSpan, bool) {
	type linesNode interface {
		Lines() *text.Segments
	}

	ln, ok := n.(linesNode)
	if !ok {
		return byteSpan{}, false
	}

	segs := ln.Lines()
	if segs.Len() == 0 {
		return byteSpan{}, false
	}

	first := segs.At(0)
	last := segs.At(segs.Len() - 1)

	return byteSpan{start: first.Start, end: last.Stop}, true
}
