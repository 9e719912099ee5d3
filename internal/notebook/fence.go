package notebook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/connerohnesorge/spry/internal/pi"
)

// fenceSpan is one located fenced code block: its 1-based line range
// within the frontmatter-stripped document, and the goldmark node it
// came from.
type fenceSpan struct {
	openLine  int
	closeLine int
	node      ast.Node
}

// collectFences walks doc for every FencedCodeBlock, in document
// order, and resolves each one's source line span.
func collectFences(doc ast.Node, source []byte, lines []lineSpan) []fenceSpan {
	var out []fenceSpan

	prevClose := 0

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		openLine := lineOf(fcb.Info, source, lines)
		if fcb.Info == nil {
			// No info segment to anchor on: the opening fence is the first
			// fence-marker line after the previous fence.
			for l := prevClose + 1; l <= len(lines); l++ {
				trimmed := strings.TrimLeft(string(source[lines[l-1].start:lines[l-1].end]), " \t")
				if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
					openLine = l

					break
				}
			}
		}

		closeLine := closingFenceLine(fcb, source, lines, openLine)
		prevClose = closeLine

		out = append(out, fenceSpan{openLine: openLine, closeLine: closeLine, node: n})

		return ast.WalkSkipChildren, nil
	})

	return out
}

// lineOf resolves the 1-based line number containing info's segment,
// falling back to line 1 when info is nil. A fence with no info string
// has a nil info; collectFences locates such fences itself.
func lineOf(info *ast.Text, source []byte, lines []lineSpan) int {
	if info == nil {
		return 1
	}

	return lineOfOffset(info.Segment.Start, lines)
}

func lineOfOffset(offset int, lines []lineSpan) int {
	idx := sort.Search(len(lines), func(i int) bool {
		return lines[i].end > offset
	})

	if idx >= len(lines) {
		idx = len(lines) - 1
	}

	return idx + 1
}

// closingFenceLine finds the line after the fence body that the source
// text confirms is a fence-closing delimiter line (a line consisting
// solely of three or more backticks or tildes). If no such line exists
// — an unterminated fence, tolerated per spec §4.2 — it returns the
// document's last line.
func closingFenceLine(fcb *ast.FencedCodeBlock, source []byte, lines []lineSpan, openLine int) int {
	candidate := openLine + 1

	segs := fcb.Lines()
	if segs.Len() > 0 {
		last := segs.At(segs.Len() - 1)
		candidate = lineOfOffset(last.Stop-1, lines) + 1
	}

	if candidate >= 1 && candidate <= len(lines) && isFenceDelimiterLine(source, lines[candidate-1]) {
		return candidate
	}

	return len(lines)
}

func isFenceDelimiterLine(source []byte, span lineSpan) bool {
	trimmed := strings.TrimSpace(string(source[span.start:span.end]))
	if len(trimmed) < 3 {
		return false
	}

	first := trimmed[0]
	if first != '`' && first != '~' {
		return false
	}

	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] != first {
			return false
		}
	}

	return true
}

// buildCodeCell converts a located fence into a CodeCell, parsing its
// info line into language/info/attrs/PI per spec §4.2, and producing a
// fence-issue Issue when the trailing JSON5 attribute object fails to
// parse.
func buildCodeCell(f fenceSpan, source []byte, lines []lineSpan) (*CodeCell, *Issue) {
	fcb := f.node.(*ast.FencedCodeBlock)

	var infoText string
	if fcb.Info != nil {
		infoText = string(fcb.Info.Segment.Value(source))
	}

	language, remainder := splitLanguage(infoText)

	infoPart, attrsText := splitAttrsTrailer(remainder)

	var attrs map[string]any
	var issue *Issue

	if attrsText != "" {
		normalized := json5ToJSON([]byte(attrsText))
		if err := json.Unmarshal(normalized, &attrs); err != nil {
			issue = &Issue{
				Kind:      FenceIssue,
				Message:   fmt.Sprintf("malformed attribute trailer: %s", err),
				StartLine: f.openLine,
				EndLine:   f.closeLine,
			}
			attrs = map[string]any{}
		}
	}

	cell := &CodeCell{
		Language:  strings.ToLower(language),
		Info:      strings.TrimSpace(infoPart),
		Attrs:     attrs,
		Source:    segmentsText(fcb.Lines(), source),
		StartLine: f.openLine,
		EndLine:   f.closeLine,
		PI:        pi.Parse(strings.TrimSpace(infoPart), nil),
	}

	return cell, issue
}

func splitLanguage(info string) (language, remainder string) {
	trimmed := strings.TrimLeft(info, " \t")

	idx := strings.IndexAny(trimmed, " \t")
	if idx < 0 {
		return trimmed, ""
	}

	return trimmed[:idx], trimmed[idx+1:]
}

// splitAttrsTrailer splits remainder at its first '{', returning the
// free-form info text before it and the brace expression (including
// braces) from there to the end of the string.
func splitAttrsTrailer(remainder string) (info, attrs string) {
	idx := strings.IndexByte(remainder, '{')
	if idx < 0 {
		return remainder, ""
	}

	return remainder[:idx], remainder[idx:]
}

func segmentsText(segs *text.Segments, source []byte) string {
	var b strings.Builder

	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		b.Write(seg.Value(source))
	}

	return b.String()
}
