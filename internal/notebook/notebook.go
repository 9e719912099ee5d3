// Package notebook implements the Markdown-to-cells parser (spec C2):
// it turns a Markdown document into an ordered sequence of Markdown and
// Code cells, each CodeCell carrying a parsed Processing Instruction
// header and optional JSON5 attributes.
package notebook

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/connerohnesorge/spry/internal/pi"
)

// CellKind discriminates the Cell tagged variant (spec §3).
type CellKind int

const (
	KindMarkdown CellKind = iota
	KindCode
)

// Cell is implemented by MarkdownCell and CodeCell. Consumers pick the
// concrete type with a type switch rather than a method table — there
// is no behavior that varies per kind beyond the fields each carries.
type Cell interface {
	Kind() CellKind
	Lines() (start, end int)
}

// MarkdownCell is a contiguous run of Markdown narrative between code
// fences.
type MarkdownCell struct {
	Text       string
	StartLine  int
	EndLine    int
}

func (c *MarkdownCell) Kind() CellKind          { return KindMarkdown }
func (c *MarkdownCell) Lines() (int, int)       { return c.StartLine, c.EndLine }

// CodeCell is a single fenced code block.
type CodeCell struct {
	Language  string
	Info      string
	Attrs     map[string]any
	Source    string
	StartLine int
	EndLine   int
	PI        pi.PI
}

func (c *CodeCell) Kind() CellKind    { return KindCode }
func (c *CodeCell) Lines() (int, int) { return c.StartLine, c.EndLine }

// IssueKind enumerates non-fatal parse issues (spec §7 ParseIssues).
type IssueKind string

const FenceIssue IssueKind = "fence-issue"

// Issue is one accumulated, non-fatal parse problem.
type Issue struct {
	Kind       IssueKind
	Message    string
	StartLine  int
	EndLine    int
}

// DocClassifyEntry is one entry of the frontmatter `doc-classify` key
// (spec §6).
type DocClassifyEntry struct {
	Select string `yaml:"select"`
	Role   string `yaml:"role"`
}

// Notebook is the immutable parse result for one Source (spec §3
// Lifecycle).
type Notebook struct {
	Cells       []Cell
	FM          any
	DocClassify []DocClassifyEntry
	Issues      []Issue
	ASTCache    map[int]ast.Node
	Provenance  string
}

var md = goldmark.New()

// Parse turns content into a Notebook. provenance is an opaque label
// (file path, URL, or "prime") carried through for error messages; it
// does not affect parsing.
func Parse(content []byte, provenance string) (*Notebook, error) {
	fm, rest, lineOffset, err := stripFrontmatter(content)
	if err != nil {
		return nil, err
	}

	nb := &Notebook{
		FM:         fm,
		ASTCache:   make(map[int]ast.Node),
		Provenance: provenance,
	}
	nb.DocClassify = extractDocClassify(fm)

	lines := splitLinesWithOffsets(rest)
	reader := text.NewReader(rest)
	doc := md.Parser().Parse(reader)

	fences := collectFences(doc, rest, lines)

	cursor := 1 // 1-based line number within rest, before lineOffset is added
	for _, f := range fences {
		if f.openLine > cursor {
			addMarkdownCell(nb, rest, lines, cursor, f.openLine-1, lineOffset)
		}

		cell, issue := buildCodeCell(f, rest, lines)
		cell.StartLine += lineOffset
		cell.EndLine += lineOffset
		nb.Cells = append(nb.Cells, cell)
		nb.ASTCache[len(nb.Cells)-1] = f.node

		if issue != nil {
			issue.StartLine += lineOffset
			issue.EndLine += lineOffset
			nb.Issues = append(nb.Issues, *issue)
		}

		cursor = f.closeLine + 1
	}

	if cursor <= len(lines) {
		addMarkdownCell(nb, rest, lines, cursor, len(lines), lineOffset)
	}

	return nb, nil
}

func extractDocClassify(fm any) []DocClassifyEntry {
	m, ok := fm.(map[string]any)
	if !ok {
		return nil
	}

	raw, ok := m["doc-classify"]
	if !ok {
		return nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil
	}

	var out []DocClassifyEntry
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		out = append(out, DocClassifyEntry{
			Select: asString(entry["select"]),
			Role:   asString(entry["role"]),
		})
	}

	return out
}

func asString(v any) string {
	s, _ := v.(string)

	return s
}

// addMarkdownCell appends a MarkdownCell for rest's lines [fromLine,
// toLine] (1-based, inclusive), suppressing it if blank (spec §3
// invariant: "empty cells are suppressed").
func addMarkdownCell(nb *Notebook, rest []byte, lines []lineSpan, fromLine, toLine, lineOffset int) {
	if fromLine > toLine || fromLine < 1 || toLine > len(lines) {
		return
	}

	start := lines[fromLine-1].start
	end := lines[toLine-1].end
	span := string(rest[start:end])

	if strings.TrimSpace(span) == "" {
		return
	}

	nb.Cells = append(nb.Cells, &MarkdownCell{
		Text:      span,
		StartLine: fromLine + lineOffset,
		EndLine:   toLine + lineOffset,
	})
}

type lineSpan struct{ start, end int }

// splitLinesWithOffsets indexes content by 1-based line number, giving
// the byte range of each line including its trailing newline (except
// possibly the last line).
func splitLinesWithOffsets(content []byte) []lineSpan {
	var spans []lineSpan
	start := 0

	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			spans = append(spans, lineSpan{start: start, end: i + 1})
			start = i + 1
		}
	}

	if start < len(content) {
		spans = append(spans, lineSpan{start: start, end: len(content)})
	}

	return spans
}
