package enrich

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/connerohnesorge/spry/internal/notebook"
	"github.com/connerohnesorge/spry/internal/pi"
)

// InjectedSource describes where an InjectedNode's content came from
// (spec §3).
type InjectedSource struct {
	IsRefToBinary bool
	ImportedFrom  string
	Original      string // set when IsRefToBinary is false
	Encoding      string // "UTF-8" when IsRefToBinary is true
	Stream        func() (io.ReadCloser, error)
}

// InjectedNode is a synthetic code node materialized from a spec/
// import block (spec §4.4.1).
type InjectedNode struct {
	Meta   string
	Value  string
	Source InjectedSource
}

// Node is one element of an enriched document: either a Notebook cell
// carried through unchanged, or a synthetic InjectedNode produced by
// spec-block expansion.
type Node struct {
	Cell     notebook.Cell
	Injected *InjectedNode
}

// PlacementPolicy controls where injected nodes land relative to the
// spec block that produced them.
type PlacementPolicy string

const (
	// PlacementRetain keeps the spec node and inserts injected nodes
	// immediately after it (spec §4.4.1 default).
	PlacementRetain PlacementPolicy = "retain-after-injections"
	// PlacementRemove replaces the spec node with the injected nodes.
	PlacementRemove PlacementPolicy = "remove-before-injections"
)

// SpecBlockConfig configures expansion.
type SpecBlockConfig struct {
	// IsSpecLanguage reports whether a CodeCell's language marks it as
	// a spec/import block. Defaults to language == "import".
	IsSpecLanguage func(language string) bool
	Placement      PlacementPolicy
	// FS resolves local globs; defaults to the OS filesystem.
	FS afero.Fs
	// DefaultBase is used when a spec line has no --base flag;
	// defaults to ".".
	DefaultBase string
}

func (c SpecBlockConfig) normalized() SpecBlockConfig {
	if c.IsSpecLanguage == nil {
		c.IsSpecLanguage = func(language string) bool { return language == "import" }
	}
	if c.Placement == "" {
		c.Placement = PlacementRetain
	}
	if c.FS == nil {
		c.FS = afero.NewOsFs()
	}
	if c.DefaultBase == "" {
		c.DefaultBase = "."
	}

	return c
}

// ExpandSpecBlocks walks nb's cells in order and expands every spec
// block into Nodes, applying cfg.Placement per block. Nodes are built
// into a fresh slice in one left-to-right pass; nb.Cells is not
// mutated, so an expansion never shifts the position of a later block.
func ExpandSpecBlocks(nb *notebook.Notebook, cfg SpecBlockConfig) ([]Node, error) {
	cfg = cfg.normalized()

	nodes := make([]Node, 0, len(nb.Cells))

	for _, cell := range nb.Cells {
		code, ok := cell.(*notebook.CodeCell)
		if !ok || !cfg.IsSpecLanguage(code.Language) {
			nodes = append(nodes, Node{Cell: cell})

			continue
		}

		injected, err := expandOneSpecBlock(code, cfg)
		if err != nil {
			return nil, err
		}

		switch cfg.Placement {
		case PlacementRemove:
			for _, in := range injected {
				nodes = append(nodes, Node{Injected: in})
			}
		default:
			nodes = append(nodes, Node{Cell: cell})
			for _, in := range injected {
				nodes = append(nodes, Node{Injected: in})
			}
		}
	}

	return nodes, nil
}

func expandOneSpecBlock(code *notebook.CodeCell, cfg SpecBlockConfig) ([]*InjectedNode, error) {
	var out []*InjectedNode

	scanner := bufio.NewScanner(strings.NewReader(code.Source))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		globOrURL := fields[1]
		rest := strings.Join(fields[2:], " ")
		linePI := pi.Parse(fields[2:], nil)

		if isHTTPURL(globOrURL) {
			out = append(out, remoteInjectedNode(globOrURL, rest, linePI))

			continue
		}

		bases := linePI.GetTextFlagValues("base")
		if len(bases) == 0 {
			bases = []string{cfg.DefaultBase}
		}

		for _, base := range bases {
			matched, err := localInjectedNodes(cfg.FS, base, globOrURL, fields[0] == "utf8", rest)
			if err != nil {
				return nil, err
			}

			out = append(out, matched...)
		}
	}

	return out, scanner.Err()
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func remoteInjectedNode(url, rest string, linePI pi.PI) *InjectedNode {
	isBinary := linePI.HasFlag("is-binary")

	meta := buildMeta("", url, isBinary, rest)

	return &InjectedNode{
		Meta:  meta,
		Value: "",
		Source: InjectedSource{
			IsRefToBinary: true,
			ImportedFrom:  url,
			Encoding:      "UTF-8",
			Stream:        nil, // remote content is not fetched during expansion; no stream is attached
		},
	}
}

func localInjectedNodes(fs afero.Fs, base, glob string, treatAsBinary bool, rest string) ([]*InjectedNode, error) {
	pattern := filepath.Join(base, glob)

	matches, err := afero.Glob(fs, pattern)
	if err != nil {
		return nil, err
	}

	var out []*InjectedNode

	for _, m := range matches {
		relPath := m
		if rp, err := filepath.Rel(base, m); err == nil {
			relPath = rp
		}

		if treatAsBinary {
			meta := buildMeta(relPath, "", true, rest)

			path := m // capture for the closure
			out = append(out, &InjectedNode{
				Meta:  meta,
				Value: "",
				Source: InjectedSource{
					IsRefToBinary: true,
					ImportedFrom:  m,
					Encoding:      "UTF-8",
					Stream: func() (io.ReadCloser, error) {
						return fs.Open(path)
					},
				},
			})

			continue
		}

		content, err := afero.ReadFile(fs, m)
		if err != nil {
			return nil, err
		}

		meta := buildMeta(relPath, "", false, rest)
		out = append(out, &InjectedNode{
			Meta:  meta,
			Value: string(content),
			Source: InjectedSource{
				IsRefToBinary: false,
				ImportedFrom:  m,
				Original:      string(content),
			},
		})
	}

	return out, nil
}

func buildMeta(relPath, url string, isBinary bool, rest string) string {
	var b strings.Builder

	if relPath != "" {
		b.WriteString(relPath)
	}

	if url != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}

		b.WriteString("--import ")
		b.WriteString(url)
	}

	if isBinary {
		b.WriteString(" --is-binary")
	}

	if rest != "" {
		b.WriteByte(' ')
		b.WriteString(rest)
	}

	return strings.TrimSpace(b.String())
}

