package enrich

import (
	"github.com/connerohnesorge/spry/internal/notebook"
)

// Result is the catalog produced by running all three enrichment
// sub-passes over a Notebook, in the strict order spec §4.4 requires.
type Result struct {
	Nodes      []Node
	Partials   *PartialRegistry
	Spawnables *SpawnableCatalog
}

// Options configures the full enrichment pipeline.
type Options struct {
	SpecBlock       SpecBlockConfig
	DuplicatePolicy DuplicatePolicy
	IsSpawnable     IsSpawnableLanguage
}

// Enrich runs spec-block expansion, then partial registration, then
// spawnable detection, over nb.
func Enrich(nb *notebook.Notebook, opts Options) (*Result, error) {
	nodes, err := ExpandSpecBlocks(nb, opts.SpecBlock)
	if err != nil {
		return nil, err
	}

	partials := NewPartialRegistry()
	spawnables := NewSpawnableCatalog()

	for i, node := range nodes {
		code, ok := node.Cell.(*notebook.CodeCell)
		if !ok {
			continue
		}

		if partial, isPartial := asPartial(code); isPartial {
			if err := partials.Register(partial, opts.DuplicatePolicy); err != nil {
				return nil, err
			}

			continue
		}

		if opts.IsSpawnable == nil {
			continue
		}

		if spawnable, isSpawnable := asSpawnable(code, i, opts.IsSpawnable); isSpawnable {
			if err := spawnables.Register(spawnable, opts.DuplicatePolicy); err != nil {
				return nil, err
			}
		}
	}

	return &Result{Nodes: nodes, Partials: partials, Spawnables: spawnables}, nil
}
