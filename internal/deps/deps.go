// Package deps implements the Dependency Resolver (spec C6): merges
// explicit per-task dependencies with implicit ones inferred from
// regex patterns declared by other tasks, and detects cycles.
package deps

import (
	"regexp"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"

	"github.com/connerohnesorge/spry/internal/errs"
)

// Node is one entry in the dependency graph's catalog: something with
// an identity and an optional list of regex sources it implicitly
// depends into.
type Node interface {
	ID() string
	ImplicitPatterns() []string
}

// Resolver memoizes compiled implicit-dependency regexes per node and
// answers dependency queries against a fixed catalog (spec §4.6).
type Resolver struct {
	catalog []Node
	regexes map[string][]*regexp.Regexp
	depsCache map[string][]string
}

// NewResolver builds a Resolver over catalog, compiling each node's
// implicit patterns once.
func NewResolver(catalog []Node) *Resolver {
	r := &Resolver{
		catalog:   catalog,
		regexes:   make(map[string][]*regexp.Regexp),
		depsCache: make(map[string][]string),
	}

	return r
}

// compiledFor returns node's compiled regexes, compiling (and
// memoizing) them on first use. Sources that fail to compile are
// appended to issues as errs.ResolverIssue and skipped.
func (r *Resolver) compiledFor(node Node, issues *multierror.Error) []*regexp.Regexp {
	if cached, ok := r.regexes[node.ID()]; ok {
		return cached
	}

	var compiled []*regexp.Regexp

	for _, src := range node.ImplicitPatterns() {
		pattern := src
		if pattern == "*" {
			pattern = ".*"
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			log.Warn().Str("task", node.ID()).Str("pattern", src).Err(err).Msg("implicit-dep pattern failed to compile")

			issues.Errors = append(issues.Errors, &errs.ResolverIssue{TaskID: node.ID(), RegEx: src, Err: err})

			continue
		}

		compiled = append(compiled, re)
	}

	r.regexes[node.ID()] = compiled

	return compiled
}

// ImplicitDeps returns every node ID whose implicit patterns match
// taskID, excluding taskID itself and anything already present in
// explicitDeps.
// Iteration order follows catalog order (spec §4.6 determinism
// contract).
func (r *Resolver) ImplicitDeps(taskID string, explicitDeps []string) ([]string, error) {
	excluded := make(map[string]bool, len(explicitDeps))
	for _, d := range explicitDeps {
		excluded[d] = true
	}

	var issues multierror.Error

	var implicit []string
	seen := make(map[string]bool)

	for _, node := range r.catalog {
		if node.ID() == taskID {
			continue
		}

		for _, re := range r.compiledFor(node, &issues) {
			if re.MatchString(taskID) && !excluded[node.ID()] && !seen[node.ID()] {
				implicit = append(implicit, node.ID())
				seen[node.ID()] = true

				break
			}
		}
	}

	return implicit, issues.ErrorOrNil()
}

// Deps returns the deduplicated union of implicit and explicit
// dependencies, implicit entries first (spec §8 property 3). Results
// are memoized per taskID when useCache is true.
func (r *Resolver) Deps(taskID string, explicitDeps []string, useCache bool) ([]string, error) {
	if useCache {
		if cached, ok := r.depsCache[taskID]; ok {
			return cached, nil
		}
	}

	implicit, err := r.ImplicitDeps(taskID, explicitDeps)

	seen := make(map[string]bool, len(implicit)+len(explicitDeps))

	var out []string
	for _, id := range implicit {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	for _, id := range explicitDeps {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	if useCache {
		r.depsCache[taskID] = out
	}

	return out, err
}

// color marks DFS visitation state for cycle detection.
type color int

const (
	white color = iota
	gray
	black
)

// DetectCycles runs a three-color DFS over allIDs using getExplicit
// to fetch each node's explicit dependency list, reporting every
// cycle reachable from the seed set (spec §4.6).
func DetectCycles(allIDs []string, getExplicit func(id string) []string) [][]string {
	colors := make(map[string]color, len(allIDs))
	var stack []string
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		switch colors[id] {
		case gray:
			cycle := cycleFrom(stack, id)
			log.Warn().Strs("cycle", cycle).Msg("dependency cycle detected")
			cycles = append(cycles, cycle)

			return
		case black:
			return
		}

		colors[id] = gray
		stack = append(stack, id)

		for _, dep := range getExplicit(id) {
			visit(dep)
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
	}

	for _, id := range allIDs {
		if colors[id] == white {
			visit(id)
		}
	}

	return cycles
}

// cycleFrom returns the slice of stack starting at the first
// occurrence of closeAt, representing one detected cycle.
func cycleFrom(stack []string, closeAt string) []string {
	for i, id := range stack {
		if id == closeAt {
			out := make([]string, len(stack)-i)
			copy(out, stack[i:])

			return out
		}
	}

	return []string{closeAt}
}
