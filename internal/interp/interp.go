// Package interp implements the Unsafe Interpolator (spec C8): trusted
// JavaScript-style `${expr}` template interpolation bound against a
// context plus locals, with partial-expansion recursion and an LRU
// cache of compiled templates.
//
// "Unsafe" names the trust boundary, not a defect: templates run
// arbitrary expressions against whatever context they're given, which
// is only safe because the Markdown source is trusted per spec §1.
package interp

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/connerohnesorge/spry/internal/errs"
)

// exprPattern matches one `${...}` segment. The expression may contain
// one level of nested braces (e.g. a map literal passed to partial());
// deeper nesting is not matched.
var exprPattern = regexp.MustCompile(`\$\{((?:[^{}]|\{[^{}]*\})*)\}`)

// Status is the outcome of one interpolation attempt.
type Status string

const (
	StatusUnmodified Status = "unmodified"
	StatusMutated    Status = "mutated"
)

// Result mirrors the JS contract's `{ status, error?, source? }` shape:
// a successful run reports Status; a thrown evaluation error leaves
// Status zero and Err/Source populated.
type Result struct {
	Text   string
	Status Status
	Err    error
	Source string
}

// Failed reports whether this Result represents `{ status: false, ... }`.
func (r Result) Failed() bool {
	return r.Err != nil
}

// PartialFunc resolves a `partial(name, locals)` call inside a
// template. shouldInterpolate mirrors the resolved partial's own
// `interpolate` flag (spec §4.4.2): when true, the caller re-enters
// the interpolator on the returned content before substitution.
type PartialFunc func(ctx context.Context, name string, locals map[string]any) (content string, shouldInterpolate bool, err error)

// Options configures one Interpolator (spec §4.8).
type Options struct {
	UseCache       bool
	CtxName        string // default "ctx"
	RecursionLimit int    // default 9
	CacheCapacity  int    // default 256, only relevant when UseCache
}

// Interpolator binds a context value and renders templates against it.
type Interpolator struct {
	ctx            any
	ctxName        string
	recursionLimit int
	useCache       bool
	cache          *templateCache
}

// New builds an Interpolator bound to ctx.
func New(ctx any, opts Options) *Interpolator {
	ctxName := opts.CtxName
	if ctxName == "" {
		ctxName = "ctx"
	}

	limit := opts.RecursionLimit
	if limit == 0 {
		limit = 9
	}

	ip := &Interpolator{
		ctx:            ctx,
		ctxName:        ctxName,
		recursionLimit: limit,
		useCache:       opts.UseCache,
	}

	if ip.useCache {
		ip.cache = newTemplateCache(opts.CacheCapacity)
	}

	return ip
}

// Run is the PI-flag-gated entry point: when shouldInterpolate is
// false the template passes through unchanged with StatusUnmodified
// (spec §4.8's "no PI flag ⇒ no-op" rule). When true it delegates to
// Interpolate.
func (ip *Interpolator) Run(ctx context.Context, template string, locals map[string]any, shouldInterpolate bool, stack []string, partial PartialFunc) Result {
	if !shouldInterpolate {
		return Result{Text: template, Status: StatusUnmodified}
	}

	return ip.Interpolate(ctx, template, locals, stack, partial)
}

// Interpolate renders template against locals plus the bound context,
// unconditionally (callers gating on a PI flag should use Run
// instead). stack carries the chain of partial names already being
// expanded, for recursion-limit reporting.
func (ip *Interpolator) Interpolate(ctx context.Context, template string, locals map[string]any, stack []string, partial PartialFunc) Result {
	if len(stack) > ip.recursionLimit {
		chain := strings.Join(stack, " -> ")

		return Result{
			Source: template,
			Err:    fmt.Errorf("recursion limit (%d) exceeded: %s", ip.recursionLimit, chain),
			Text:   fmt.Sprintf("error: recursion limit (%d) exceeded: %s", ip.recursionLimit, chain),
		}
	}

	for k := range locals {
		if !isValidIdentifier(k) {
			panic(fmt.Sprintf("interp: local %q is not a valid identifier", k))
		}

		if k == ip.ctxName {
			panic(fmt.Sprintf("interp: local %q collides with ctxName", k))
		}
	}

	compiled, err := ip.compile(template, locals)
	if err != nil {
		return Result{Source: template, Err: &errs.InterpolateFailure{Source: template, Err: err}}
	}

	env := ip.buildEnv(ctx, locals, stack, partial)

	out, mutated, err := compiled.render(env)
	if err != nil {
		return Result{Source: template, Err: &errs.InterpolateFailure{Source: template, Err: err}}
	}

	status := StatusUnmodified
	if mutated {
		status = StatusMutated
	}

	return Result{Text: out, Status: status}
}

// buildEnv assembles the expr evaluation environment: every locals
// key, ctxName bound to the interpolator's context, and a "partial"
// callable that recurses into Interpolate with an extended stack.
func (ip *Interpolator) buildEnv(ctx context.Context, locals map[string]any, stack []string, partial PartialFunc) map[string]any {
	env := make(map[string]any, len(locals)+2)
	for k, v := range locals {
		env[k] = v
	}

	env[ip.ctxName] = ip.ctx

	env["partial"] = func(name string, partialLocals map[string]any) string {
		if partial == nil {
			panic(fmt.Sprintf("interp: partial(%q) called with no partial resolver configured", name))
		}

		content, shouldInterpolate, err := partial(ctx, name, partialLocals)
		if err != nil {
			return fmt.Sprintf("error: partial %q: %v", name, err)
		}

		if !shouldInterpolate {
			return content
		}

		nextStack := append(append([]string{}, stack...), name)

		result := ip.Interpolate(ctx, content, partialLocals, nextStack, partial)
		if result.Failed() {
			return result.Text
		}

		return result.Text
	}

	return env
}

// compiledTemplate is a template broken into alternating literal and
// expression segments, each expression pre-compiled to a *vm.Program.
type compiledTemplate struct {
	literals []string // len(literals) == len(programs)+1
	programs []*vm.Program
	sources  []string
}

func (ip *Interpolator) compile(template string, locals map[string]any) (*compiledTemplate, error) {
	var key string

	if ip.useCache {
		key = cacheKey(template, ip.ctxName, locals)
		if c, ok := ip.cache.get(key); ok {
			return c, nil
		}
	}

	matches := exprPattern.FindAllStringSubmatchIndex(template, -1)

	c := &compiledTemplate{}

	last := 0

	for _, m := range matches {
		start, end := m[0], m[1]
		exprStart, exprEnd := m[2], m[3]

		c.literals = append(c.literals, template[last:start])

		src := template[exprStart:exprEnd]

		program, err := expr.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("compiling %q: %w", src, err)
		}

		c.programs = append(c.programs, program)
		c.sources = append(c.sources, src)

		last = end
	}

	c.literals = append(c.literals, template[last:])

	if ip.useCache {
		ip.cache.put(key, c)
	}

	return c, nil
}

// render evaluates every expression segment against env and
// concatenates the result, reporting whether any substitution
// actually changed the output (i.e. the template contained at least
// one expression).
func (c *compiledTemplate) render(env map[string]any) (string, bool, error) {
	if len(c.programs) == 0 {
		return c.literals[0], false, nil
	}

	var b strings.Builder

	for i, program := range c.programs {
		b.WriteString(c.literals[i])

		out, err := expr.Run(program, env)
		if err != nil {
			return "", false, fmt.Errorf("evaluating %q: %w", c.sources[i], err)
		}

		b.WriteString(fmt.Sprint(out))
	}

	b.WriteString(c.literals[len(c.literals)-1])

	return b.String(), true, nil
}

func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '$'
		isDigit := r >= '0' && r <= '9'

		if i == 0 && (isDigit) {
			return false
		}

		if !isLetter && !isDigit {
			return false
		}
	}

	return true
}
