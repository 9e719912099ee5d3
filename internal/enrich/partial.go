package enrich

import (
	"github.com/connerohnesorge/spry/internal/errs"
	"github.com/connerohnesorge/spry/internal/notebook"
)

// DuplicatePolicy decides what happens when a collection already
// holds an entry for an identity being (re-)registered (spec §7
// DuplicateIdentity).
type DuplicatePolicy string

const (
	PolicyOverwrite DuplicatePolicy = "overwrite"
	PolicyThrow     DuplicatePolicy = "throw"
	PolicyIgnore    DuplicatePolicy = "ignore"
)

// InjectionMode is how a Partial's injection globs combine with an
// injection site's own content.
type InjectionMode string

const (
	ModePrepend InjectionMode = "prepend"
	ModeAppend  InjectionMode = "append"
	ModeBoth    InjectionMode = "both"
)

// Injection is a Partial's optional auto-injection metadata, derived
// from its PI flags (spec §4.4.2).
type Injection struct {
	Globs []string
	Mode  InjectionMode
	Wrap  func(content string) string
}

// Partial is a reusable code fragment (spec §3).
type Partial struct {
	Identity   string
	Source     string
	ArgsSchema Schema
	Injection  *Injection
}

// PartialContent is the rendered result of Partial.Content.
type PartialContent struct {
	Content     string
	Interpolate bool
	Locals      map[string]any
}

// Content renders p against locals, validating against ArgsSchema
// first. onError, if given, formats a validation failure into the
// returned content; otherwise the raw error message is used.
func (p *Partial) Content(locals map[string]any, onError func(message, source string, err error) string) PartialContent {
	if err := p.ArgsSchema.Validate(p.Identity, locals); err != nil {
		message := err.Error()

		content := message
		if onError != nil {
			content = onError(message, p.Source, err)
		}

		return PartialContent{Content: content, Interpolate: false, Locals: locals}
	}

	return PartialContent{Content: p.Source, Interpolate: true, Locals: locals}
}

// asPartial reports whether cell is a PARTIAL declaration and, if so,
// builds it. Spec §4.4.2: first bare token "PARTIAL" (case-sensitive),
// second bare token is the identity.
func asPartial(cell *notebook.CodeCell) (*Partial, bool) {
	if len(cell.PI.Pos) < 2 || cell.PI.Pos[0] != "PARTIAL" {
		return nil, false
	}

	identity := cell.PI.Pos[1]

	var injection *Injection
	globs := cell.PI.GetTextFlagValues("inject")
	prepend := cell.PI.HasFlag("prepend")
	appendFlag := cell.PI.HasFlag("append")

	if len(globs) > 0 || prepend || appendFlag {
		mode := ModePrepend
		switch {
		case prepend && appendFlag:
			mode = ModeBoth
		case appendFlag:
			mode = ModeAppend
		}

		injection = &Injection{Globs: globs, Mode: mode}
	}

	return &Partial{
		Identity:   identity,
		Source:     cell.Source,
		ArgsSchema: schemaFromAttrs(cell.Attrs),
		Injection:  injection,
	}, true
}

// PartialRegistry holds partials registered during enrichment,
// instance-scoped to one run (spec §3 Lifecycle).
type PartialRegistry struct {
	byIdentity map[string]*Partial
}

func NewPartialRegistry() *PartialRegistry {
	return &PartialRegistry{byIdentity: make(map[string]*Partial)}
}

// Register adds p under policy. PolicyThrow returns an error on
// collision; PolicyIgnore silently keeps the existing entry;
// PolicyOverwrite (the zero value's practical default) replaces it.
func (r *PartialRegistry) Register(p *Partial, policy DuplicatePolicy) error {
	if _, exists := r.byIdentity[p.Identity]; exists {
		switch policy {
		case PolicyThrow:
			return &errs.DuplicateIdentityError{Identity: p.Identity, Kind: "partial"}
		case PolicyIgnore:
			return nil
		}
	}

	r.byIdentity[p.Identity] = p

	return nil
}

func (r *PartialRegistry) Get(identity string) (*Partial, bool) {
	p, ok := r.byIdentity[identity]

	return p, ok
}

func (r *PartialRegistry) Len() int { return len(r.byIdentity) }
