package enrich

import (
	"github.com/connerohnesorge/spry/internal/errs"
	"github.com/connerohnesorge/spry/internal/notebook"
	"github.com/connerohnesorge/spry/internal/pi"
)

// Spawnable is a CodeCell eligible for shell execution: a task (spec
// §3, §4.4.3).
type Spawnable struct {
	CellIndex int
	Identity  string
	PI        pi.PI
}

// HasFlag, GetTextFlag, GetTextFlagValues, and GetFirstBareWord are
// the "typed PI query" spec §3 describes — they simply forward to the
// underlying PI.
func (s *Spawnable) HasFlag(name string, aliases ...string) bool {
	return s.PI.HasFlag(name, aliases...)
}

func (s *Spawnable) GetTextFlag(name string, aliases ...string) string {
	return s.PI.GetTextFlag(name, aliases...)
}

func (s *Spawnable) GetTextFlagValues(name string, aliases ...string) []string {
	return s.PI.GetTextFlagValues(name, aliases...)
}

func (s *Spawnable) GetFirstBareWord() string {
	return s.PI.GetFirstBareWord()
}

// IsSpawnableLanguage is satisfied by config.Config.IsSpawnable.
type IsSpawnableLanguage func(language string) bool

// asSpawnable reports whether cell, given idx and the spawnable
// language predicate, qualifies as a task (spec §4.4.3): spawnable
// language, not a Partial, at least one bare PI token.
func asSpawnable(cell *notebook.CodeCell, idx int, isSpawnable IsSpawnableLanguage) (*Spawnable, bool) {
	if !isSpawnable(cell.Language) {
		return nil, false
	}

	if len(cell.PI.Pos) >= 2 && cell.PI.Pos[0] == "PARTIAL" {
		return nil, false
	}

	if len(cell.PI.Pos) == 0 {
		return nil, false
	}

	return &Spawnable{
		CellIndex: idx,
		Identity:  cell.PI.GetFirstBareWord(),
		PI:        cell.PI,
	}, true
}

// SpawnableCatalog holds tasks registered during enrichment,
// instance-scoped to one run.
type SpawnableCatalog struct {
	byIdentity map[string]*Spawnable
	order      []string
}

func NewSpawnableCatalog() *SpawnableCatalog {
	return &SpawnableCatalog{byIdentity: make(map[string]*Spawnable)}
}

func (c *SpawnableCatalog) Register(s *Spawnable, policy DuplicatePolicy) error {
	if _, exists := c.byIdentity[s.Identity]; exists {
		switch policy {
		case PolicyThrow:
			return &errs.DuplicateIdentityError{Identity: s.Identity, Kind: "spawnable"}
		case PolicyIgnore:
			return nil
		}
	} else {
		c.order = append(c.order, s.Identity)
	}

	c.byIdentity[s.Identity] = s

	return nil
}

func (c *SpawnableCatalog) Get(identity string) (*Spawnable, bool) {
	s, ok := c.byIdentity[identity]

	return s, ok
}

// Identities returns every registered identity in registration order.
func (c *SpawnableCatalog) Identities() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)

	return out
}

func (c *SpawnableCatalog) Len() int { return len(c.byIdentity) }
