// Package capture implements the Capture Subsystem (spec C10): turning
// a task's `--capture` PI declarations into either a written file or
// an entry in the in-memory captures dictionary consumed by later
// tasks' interpolators.
package capture

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/connerohnesorge/spry/internal/interp"
	"github.com/connerohnesorge/spry/internal/notebook"
	"github.com/connerohnesorge/spry/internal/pi"
	"github.com/connerohnesorge/spry/internal/shelldrv"
)

// TaskExecCapture is one task's captured execution (spec §3): the
// cell that produced it, its context, interpolation result, and
// (when the cell actually ran) its shell result. Method names follow
// Go export convention (Text/JSON) rather than the contract's
// lowercase text()/json() — see DESIGN.md.
type TaskExecCapture struct {
	Cell         notebook.Cell
	Ctx          any
	InterpResult interp.Result
	ExecResult   *shelldrv.Result
}

// Text decodes the combined stdout if execution happened, else the
// interpolated source (spec's `text()`).
func (t TaskExecCapture) Text() string {
	if t.ExecResult != nil {
		return string(t.ExecResult.Combined())
	}

	return t.InterpResult.Text
}

// JSON parses Text as JSON (spec's `json()`).
func (t TaskExecCapture) JSON() (any, error) {
	var v any
	if err := json.Unmarshal([]byte(t.Text()), &v); err != nil {
		return nil, fmt.Errorf("capture: decoding JSON: %w", err)
	}

	return v, nil
}

// InstructionKind distinguishes a file-path capture from a dictionary-key capture.
type InstructionKind int

const (
	KindFile InstructionKind = iota
	KindKey
)

// Instruction is one parsed `--capture` value (spec §4.10).
type Instruction struct {
	Kind InstructionKind
	Path string // set when Kind == KindFile, begins with "./"
	Key  string // set when Kind == KindKey
}

// ParseInstructions reads every `--capture`/`-C` occurrence off p, in
// declaration order, defaulting a bare boolean occurrence to identity
// (spec §4.10). As with any boolean PI flag, a capture literally named
// "true" is indistinguishable from the bare boolean form; this mirrors
// every other boolean flag in the PI vocabulary.
func ParseInstructions(p pi.PI, identity string) []Instruction {
	values := p.GetTextFlagValues("capture", "C")

	instructions := make([]Instruction, 0, len(values))

	for _, v := range values {
		name := v
		if v == "true" {
			name = identity
		}

		if strings.HasPrefix(name, "./") {
			instructions = append(instructions, Instruction{Kind: KindFile, Path: name})
		} else {
			instructions = append(instructions, Instruction{Kind: KindKey, Key: name})
		}
	}

	return instructions
}

// Store is the in-memory capturedTaskExecs dictionary, shared across a
// single DAG run and read-only once a task's captures are published
// (spec §5: "captures become visible to downstream tasks only after
// the producing task emits task:ok").
type Store struct {
	mu      sync.RWMutex
	entries map[string]TaskExecCapture
}

func NewStore() *Store {
	return &Store{entries: make(map[string]TaskExecCapture)}
}

func (s *Store) Put(key string, capture TaskExecCapture) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = capture
}

func (s *Store) Get(key string) (TaskExecCapture, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.entries[key]

	return c, ok
}

// AsMap snapshots the store for interpolator binding as `captured`.
func (s *Store) AsMap() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}

	return out
}

// GitignoreResult reports what Apply's gitignore bookkeeping did
// (spec's "Idempotent gitignore" testable property).
type GitignoreResult struct {
	Added     []string
	Preserved []string
}

// Apply runs every instruction in order against capture, writing files
// via fs and publishing key captures into store. path-kind captures
// ensure a trailing newline; when gitignorePath is non-empty, each
// written path is appended to it (idempotently).
func Apply(fs afero.Fs, instructions []Instruction, capture TaskExecCapture, store *Store, gitignorePath string) (GitignoreResult, error) {
	var gi GitignoreResult

	for _, inst := range instructions {
		switch inst.Kind {
		case KindFile:
			if err := writeCaptureFile(fs, inst.Path, capture.Text()); err != nil {
				return gi, err
			}

			if gitignorePath != "" {
				added, err := appendGitignore(fs, gitignorePath, inst.Path)
				if err != nil {
					return gi, err
				}

				if added {
					gi.Added = append(gi.Added, inst.Path)
				} else {
					gi.Preserved = append(gi.Preserved, inst.Path)
				}
			}
		case KindKey:
			store.Put(inst.Key, capture)
		}
	}

	return gi, nil
}

func writeCaptureFile(fs afero.Fs, path, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	return afero.WriteFile(fs, path, []byte(text), 0o644)
}

// appendGitignore adds entry to gitignorePath unless already present,
// reporting whether it was actually added (spec's added-vs-preserved
// distinction).
func appendGitignore(fs afero.Fs, gitignorePath, entry string) (bool, error) {
	existing, err := afero.ReadFile(fs, gitignorePath)
	if err != nil && !strings.Contains(err.Error(), "does not exist") {
		return false, fmt.Errorf("capture: reading %s: %w", gitignorePath, err)
	}

	lines := strings.Split(string(existing), "\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == entry {
			return false, nil
		}
	}

	content := string(existing)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	content += entry + "\n"

	if err := afero.WriteFile(fs, gitignorePath, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("capture: writing %s: %w", gitignorePath, err)
	}

	return true, nil
}
