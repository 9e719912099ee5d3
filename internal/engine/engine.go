// Package engine composes the ten core subsystems (C1-C10) into one
// runbook execution: fetch a document, parse it into a notebook,
// overlay its playbook, enrich its cells, resolve the task graph, and
// execute it.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/connerohnesorge/spry/internal/acquire"
	"github.com/connerohnesorge/spry/internal/capture"
	"github.com/connerohnesorge/spry/internal/config"
	"github.com/connerohnesorge/spry/internal/dagexec"
	"github.com/connerohnesorge/spry/internal/deps"
	"github.com/connerohnesorge/spry/internal/enrich"
	"github.com/connerohnesorge/spry/internal/interp"
	"github.com/connerohnesorge/spry/internal/notebook"
	"github.com/connerohnesorge/spry/internal/playbook"
	"github.com/connerohnesorge/spry/internal/shelldrv"
)

// RunOptions configures one end-to-end run.
type RunOptions struct {
	Config        *config.Config
	FS            afero.Fs // defaults to afero.NewOsFs()
	EventBus      *dagexec.EventBus
	RunID         string
	GitignorePath string // default target for tasks with a bare --gitignore; empty means ".gitignore"
}

func (o RunOptions) normalized() RunOptions {
	if o.Config == nil {
		o.Config = config.Default()
	}

	if o.FS == nil {
		o.FS = afero.NewOsFs()
	}

	if o.EventBus == nil {
		o.EventBus = dagexec.NewEventBus()
	}

	return o
}

// Context is the value bound to the interpolator as `ctx` (spec §4.8).
type Context struct {
	RunID string
}

// Result bundles everything one Run produces: the parsed notebook,
// its narrative playbook overlay, the enrichment catalog, and the
// execution summary.
type Result struct {
	Notebook *notebook.Notebook
	Playbook *playbook.Playbook
	Enriched *enrich.Result
	Summary  dagexec.Summary
}

// Run fetches provenance, parses and enriches it, resolves the task
// graph, and executes it to completion.
func Run(parent context.Context, provenance string, opts RunOptions) (*Result, error) {
	opts = opts.normalized()

	fetched, err := acquire.Fetch(parent, provenance, acquire.Options{
		FS:           opts.FS,
		MaxBytes:     opts.Config.MaxFetchBytes,
		Timeout:      opts.Config.FetchTimeout,
		AllowedHosts: opts.Config.AllowedHosts,
		RetryMax:     opts.Config.RetryMax,
		RetryBase:    opts.Config.RetryBaseDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: acquiring %s: %w", provenance, err)
	}

	nb, err := notebook.Parse(fetched.Body, provenance)
	if err != nil {
		return nil, fmt.Errorf("engine: parsing notebook: %w", err)
	}

	pb := playbook.Build(nb, playbook.Delimiter{Kind: playbook.HeadingDelimiter, HeadingDepth: opts.Config.PlaybookHeadingDepth})

	enriched, err := enrich.Enrich(nb, enrich.Options{
		SpecBlock: enrich.SpecBlockConfig{
			IsSpecLanguage: func(lang string) bool { return lang == "spec" || lang == "import" },
			FS:             opts.FS,
			DefaultBase:    opts.Config.BaseDir,
		},
		DuplicatePolicy: enrich.PolicyOverwrite,
		IsSpawnable:     opts.Config.IsSpawnable,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: enriching cells: %w", err)
	}

	tasks, err := buildTasks(enriched)
	if err != nil {
		return nil, fmt.Errorf("engine: resolving dependencies: %w", err)
	}

	plan := dagexec.ExecutionPlan(tasks)
	if planErr := plan.Err(); planErr != nil {
		return nil, fmt.Errorf("engine: planning: %w", planErr)
	}

	store := capture.NewStore()
	ip := interp.New(Context{RunID: opts.RunID}, interp.Options{UseCache: true, RecursionLimit: opts.Config.RecursionLimit})
	driver := shelldrv.NewDriver(opts.EventBus)

	runTask := buildRunTask(nb, enriched, ip, driver, store, opts)

	summary := dagexec.ExecuteDAG(parent, plan, runTask, dagexec.ExecuteOptions{EventBus: opts.EventBus, RunID: opts.RunID})

	return &Result{Notebook: nb, Playbook: pb, Enriched: enriched, Summary: summary}, nil
}

// taskNode adapts an enrich.Spawnable into both deps.Node (identity +
// implicit-dep patterns) and, once its merged dependency list is
// known, dagexec.Task.
type taskNode struct {
	spawnable *enrich.Spawnable
	deps      []string
}

func (t *taskNode) ID() string                 { return t.spawnable.Identity }
func (t *taskNode) Deps() []string             { return t.deps }
func (t *taskNode) ImplicitPatterns() []string {
	if !t.spawnable.HasFlag("injected-dep") {
		return nil
	}

	values := t.spawnable.GetTextFlagValues("injected-dep")
	out := make([]string, len(values))

	for i, v := range values {
		if v == "true" {
			out[i] = "*"
		} else {
			out[i] = v
		}
	}

	return out
}

// taskTimeout reads a task's `--timeout <duration>` PI flag (spec §6).
// An absent or unparseable value returns 0, so Driver.Run falls back
// to its construction-time default.
func taskTimeout(s *enrich.Spawnable) time.Duration {
	raw := s.GetTextFlag("timeout")
	if raw == "" || raw == "true" {
		return 0
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("task", s.Identity).Str("timeout", raw).Err(err).Msg("invalid --timeout value ignored")

		return 0
	}

	return d
}

// taskGitignorePath resolves the gitignore target for a task's `./path`
// captures (spec §4.10): bookkeeping only happens when the task itself
// sets `--gitignore`; its string value overrides the run-wide default
// path, and the bare boolean form falls back to that default.
func taskGitignorePath(s *enrich.Spawnable, defaultPath string) string {
	if !s.HasFlag("gitignore") {
		return ""
	}

	if v := s.GetTextFlag("gitignore"); v != "" && v != "true" {
		return v
	}

	if defaultPath != "" {
		return defaultPath
	}

	return ".gitignore"
}

func buildTasks(enriched *enrich.Result) ([]dagexec.Task, error) {
	nodes := make([]deps.Node, 0, enriched.Spawnables.Len())
	byIdentity := make(map[string]*taskNode, enriched.Spawnables.Len())

	for _, id := range enriched.Spawnables.Identities() {
		s, _ := enriched.Spawnables.Get(id)
		tn := &taskNode{spawnable: s}
		nodes = append(nodes, tn)
		byIdentity[id] = tn
	}

	resolver := deps.NewResolver(nodes)

	tasks := make([]dagexec.Task, 0, len(byIdentity))

	for _, id := range enriched.Spawnables.Identities() {
		tn := byIdentity[id]
		explicit := tn.spawnable.GetTextFlagValues("dep")

		full, err := resolver.Deps(id, explicit, true)
		if err != nil {
			log.Warn().Str("task", id).Err(err).Msg("invalid implicit-dep pattern skipped")
		}

		tn.deps = full
		tasks = append(tasks, tn)
	}

	return tasks, nil
}

// buildRunTask closes over the enriched notebook to produce the
// dagexec.RunTask callback: interpolate the task's source, run it
// through the shell driver, then apply its capture instructions.
func buildRunTask(nb *notebook.Notebook, enriched *enrich.Result, ip *interp.Interpolator, driver *shelldrv.Driver, store *capture.Store, opts RunOptions) dagexec.RunTask {
	partialFn := func(ctx context.Context, name string, locals map[string]any) (string, bool, error) {
		p, ok := enriched.Partials.Get(name)
		if !ok {
			return "", false, fmt.Errorf("unknown partial %q", name)
		}

		rendered := p.Content(locals, nil)

		return rendered.Content, rendered.Interpolate, nil
	}

	return func(ctx context.Context, rc *dagexec.RunContext, taskID string) (dagexec.TaskResult, error) {
		s, ok := enriched.Spawnables.Get(taskID)
		if !ok {
			return dagexec.TaskResult{}, fmt.Errorf("engine: unknown task %q", taskID)
		}

		cell, ok := enriched.Nodes[s.CellIndex].Cell.(*notebook.CodeCell)
		if !ok {
			return dagexec.TaskResult{}, fmt.Errorf("engine: task %q is not a code cell", taskID)
		}

		locals := make(map[string]any, len(cell.Attrs)+1)
		for k, v := range cell.Attrs {
			locals[k] = v
		}

		locals["captured"] = store.AsMap()

		shouldInterpolate := s.HasFlag("interpolate", "I")
		interpResult := ip.Run(ctx, cell.Source, locals, shouldInterpolate, nil, partialFn)

		if interpResult.Failed() {
			return dagexec.TaskResult{Status: dagexec.StatusFail, Error: interpResult.Err}, nil
		}

		execCapture := capture.TaskExecCapture{Cell: cell, Ctx: Context{RunID: opts.RunID}, InterpResult: interpResult}

		if _, ok := shelldrv.Resolve(cell.Language); ok {
			result, err := driver.Run(ctx, taskID, cell.Language, interpResult.Text, taskTimeout(s))
			if err != nil {
				return dagexec.TaskResult{Status: dagexec.StatusFail, Error: err}, nil
			}

			execCapture.ExecResult = &result
		}

		instructions := capture.ParseInstructions(s.PI, s.Identity)
		if _, err := capture.Apply(opts.FS, instructions, execCapture, store, taskGitignorePath(s, opts.GitignorePath)); err != nil {
			return dagexec.TaskResult{Status: dagexec.StatusFail, Error: err}, nil
		}

		return dagexec.TaskResult{Status: dagexec.StatusOK, Output: execCapture.Text()}, nil
	}
}
