package cmd

import (
	"context"
	"fmt"

	"github.com/connerohnesorge/spry/internal/config"
	"github.com/connerohnesorge/spry/internal/dagexec"
	"github.com/connerohnesorge/spry/internal/engine"
)

// RunCmd executes a Markdown runbook's task DAG end to end.
type RunCmd struct {
	Path      string `arg:"" help:"Path (or URL) to the runbook Markdown document."`
	Gitignore string `help:"Gitignore file that tasks with a bare --gitignore flag append their capture files to (default .gitignore)." name:"gitignore"`
	NoEvents  bool   `help:"Suppress per-event progress lines." name:"no-events"`
}

func (c *RunCmd) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	bus := dagexec.NewEventBus()
	if !c.NoEvents {
		bus.Register(consoleObserver{})
	}

	result, err := engine.Run(context.Background(), c.Path, engine.RunOptions{
		Config:        cfg,
		EventBus:      bus,
		GitignorePath: c.Gitignore,
	})
	if err != nil {
		return err
	}

	for _, id := range result.Summary.Order {
		r := result.Summary.Results[id]
		fmt.Printf("%-20s %s\n", id, r.Status)
	}

	return nil
}

// consoleObserver prints structured execution events. Deliberately
// plain text — terminal rendering is out of scope for this engine.
type consoleObserver struct{}

func (consoleObserver) Name() string                 { return "console" }
func (consoleObserver) Filter() dagexec.EventFilter   { return nil }
func (consoleObserver) OnEvent(_ context.Context, e dagexec.Event) error {
	switch e.Type {
	case dagexec.EventTaskStart:
		fmt.Printf("-> %s\n", e.TaskID)
	case dagexec.EventTaskSkip:
		fmt.Printf("   %s skipped (dependency %s did not succeed)\n", e.TaskID, e.Cause)
	case dagexec.EventTaskFail:
		fmt.Printf("   %s failed: %v\n", e.TaskID, e.Error)
	case dagexec.EventShellExit:
		fmt.Printf("   exit %v\n", e.Data)
	}

	return nil
}
