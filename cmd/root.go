// Package cmd provides the spry command-line front-end: a thin
// wrapper over internal/engine. The polished CLI experience (TUI,
// clipboard, shell completion) is out of scope for this engine; this
// is a demonstration entry point.
package cmd

// CLI is the root Kong command structure.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Execute a Markdown runbook's task DAG."`
	Version VersionCmd `cmd:"" help:"Show version info."`
}
