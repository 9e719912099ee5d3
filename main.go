package main

import (
	"github.com/alecthomas/kong"

	"github.com/connerohnesorge/spry/cmd"
)

func main() {
	cli := &cmd.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("spry"),
		kong.Description("Turns a Markdown runbook into an executable task DAG"),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
