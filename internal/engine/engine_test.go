package engine

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connerohnesorge/spry/internal/config"
	"github.com/connerohnesorge/spry/internal/dagexec"
)

func TestRun_SingleSpawnableTaskExecutes(t *testing.T) {
	fs := afero.NewMemMapFs()

	doc := "# Runbook\n\n" +
		"```shell gen --capture=payload\n" +
		"echo '{\"k\":1}'\n" +
		"```\n"

	require.NoError(t, afero.WriteFile(fs, "/runbook.md", []byte(doc), 0o644))

	cfg := config.Default()

	result, err := Run(context.Background(), "/runbook.md", RunOptions{Config: cfg, FS: fs})
	require.NoError(t, err)

	require.Contains(t, result.Summary.Results, "gen")
	assert.Equal(t, dagexec.StatusOK, result.Summary.Results["gen"].Status)
}

func TestRun_S6_CaptureChainFeedsDownstreamInterpolation(t *testing.T) {
	fs := afero.NewMemMapFs()

	doc := "# Runbook\n\n" +
		"```shell gen --capture=payload\n" +
		"echo '{\"k\":1}'\n" +
		"```\n\n" +
		"```shell use --dep gen --interpolate\n" +
		"echo ${captured.payload.JSON().k}\n" +
		"```\n"

	require.NoError(t, afero.WriteFile(fs, "/runbook.md", []byte(doc), 0o644))

	cfg := config.Default()

	result, err := Run(context.Background(), "/runbook.md", RunOptions{Config: cfg, FS: fs})
	require.NoError(t, err)

	require.Contains(t, result.Summary.Results, "use")
	assert.Equal(t, dagexec.StatusOK, result.Summary.Results["use"].Status)
}

func TestRun_GitignoreOnlyAppliesToTasksThatRequestIt(t *testing.T) {
	fs := afero.NewMemMapFs()

	doc := "# Runbook\n\n" +
		"```shell keep --capture=./out/keep.txt --gitignore\n" +
		"echo keep\n" +
		"```\n\n" +
		"```shell skip --capture=./out/skip.txt\n" +
		"echo skip\n" +
		"```\n"

	require.NoError(t, afero.WriteFile(fs, "/runbook.md", []byte(doc), 0o644))

	cfg := config.Default()

	_, err := Run(context.Background(), "/runbook.md", RunOptions{Config: cfg, FS: fs})
	require.NoError(t, err)

	content, err := afero.ReadFile(fs, ".gitignore")
	require.NoError(t, err)
	assert.Contains(t, string(content), "./out/keep.txt")
	assert.NotContains(t, string(content), "./out/skip.txt")
}

func TestRun_DependencyCycleIsReportedNotExecuted(t *testing.T) {
	fs := afero.NewMemMapFs()

	doc := "# Runbook\n\n" +
		"```shell a --dep b\n" +
		"echo a\n" +
		"```\n\n" +
		"```shell b --dep a\n" +
		"echo b\n" +
		"```\n"

	require.NoError(t, afero.WriteFile(fs, "/runbook.md", []byte(doc), 0o644))

	cfg := config.Default()

	_, err := Run(context.Background(), "/runbook.md", RunOptions{Config: cfg, FS: fs})
	require.Error(t, err)
}
