package enrich

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connerohnesorge/spry/internal/notebook"
)

func isShell(language string) bool {
	return language == "shell" || language == "sh" || language == "bash"
}

func TestEnrich_SpawnableDetection(t *testing.T) {
	input := "```sh build --dep clean\necho build\n```\n"

	nb, err := notebook.Parse([]byte(input), "t.md")
	require.NoError(t, err)

	result, err := Enrich(nb, Options{IsSpawnable: isShell, DuplicatePolicy: PolicyThrow})
	require.NoError(t, err)

	require.Equal(t, 1, result.Spawnables.Len())
	task, ok := result.Spawnables.Get("build")
	require.True(t, ok)
	assert.Equal(t, []string{"clean"}, task.GetTextFlagValues("dep"))
}

func TestEnrich_PartialRegistration(t *testing.T) {
	input := "```sh PARTIAL greet --prepend\necho hi\n```\n"

	nb, err := notebook.Parse([]byte(input), "t.md")
	require.NoError(t, err)

	result, err := Enrich(nb, Options{IsSpawnable: isShell, DuplicatePolicy: PolicyThrow})
	require.NoError(t, err)

	require.Equal(t, 1, result.Partials.Len())
	require.Equal(t, 0, result.Spawnables.Len())

	p, ok := result.Partials.Get("greet")
	require.True(t, ok)
	require.NotNil(t, p.Injection)
	assert.Equal(t, ModePrepend, p.Injection.Mode)
}

func TestEnrich_PartialValidationFailure(t *testing.T) {
	p := &Partial{
		Identity:   "needs-name",
		Source:     "echo ${ctx.name}",
		ArgsSchema: Schema{"name": FieldSpec{Type: "string", Required: true}},
	}

	content := p.Content(map[string]any{}, nil)

	assert.False(t, content.Interpolate)
	assert.Contains(t, content.Content, "name")
}

func TestExpandSpecBlocks_LocalGlob(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "docs/a.txt", []byte("contents of a"), 0o644))

	input := "```import\nutf8 docs/*.txt\n```\n"

	nb, err := notebook.Parse([]byte(input), "t.md")
	require.NoError(t, err)

	nodes, err := ExpandSpecBlocks(nb, SpecBlockConfig{FS: fs})
	require.NoError(t, err)

	var injected []*InjectedNode
	for _, n := range nodes {
		if n.Injected != nil {
			injected = append(injected, n.Injected)
		}
	}

	require.Len(t, injected, 1)
	assert.True(t, injected[0].Source.IsRefToBinary)
	assert.Contains(t, injected[0].Meta, "--is-binary")
}

func TestExpandSpecBlocks_EagerText(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "docs/a.sql", []byte("SELECT 1;"), 0o644))

	input := "```import\nsql docs/*.sql\n```\n"

	nb, err := notebook.Parse([]byte(input), "t.md")
	require.NoError(t, err)

	nodes, err := ExpandSpecBlocks(nb, SpecBlockConfig{FS: fs})
	require.NoError(t, err)

	var injected []*InjectedNode
	for _, n := range nodes {
		if n.Injected != nil {
			injected = append(injected, n.Injected)
		}
	}

	require.Len(t, injected, 1)
	assert.False(t, injected[0].Source.IsRefToBinary)
	assert.Equal(t, "SELECT 1;", injected[0].Value)
}

func TestExpandSpecBlocks_RemotePlaceholder(t *testing.T) {
	input := "```import\nutf8 https://example.com/a.bin --is-binary\n```\n"

	nb, err := notebook.Parse([]byte(input), "t.md")
	require.NoError(t, err)

	nodes, err := ExpandSpecBlocks(nb, SpecBlockConfig{})
	require.NoError(t, err)

	var injected []*InjectedNode
	for _, n := range nodes {
		if n.Injected != nil {
			injected = append(injected, n.Injected)
		}
	}

	require.Len(t, injected, 1)
	assert.True(t, injected[0].Source.IsRefToBinary)
	assert.Equal(t, "https://example.com/a.bin", injected[0].Source.ImportedFrom)
}

func TestExpandSpecBlocks_RemovePlacement(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "docs/a.sql", []byte("SELECT 1;"), 0o644))

	input := "```import\nsql docs/*.sql\n```\n"

	nb, err := notebook.Parse([]byte(input), "t.md")
	require.NoError(t, err)

	nodes, err := ExpandSpecBlocks(nb, SpecBlockConfig{FS: fs, Placement: PlacementRemove})
	require.NoError(t, err)

	for _, n := range nodes {
		if n.Cell != nil {
			if _, ok := n.Cell.(*notebook.CodeCell); ok {
				t.Fatalf("spec block cell should have been removed, found %+v", n.Cell)
			}
		}
	}
}
