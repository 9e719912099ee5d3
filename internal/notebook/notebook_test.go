package notebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1 from spec.md §8.
func TestParse_S1_FencePartitioning(t *testing.T) {
	input := "---\ntitle: X\n---\none paragraph\n\n```sql INFO {\"id\":1,\"dryRun\":true}\nSELECT 1;\n```\n"

	nb, err := Parse([]byte(input), "s1.md")
	require.NoError(t, err)
	require.Len(t, nb.Cells, 2)

	md, ok := nb.Cells[0].(*MarkdownCell)
	require.True(t, ok)
	assert.Contains(t, md.Text, "one paragraph")

	code, ok := nb.Cells[1].(*CodeCell)
	require.True(t, ok)
	assert.Equal(t, "sql", code.Language)
	assert.Equal(t, "INFO", code.Info)
	assert.Equal(t, map[string]any{"id": float64(1), "dryRun": true}, code.Attrs)
	assert.Equal(t, "SELECT 1;\n", code.Source)
	assert.Empty(t, nb.Issues)
}

// S2 from spec.md §8.
func TestParse_S2_MalformedAttrs(t *testing.T) {
	input := "---\ntitle: X\n---\none paragraph\n\n```sql INFO {id 1}\nSELECT 1;\n```\n"

	nb, err := Parse([]byte(input), "s2.md")
	require.NoError(t, err)
	require.Len(t, nb.Cells, 2)

	code, ok := nb.Cells[1].(*CodeCell)
	require.True(t, ok)
	assert.Empty(t, code.Attrs)

	require.Len(t, nb.Issues, 1)
	assert.Equal(t, FenceIssue, nb.Issues[0].Kind)
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := "# Heading\n\n```sh\necho hi\n```\n"

	nb, err := Parse([]byte(input), "plain.md")
	require.NoError(t, err)
	require.Len(t, nb.Cells, 2)
	assert.Nil(t, nb.FM)

	code, ok := nb.Cells[1].(*CodeCell)
	require.True(t, ok)
	assert.Equal(t, "sh", code.Language)
	assert.Equal(t, "echo hi\n", code.Source)
}

func TestParse_UnterminatedFenceTolerated(t *testing.T) {
	input := "intro\n\n```sh\necho hi\n"

	nb, err := Parse([]byte(input), "unterminated.md")
	require.NoError(t, err)
	require.Len(t, nb.Cells, 2)

	code, ok := nb.Cells[1].(*CodeCell)
	require.True(t, ok)
	assert.Equal(t, "echo hi\n", code.Source)
}

func TestParse_EmptyMarkdownCellsSuppressed(t *testing.T) {
	input := "```sh\necho a\n```\n```sh\necho b\n```\n"

	nb, err := Parse([]byte(input), "adjacent.md")
	require.NoError(t, err)
	require.Len(t, nb.Cells, 2)

	_, ok := nb.Cells[0].(*CodeCell)
	assert.True(t, ok)
	_, ok = nb.Cells[1].(*CodeCell)
	assert.True(t, ok)
}

func TestParse_UnclosedFrontmatterErrors(t *testing.T) {
	input := "---\ntitle: X\nbody\n"

	_, err := Parse([]byte(input), "bad.md")
	require.Error(t, err)
}
