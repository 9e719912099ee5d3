package interp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate_SubstitutesLocalsAndCtx(t *testing.T) {
	ip := New(map[string]any{"runID": "abc123"}, Options{})

	res := ip.Interpolate(context.Background(), "run=${ctx.runID} name=${who}", map[string]any{"who": "gen"}, nil, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, StatusMutated, res.Status)
	assert.Equal(t, "run=abc123 name=gen", res.Text)
}

func TestInterpolate_NoExpressionsIsUnmodifiedStatus(t *testing.T) {
	ip := New(nil, Options{})

	res := ip.Interpolate(context.Background(), "plain text, no expr", nil, nil, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, StatusUnmodified, res.Status)
	assert.Equal(t, "plain text, no expr", res.Text)
}

func TestRun_NoInterpolateFlagIsNoOp(t *testing.T) {
	ip := New(nil, Options{})

	res := ip.Run(context.Background(), "echo ${who}", map[string]any{"who": "x"}, false, nil, nil)

	assert.Equal(t, StatusUnmodified, res.Status)
	assert.Equal(t, "echo ${who}", res.Text)
}

func TestInterpolate_EvaluationErrorBecomesFailedResult(t *testing.T) {
	ip := New(nil, Options{})

	res := ip.Interpolate(context.Background(), "${nonexistent.field.deep}", nil, nil, nil)

	assert.True(t, res.Failed())
	assert.Error(t, res.Err)
}

func TestInterpolate_S6_CaptureChainAccess(t *testing.T) {
	captured := map[string]any{
		"payload": map[string]any{"k": float64(1)},
	}

	ip := New(nil, Options{})

	res := ip.Interpolate(context.Background(), "echo ${captured.payload.k}", map[string]any{"captured": captured}, nil, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, "echo 1", res.Text)
}

func TestInterpolate_PartialRecursion(t *testing.T) {
	ip := New(nil, Options{})

	partial := func(ctx context.Context, name string, locals map[string]any) (string, bool, error) {
		if name == "greeting" {
			return "hello ${name}", true, nil
		}

		return "", false, nil
	}

	res := ip.Interpolate(context.Background(), `${partial("greeting", {"name": who})}`, map[string]any{"who": "world"}, nil, partial)

	require.NoError(t, res.Err)
	assert.Equal(t, "hello world", res.Text)
}

func TestInterpolate_RecursionLimitReturnsReadableError(t *testing.T) {
	ip := New(nil, Options{RecursionLimit: 2})

	var partial PartialFunc
	partial = func(ctx context.Context, name string, locals map[string]any) (string, bool, error) {
		return `${partial("self", {})}`, true, nil
	}

	res := ip.Interpolate(context.Background(), `${partial("self", {})}`, nil, nil, partial)

	require.NoError(t, res.Err, "recursion-limit breach is reported through the partial call, not a top-level error")
	assert.True(t, strings.Contains(res.Text, "recursion limit"))
}

func TestInterpolate_InvalidLocalIdentifierPanics(t *testing.T) {
	ip := New(nil, Options{})

	assert.Panics(t, func() {
		ip.Interpolate(context.Background(), "${x}", map[string]any{"not-an-identifier": 1}, nil, nil)
	})
}

func TestInterpolate_LocalCollidingWithCtxNamePanics(t *testing.T) {
	ip := New(nil, Options{CtxName: "ctx"})

	assert.Panics(t, func() {
		ip.Interpolate(context.Background(), "${ctx}", map[string]any{"ctx": 1}, nil, nil)
	})
}

func TestCache_ReusesCompiledTemplate(t *testing.T) {
	ip := New(nil, Options{UseCache: true})

	locals := map[string]any{"who": "a"}

	first, err := ip.compile("hi ${who}", locals)
	require.NoError(t, err)

	second, err := ip.compile("hi ${who}", locals)
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestCache_EvictsOldestBeyondCapacity(t *testing.T) {
	c := newTemplateCache(2)

	c.put("a", &compiledTemplate{literals: []string{"a"}})
	c.put("b", &compiledTemplate{literals: []string{"b"}})
	c.put("c", &compiledTemplate{literals: []string{"c"}})

	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.get("b")
	assert.True(t, ok)

	_, ok = c.get("c")
	assert.True(t, ok)
}
