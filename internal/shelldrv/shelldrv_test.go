package shelldrv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connerohnesorge/spry/internal/dagexec"
)

type fakeRunner struct {
	result Result
}

func (f fakeRunner) Run(ctx context.Context, inv Invocation, source string, timeout time.Duration) Result {
	return f.result
}

func TestResolve_KnownLanguages(t *testing.T) {
	for _, lang := range []string{"shell", "sh", "bash", "python", "python3", "node", "js", "javascript"} {
		_, ok := Resolve(lang)
		assert.True(t, ok, "expected a driver for %q", lang)
	}
}

func TestResolve_UnknownLanguage(t *testing.T) {
	_, ok := Resolve("ruby")
	assert.False(t, ok)
}

func TestDriver_Run_NonZeroExitIsNotAnError(t *testing.T) {
	runner := fakeRunner{result: Result{Stdout: []byte("partial\n"), ExitCode: 1}}
	d := &Driver{Runner: runner}

	result, err := d.Run(context.Background(), "build", "shell", "exit 1", 0)

	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
}

func TestDriver_Run_UnknownLanguageErrors(t *testing.T) {
	d := &Driver{Runner: fakeRunner{}}

	_, err := d.Run(context.Background(), "build", "cobol", "DISPLAY 'HI'.", 0)

	assert.Error(t, err)
}

func TestDriver_Run_EmitsEventsInOrder(t *testing.T) {
	runner := fakeRunner{result: Result{Stdout: []byte("out"), Stderr: []byte("err"), ExitCode: 0}}
	bus := dagexec.NewEventBus()
	rec := &recordingObserver{}
	bus.Register(rec)

	d := &Driver{Runner: runner, Bus: bus}

	_, err := d.Run(context.Background(), "gen", "shell", "echo hi", 0)
	require.NoError(t, err)

	require.Len(t, rec.events, 4)
	assert.Equal(t, dagexec.EventShellStart, rec.events[0].Type)
	assert.Equal(t, dagexec.EventShellOut, rec.events[1].Type)
	assert.Equal(t, dagexec.EventShellErr, rec.events[2].Type)
	assert.Equal(t, dagexec.EventShellExit, rec.events[3].Type)
}

type recordingObserver struct {
	events []dagexec.Event
}

func (o *recordingObserver) Name() string                     { return "recorder" }
func (o *recordingObserver) Filter() dagexec.EventFilter       { return nil }
func (o *recordingObserver) OnEvent(_ context.Context, e dagexec.Event) error {
	o.events = append(o.events, e)

	return nil
}
