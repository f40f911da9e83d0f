package action

import (
	"testing"
	"time"

	"github.com/dalmatheo/g13d/internal/macro"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	events []recorded
}

type recorded struct {
	typ   EventKind
	code  uint16
	value int32
}

func (f *fakeSink) Emit(typ EventKind, code uint16, value int32) error {
	f.events = append(f.events, recorded{typ, code, value})
	return nil
}

func (f *fakeSink) EmitSync() error {
	return f.Emit(EventSyn, 0, 0)
}

func TestNoOpEmitsNothing(t *testing.T) {
	n := &NoOp{}
	sink := &fakeSink{}

	require.True(t, n.Set(sink, true))
	require.True(t, n.Set(sink, false))
	require.Empty(t, sink.events)
}

func TestNoOpSameStateReturnsFalse(t *testing.T) {
	n := &NoOp{}
	sink := &fakeSink{}
	require.True(t, n.Set(sink, true))
	require.False(t, n.Set(sink, true))
}

func TestPassThroughEmitsKeyThenSync(t *testing.T) {
	p := NewPassThrough(30)
	sink := &fakeSink{}

	require.True(t, p.Set(sink, true))
	require.Equal(t, []recorded{{EventKey, 30, 1}, {EventSyn, 0, 0}}, sink.events)

	sink.events = nil
	require.True(t, p.Set(sink, false))
	require.Equal(t, []recorded{{EventKey, 30, 0}, {EventSyn, 0, 0}}, sink.events)
}

func TestPassThroughIdempotentSet(t *testing.T) {
	p := NewPassThrough(30)
	sink := &fakeSink{}
	require.True(t, p.Set(sink, true))
	sink.events = nil
	require.False(t, p.Set(sink, true))
	require.Empty(t, sink.events)
}

func TestMacroOnceRunsToCompletion(t *testing.T) {
	engine := macro.NewEngine(0)
	events, err := macro.Parse("kd.1,ku.1")
	require.NoError(t, err)

	m := NewMacro(engine, events, Once())
	sink := &fakeSink{}

	require.True(t, m.Set(sink, true))
	// Give the background task time to run; Once() finishes quickly.
	time.Sleep(10 * time.Millisecond)
	require.True(t, m.Set(sink, false))

	m.run.Wait()
	require.Equal(t, []recorded{
		{EventKey, 1, 1}, {EventSyn, 0, 0},
		{EventKey, 1, 0}, {EventSyn, 0, 0},
	}, sink.events)

	m.Close()
}

func TestMacroWhileHeldStopsOnRelease(t *testing.T) {
	engine := macro.NewEngine(0)
	events, err := macro.Parse("kd.1,d.5,ku.1")
	require.NoError(t, err)

	m := NewMacro(engine, events, WhileHeld())
	sink := &fakeSink{}

	require.True(t, m.Set(sink, true))
	time.Sleep(20 * time.Millisecond)
	require.True(t, m.Set(sink, false))
	require.Nil(t, m.run)
}

func TestMacroPressTogglesStopWhileRunning(t *testing.T) {
	engine := macro.NewEngine(0)
	events, err := macro.Parse("kd.1,d.50,ku.1")
	require.NoError(t, err)

	m := NewMacro(engine, events, FixedCount(5))
	sink := &fakeSink{}

	require.True(t, m.Set(sink, true))
	require.NotNil(t, m.run)
	require.True(t, m.Set(sink, false))
	require.True(t, m.Set(sink, true))
	require.Nil(t, m.run)
}

func TestRepeatModeClampsFixedCount(t *testing.T) {
	require.Equal(t, 2, FixedCount(1).count)
	require.Equal(t, 2, FixedCount(0).count)
}
