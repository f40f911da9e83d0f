package worker

import (
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/dalmatheo/g13d/internal/action"
	"github.com/dalmatheo/g13d/internal/config"
	"github.com/dalmatheo/g13d/internal/macro"
	"github.com/dalmatheo/g13d/internal/usbhid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	events []sinkEvent
}

type sinkEvent struct {
	typ   action.EventKind
	code  uint16
	value int32
}

func (r *recordSink) Emit(typ action.EventKind, code uint16, value int32) error {
	r.events = append(r.events, sinkEvent{typ, code, value})
	return nil
}

func (r *recordSink) EmitSync() error {
	return r.Emit(action.EventSyn, 0, 0)
}

func newTestWorker(t *testing.T) (*Worker, *recordSink) {
	t.Helper()
	dir := t.TempDir()
	paths := config.Paths{ConfigDir: dir, FifoPath: filepath.Join(dir, "fifo")}
	store := config.NewStore(paths, macro.NewEngine(0))
	keepRunning := &atomic.Bool{}
	keepRunning.Store(true)

	sink := &recordSink{}
	w := New(usbhid.NewIdentity(1, 2), nil, sink, store, keepRunning, zerolog.Nop(), func() {})

	bindings := &config.Bindings{}
	for i := range bindings.Keys {
		bindings.Keys[i] = &action.NoOp{}
	}
	bindings.Keys[1] = action.NewPassThrough(30)
	w.bindings = bindings
	w.profile = 0

	return w, sink
}

// fakeAction is a minimal action.Action that records whether Close was
// called, standing in for a Macro Action whose background task must be
// stopped and joined before its Bindings slot is discarded.
type fakeAction struct {
	closed bool
}

func (f *fakeAction) Set(_ action.EventSink, _ bool) bool { return false }
func (f *fakeAction) Close()                              { f.closed = true }

func reportWithBit(k int, set bool) [8]byte {
	var r [8]byte
	if set {
		r[3+k/8] |= 1 << uint(k%8)
	}
	return r
}

func TestHandleReportDispatchesPassThrough(t *testing.T) {
	w, sink := newTestWorker(t)

	w.handleReport(reportWithBit(1, true))
	require.Equal(t, []sinkEvent{
		{action.EventKey, 30, 1}, {action.EventSyn, 0, 0},
	}, sink.events)

	sink.events = nil
	w.handleReport(reportWithBit(1, false))
	require.Equal(t, []sinkEvent{
		{action.EventKey, 30, 0}, {action.EventSyn, 0, 0},
	}, sink.events)
}

func TestHandleReportProfileSwitchDoesNotReachAction(t *testing.T) {
	w, sink := newTestWorker(t)
	require.NoError(t, w.store.Paths.EnsureConfigDir())

	w.handleReport(reportWithBit(keyM2, true))

	require.Equal(t, 1, w.profile)
	require.Empty(t, sink.events)
}

func TestHandleJoystickKeysModeThresholds(t *testing.T) {
	w, _ := newTestWorker(t)
	w.mode = Keys

	w.handleJoystick(40, 200)

	require.False(t, w.keyPressed[keyJoyUp])
	require.True(t, w.keyPressed[keyJoyLeft])
	require.False(t, w.keyPressed[keyJoyRight])
	require.True(t, w.keyPressed[keyJoyDown])
}

func TestHandleJoystickCenteredIsAllFalse(t *testing.T) {
	w, _ := newTestWorker(t)
	w.mode = Keys

	w.handleJoystick(128, 128)

	require.False(t, w.keyPressed[keyJoyUp])
	require.False(t, w.keyPressed[keyJoyLeft])
	require.False(t, w.keyPressed[keyJoyRight])
	require.False(t, w.keyPressed[keyJoyDown])
}

func TestHandleReportIgnoresJoystickBitsAsKeys(t *testing.T) {
	w, sink := newTestWorker(t)
	// Bit 36 (keyJoyUp) must never be treated as a regular key dispatch.
	w.handleReport(reportWithBit(keyJoyUp, true))
	require.Empty(t, sink.events)
}

func TestLoadProfileClosesPreviousBindings(t *testing.T) {
	w, _ := newTestWorker(t)
	require.NoError(t, w.store.Paths.EnsureConfigDir())

	fake := &fakeAction{}
	w.bindings.Keys[2] = fake

	w.loadProfile(1)

	require.True(t, fake.closed)
}

func TestReloadBindingsClosesPreviousBindings(t *testing.T) {
	w, _ := newTestWorker(t)
	require.NoError(t, w.store.Paths.EnsureConfigDir())

	fake := &fakeAction{}
	w.bindings.Keys[3] = fake

	w.reloadBindings()

	require.True(t, fake.closed)
}

func TestKeyIndexHelpers(t *testing.T) {
	require.True(t, isProfileKey(keyM1))
	require.True(t, isProfileKey(keyMR))
	require.False(t, isProfileKey(10))

	require.True(t, isJoystickKey(keyJoyUp))
	require.True(t, isJoystickKey(keyJoyDown))
	require.False(t, isJoystickKey(30))

	require.Equal(t, 0, profileForKey(keyM1))
	require.Equal(t, 3, profileForKey(keyMR))
}
