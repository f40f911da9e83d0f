// Package worker implements the per-device state machine: Opening,
// Initialized, Polling, and the two terminal states Disconnected and
// Stopping. Grounded on the teacher's Manager.startDriver/driverLoop
// (ticker-free blocking-read poll loop, StopChan, deferred cleanup) and
// on original_source's G13.cpp device lifecycle (wake LCD, set backlight,
// clear framebuffer, load profile 0, then the parse_joystick/parse_key
// poll loop).
package worker

import (
	"errors"
	"sync/atomic"

	"github.com/dalmatheo/g13d/internal/action"
	"github.com/dalmatheo/g13d/internal/config"
	"github.com/dalmatheo/g13d/internal/lcd"
	"github.com/dalmatheo/g13d/internal/usbhid"
	"github.com/rs/zerolog"
)

const (
	numKeys = config.NumKeys

	// Logical key indices with special meaning; they never reach a bound
	// Action.
	keyM1 = 25
	keyM2 = 26
	keyM3 = 27
	keyMR = 28

	keyJoyUp    = 36
	keyJoyLeft  = 37
	keyJoyRight = 38
	keyJoyDown  = 39

	thumbLow  = 96
	thumbHigh = 160
)

// JoystickMode selects how the analog stick is reported.
type JoystickMode int

const (
	Absolute JoystickMode = iota
	Keys
)

// Device is the subset of usbhid.Device a Worker drives. Modeled as an
// interface so tests can substitute a fake USB transport, mirroring the
// EventSink injection point in package action.
type Device interface {
	WakeLCD() error
	SetBacklight(r, g, b byte) error
	ReadReport() ([8]byte, error)
	WriteLCD(payload []byte) error
	Close()
}

// Sink is the virtual input endpoint a Worker's Actions and joystick
// decoder emit through.
type Sink = action.EventSink

// Worker owns one device's USB handle, LCD framebuffer, FIFO, and active
// bindings for as long as the device remains attached and the process is
// running.
type Worker struct {
	identity usbhid.Identity
	dev      Device
	sink     Sink
	store    *config.Store
	log      zerolog.Logger

	mode JoystickMode

	fb   lcd.Framebuffer
	fifo *lcd.Fifo

	profile  int
	bindings *config.Bindings

	keyPressed [numKeys]bool

	keepRunning *atomic.Bool

	// release is called exactly once on exit, regardless of which terminal
	// state was reached, to drop the USB reference the Supervisor acquired
	// before spawning this Worker.
	release func()
}

// New constructs a Worker in the Opening state. dev must already be an
// opened, interface-claimed usbhid.Device; release is invoked exactly
// once when Run returns.
func New(identity usbhid.Identity, dev Device, sink Sink, store *config.Store, keepRunning *atomic.Bool, log zerolog.Logger, release func()) *Worker {
	return &Worker{
		identity:    identity,
		dev:         dev,
		sink:        sink,
		store:       store,
		log:         log.With().Str("device", identity.String()).Logger(),
		mode:        Keys,
		keepRunning: keepRunning,
		release:     release,
	}
}

// Run drives the Worker through Initialized, Polling, and teardown. It
// returns when the device disconnects, the process is shutting down, or
// initialization fails. The return value is informational only; callers
// do not need to special-case any outcome.
func (w *Worker) Run() error {
	defer w.teardown()

	if err := w.initialize(); err != nil {
		w.log.Error().Err(err).Msg("device init failed")
		return err
	}

	for {
		if !w.keepRunning.Load() {
			w.log.Info().Msg("stopping: keep-running cleared")
			return nil
		}

		if reload, err := w.store.PollForUpdate(w.profile); err == nil && reload {
			w.reloadBindings()
		}

		w.drainFifo()

		report, err := w.dev.ReadReport()
		switch {
		case err == nil:
			w.handleReport(report)
		case errors.Is(err, usbhid.ErrTimeout):
			// benign; keep polling
		case errors.Is(err, usbhid.ErrNoDevice):
			w.log.Info().Msg("device removed")
			return nil
		default:
			w.log.Error().Err(err).Msg("transient read error")
			return err
		}
	}
}

func (w *Worker) initialize() error {
	if err := w.dev.WakeLCD(); err != nil {
		return err
	}
	if err := w.dev.SetBacklight(128, 128, 128); err != nil {
		return err
	}
	w.fb.Clear()

	fifo, err := lcd.CreateFifo(w.store.Paths.FifoPath)
	if err != nil {
		w.log.Warn().Err(err).Msg("fifo unavailable; LCD stays driver-controlled")
	} else {
		w.fifo = fifo
	}

	w.loadProfile(0)
	return nil
}

// loadProfile swaps in a freshly-loaded Bindings for profile. It does not
// touch w.keyPressed: that array tracks the physical press state used for
// rising-edge detection on the profile and joystick keys, which must
// survive a profile switch — clearing it here would make a still-held M2
// look like a fresh press on the very next report and reload forever.
func (w *Worker) loadProfile(profile int) {
	b, err := w.store.LoadProfile(profile)
	if err != nil {
		w.log.Error().Err(err).Int("profile", profile).Msg("load profile failed")
		return
	}
	w.closeBindings()
	w.profile = profile
	w.bindings = b
}

func (w *Worker) reloadBindings() {
	w.log.Info().Int("profile", w.profile).Msg("bindings file changed; reloading")
	b, err := w.store.LoadProfile(w.profile)
	if err != nil {
		w.log.Error().Err(err).Msg("reload failed")
		return
	}
	w.closeBindings()
	w.bindings = b
}

// closeBindings closes every Action in the currently-bound Bindings, if
// any, exactly as teardown does. Called before w.bindings is replaced by a
// profile switch or a live reload, so a Macro Action's background task is
// always stopped and joined before its owning Action reference is
// dropped — spec.md §3's "destroying the Action terminates and joins the
// task before releasing any Event memory" invariant applies at every
// Bindings swap, not just at worker exit.
func (w *Worker) closeBindings() {
	if w.bindings == nil {
		return
	}
	for i := range w.bindings.Keys {
		w.bindings.Keys[i].Close()
	}
}

func (w *Worker) drainFifo() {
	if w.fifo == nil {
		return
	}
	lines, ok := w.fifo.TryReadFrame()
	if !ok {
		return
	}
	lcd.PaintFrame(&w.fb, lines)
	if err := w.dev.WriteLCD(w.fb.Payload()); err != nil {
		w.log.Warn().Err(err).Msg("lcd write failed")
	}
}

func (w *Worker) handleReport(report [8]byte) {
	x, y := report[1], report[2]
	w.handleJoystick(x, y)

	for k := 0; k < numKeys; k++ {
		if isJoystickKey(k) {
			continue
		}
		pressed := report[3+k/8]&(1<<uint(k%8)) != 0
		if isProfileKey(k) {
			if pressed && !w.keyPressed[k] {
				w.keyPressed[k] = true
				w.loadProfile(profileForKey(k))
			} else if !pressed {
				w.keyPressed[k] = false
			}
			continue
		}
		w.keyPressed[k] = pressed
		if w.bindings != nil {
			w.bindings.Keys[k].Set(w.sink, pressed)
		}
	}
}

func (w *Worker) handleJoystick(x, y byte) {
	switch w.mode {
	case Absolute:
		w.sink.Emit(action.EventAbs, 0x00, int32(x))
		w.sink.Emit(action.EventAbs, 0x01, int32(y))
		w.sink.EmitSync()
	case Keys:
		up := y <= thumbLow
		down := y >= thumbHigh
		left := x <= thumbLow
		right := x >= thumbHigh
		w.dispatchJoystickKey(keyJoyUp, up)
		w.dispatchJoystickKey(keyJoyLeft, left)
		w.dispatchJoystickKey(keyJoyRight, right)
		w.dispatchJoystickKey(keyJoyDown, down)
	}
}

func (w *Worker) dispatchJoystickKey(k int, pressed bool) {
	w.keyPressed[k] = pressed
	if w.bindings != nil {
		w.bindings.Keys[k].Set(w.sink, pressed)
	}
}

func (w *Worker) teardown() {
	w.closeBindings()
	if w.fifo != nil {
		w.fifo.Close()
	}
	w.dev.Close()
	if w.release != nil {
		w.release()
	}
}

func isJoystickKey(k int) bool {
	return k == keyJoyUp || k == keyJoyLeft || k == keyJoyRight || k == keyJoyDown
}

func isProfileKey(k int) bool {
	return k == keyM1 || k == keyM2 || k == keyM3 || k == keyMR
}

func profileForKey(k int) int {
	return k - keyM1
}
