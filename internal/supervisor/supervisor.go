// Package supervisor implements the Hot-Plug Supervisor: a periodic scan
// of attached G13s, spawning one Worker per newly seen device and joining
// every running Worker on shutdown. Grounded directly on the teacher's
// Manager (mutex-guarded device map, Scan using gousb.Context.OpenDevices
// with a vendor/product predicate, startDriver/driverLoop as a goroutine
// per device, Cleanup closing StopChan/joining the WaitGroup) in
// main.go, narrowed from the Pro Controller's 4-slot assignment to one
// Worker per device identity with no slot limit.
package supervisor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dalmatheo/g13d/internal/action"
	"github.com/dalmatheo/g13d/internal/config"
	"github.com/dalmatheo/g13d/internal/macro"
	"github.com/dalmatheo/g13d/internal/usbhid"
	"github.com/dalmatheo/g13d/internal/worker"
	"github.com/google/gousb"
	"github.com/rs/zerolog"
)

// ScanInterval is the cadence between discovery sweeps, narrowing the
// teacher's 2s Scan loop to spec.md §4.7's ~1s requirement.
const ScanInterval = time.Second

// macroPoolSize is the shared worker pool size offered per DESIGN NOTES
// §9 ("a shared bounded pool is preferred because macro workloads are
// bursty and short"), grounded on original_source's MacroThreadPool.
const macroPoolSize = 8

// handle tracks one running Worker so Supervisor can join it on shutdown.
// There is no per-Worker stop signal: every Worker observes the shared
// keep-running flag itself (spec.md §4.8), so Shutdown only needs to wait.
type handle struct {
	done chan struct{}
}

// Supervisor enumerates devices, spawns Workers, and joins them on
// shutdown. It owns no USB reference itself; every reference it acquires
// via Enumerate is handed to exactly one Worker or released immediately.
type Supervisor struct {
	ctx  *gousb.Context
	sink action.EventSink
	root config.Paths
	log  zerolog.Logger

	keepRunning *atomic.Bool
	engine      *macro.Engine

	mu      sync.Mutex
	workers map[usbhid.Identity]*handle
}

// New creates a Supervisor bound to a USB context, the process-wide
// virtual input sink, and the resolved configuration paths used to build
// each Worker's own Config Store. All Workers share one macro Engine's
// worker pool.
func New(ctx *gousb.Context, sink action.EventSink, paths config.Paths, keepRunning *atomic.Bool, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		ctx:         ctx,
		sink:        sink,
		root:        paths,
		keepRunning: keepRunning,
		engine:      macro.NewEngine(macroPoolSize),
		log:         log,
		workers:     make(map[usbhid.Identity]*handle),
	}
}

// shutdownEngine stops the macro engine's worker pool after every Worker (and
// therefore every macro Run it could have started) has joined.
func (s *Supervisor) shutdownEngine() {
	s.engine.Shutdown()
}

// Run ticks the discovery loop until keepRunning is cleared, then calls
// Shutdown. It blocks until every Worker has joined.
func (s *Supervisor) Run() {
	for s.keepRunning.Load() {
		s.scan()
		time.Sleep(ScanInterval)
	}
	s.Shutdown()
}

func (s *Supervisor) scan() {
	devs, err := usbhid.Enumerate(s.ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("usb enumerate failed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dev := range devs {
		id := usbhid.NewIdentity(dev.Desc.Bus, dev.Desc.Address)

		if _, exists := s.workers[id]; exists {
			dev.Close()
			continue
		}

		s.log.Info().Str("device", id.String()).Msg("new device")
		h, err := s.spawn(id, dev)
		if err != nil {
			s.log.Error().Err(err).Str("device", id.String()).Msg("failed to start worker")
			dev.Close()
			continue
		}
		s.workers[id] = h
	}
}

func (s *Supervisor) spawn(id usbhid.Identity, dev *gousb.Device) (*handle, error) {
	usbDev, err := usbhid.Open(dev)
	if err != nil {
		return nil, err
	}

	store := config.NewStore(s.root, s.engine)

	done := make(chan struct{})

	released := false
	var releaseMu sync.Mutex
	release := func() {
		releaseMu.Lock()
		defer releaseMu.Unlock()
		if released {
			return
		}
		released = true
		dev.Close()
		s.mu.Lock()
		delete(s.workers, id)
		s.mu.Unlock()
	}

	w := worker.New(id, usbDev, s.sink, store, s.keepRunning, s.log, release)

	go func() {
		defer close(done)
		w.Run()
	}()

	return &handle{done: done}, nil
}

// Shutdown snapshots the current worker handles under the lock and waits
// for each to finish. A Worker that has already removed itself (surprise
// removal) is simply absent from the snapshot.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	snapshot := make([]*handle, 0, len(s.workers))
	for _, h := range s.workers {
		snapshot = append(snapshot, h)
	}
	s.mu.Unlock()

	for _, h := range snapshot {
		<-h.done
	}
	s.shutdownEngine()
}
