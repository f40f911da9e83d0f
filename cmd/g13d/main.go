// Command g13d adopts a Logitech G13 gaming keypad and projects it as a
// virtual keyboard/gamepad. Grounded on the teacher's main(): flag
// parsing, a two-mode logger, gousb.Context lifetime, signal.Notify for
// SIGINT/SIGTERM, and a Cleanup-on-signal shutdown sequence — generalized
// from a single Manager.Scan loop to the Supervisor/Worker/Sink wiring of
// this daemon.
package main

import (
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/dalmatheo/g13d/internal/config"
	"github.com/dalmatheo/g13d/internal/logging"
	"github.com/dalmatheo/g13d/internal/supervisor"
	"github.com/dalmatheo/g13d/internal/uinput"
	"github.com/google/gousb"
)

func main() {
	daemonMode := flag.Bool("daemon", false, "run as a daemon (JSON logs on stderr)")
	editorPath := flag.String("editor", "", "path to an external binding-editor program (launched by the tray collaborator, not by this core)")
	flag.Parse()

	log := logging.New(*daemonMode)
	if *editorPath != "" {
		log.Debug().Str("editor", *editorPath).Msg("external editor path recorded")
	}

	sink, err := uinput.Create()
	if err != nil {
		log.Error().Err(err).Msg("failed to create virtual input sink")
		os.Exit(1)
	}

	ctx := gousb.NewContext()

	paths := config.ResolvePaths()
	if err := paths.EnsureConfigDir(); err != nil {
		log.Error().Err(err).Msg("failed to create configuration directory")
		sink.Destroy()
		ctx.Close()
		os.Exit(1)
	}

	keepRunning := &atomic.Bool{}
	keepRunning.Store(true)

	sup := supervisor.New(ctx, sink, paths, keepRunning, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received")
		keepRunning.Store(false)
	}()

	log.Info().Msg("g13d ready, watching for devices")
	sup.Run()

	sink.Destroy()
	ctx.Close()
	log.Info().Msg("shutdown complete")
}
