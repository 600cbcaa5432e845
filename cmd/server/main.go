package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/apexsim/apexsim/internal/config"
	"github.com/apexsim/apexsim/internal/core/clock"
	"github.com/apexsim/apexsim/internal/core/events/bus"
	"github.com/apexsim/apexsim/internal/core/observability/log"
	"github.com/apexsim/apexsim/internal/core/session"
	"github.com/apexsim/apexsim/internal/core/track"
	"github.com/apexsim/apexsim/internal/core/vehicle"
	"github.com/apexsim/apexsim/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "server error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel())

	trk, err := loadTrack(cfg.Race.TrackFile)
	if err != nil {
		return err
	}
	arch, err := loadArchetype(cfg.Race.ArchetypeFile)
	if err != nil {
		return err
	}

	events := bus.New()
	sess := session.New(session.Config{
		CountdownSeconds: cfg.Race.CountdownSeconds,
		TotalLaps:        cfg.Race.TotalLaps,
	}, trk, events, clock.Config{
		FixedStep:     cfg.Sim.FixedStep(),
		MaxFrameDelta: cfg.Sim.MaxFrameDelta,
		TimeScale:     cfg.Sim.TimeScale,
	}, logger)

	gateway := server.NewGateway(cfg.Server, sess, arch, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		log.String("track", trk.Name()),
		log.String("archetype", arch.Name),
		log.String("listen_addr", cfg.Server.ListenAddr))

	sess.StartRace()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return gateway.Run(ctx)
	})
	eg.Go(func() error {
		driveFrames(ctx, sess, cfg.Sim.FixedStep())
		return nil
	})

	err = eg.Wait()
	sess.Stop()
	logger.Info("stopped")
	return err
}

// driveFrames feeds wall-clock time into the session until ctx is cancelled.
// The ticker runs at the fixed step; the scheduler's accumulator absorbs any
// jitter.
func driveFrames(ctx context.Context, sess *session.Session, step float64) {
	ticker := time.NewTicker(time.Duration(step * float64(time.Second)))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess.Frame(time.Since(start).Seconds())
		}
	}
}

func loadTrack(path string) (*track.Track, error) {
	if path == "" {
		return track.Build(track.DefaultDefinition())
	}
	return track.Load(path)
}

func loadArchetype(path string) (vehicle.Archetype, error) {
	if path == "" {
		return vehicle.DefaultArchetype(), nil
	}
	return vehicle.LoadArchetype(path)
}
