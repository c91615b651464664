package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/gwillem/robodozer/internal/log"
	"github.com/gwillem/robodozer/pkg/dozer"
	"github.com/gwillem/robodozer/pkg/robot"
	"github.com/gwillem/robodozer/pkg/sim"
)

// simReadLatency keeps the simulated control loop near the pace of real sensors.
const simReadLatency = 5 * time.Millisecond

type RunCommand struct {
	Sim      bool `long:"sim" description:"Drive a simulated dozer from the keyboard"`
	Headless bool `long:"headless" description:"Run without the dashboard, logging to stderr"`
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig(opts.Config, c.Sim)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", opts.Config, err)
		fmt.Fprintln(os.Stderr, "Run 'robodozer setup' first, or use --sim.")
		os.Exit(1)
	}

	if c.Headless {
		log.Init(cfg.Log.Level, os.Stderr)
	} else {
		closer, err := log.InitFile(cfg.Log.Level, cfg.Log.File)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer closer.Close()
	}

	var world *sim.World
	if c.Sim {
		world = sim.NewWorld(sim.Options{ReadLatency: simReadLatency})
	}

	v, release, err := openVehicle(cfg, world)
	if err != nil {
		return err
	}
	defer release()

	runID := uuid.NewString()
	log.Info("run started", "run_id", runID, "sim", c.Sim, "config", opts.Config)

	ctrl, err := dozer.NewController(v, dozer.Config{
		Behavior:  cfg.Behavior,
		Proximity: cfg.Proximity,
		RunID:     runID,
	})
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	if v.Display != nil {
		dozer.ShowBanner(v.Display)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Headless {
		return runHeadless(ctx, ctrl, v)
	}
	return runDashboard(ctx, ctrl, v, cfg.Behavior, world, runID)
}

// controllerRun is a controller running in the background.
type controllerRun struct {
	cancel context.CancelFunc
	v      robot.Vehicle
	done   chan struct{}
	err    error
	once   sync.Once
}

func startController(ctx context.Context, ctrl *dozer.Controller, v robot.Vehicle) *controllerRun {
	ctx, cancel := context.WithCancel(ctx)
	r := &controllerRun{cancel: cancel, v: v, done: make(chan struct{})}
	go func() {
		r.err = ctrl.Start(ctx)
		close(r.done)
	}()
	return r
}

// stop ends the active mode after its current iteration, waits for the
// controller to return and only then brakes the tracks and lets the shovel go.
func (r *controllerRun) stop() {
	r.once.Do(func() {
		r.cancel()
		<-r.done
		r.v.Drive.BrakeStop()
		r.v.Implement.BrakeStop(false)
	})
}

// failed returns the controller error unless it was stopped.
func (r *controllerRun) failed() error {
	if r.err != nil && !errors.Is(r.err, context.Canceled) {
		return r.err
	}
	return nil
}

func runHeadless(ctx context.Context, ctrl *dozer.Controller, v robot.Vehicle) error {
	if v.Exit != nil {
		dozer.NewExitWatcher(v.Exit).Start()
	}

	r := startController(ctx, ctrl, v)
	select {
	case <-r.done:
		log.Info("dozer finished")
	case <-ctx.Done():
		log.Info("interrupted, stopping after the current iteration")
	}
	r.stop()
	return r.failed()
}

func runDashboard(ctx context.Context, ctrl *dozer.Controller, v robot.Vehicle, b robot.Behavior, world *sim.World, runID string) error {
	r := startController(ctx, ctrl, v)
	defer r.stop()

	m := newDashboardModel(ctrl, b, world, runID)
	m.stop = r.stop
	p := tea.NewProgram(m, tea.WithAltScreen())

	if v.Exit != nil {
		dozer.NewExitWatcher(v.Exit, dozer.WithExitFunc(func() {
			// Restore the terminal before leaving.
			p.Kill()
			os.Exit(0)
		})).Start()
	}

	go func() {
		<-r.done
		if err := r.failed(); err != nil {
			log.Error("controller stopped", "err", err)
		}
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}
