// Package dozer provides the mode arbiter and the driving and auto mode
// controllers of the dozer.
package dozer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gwillem/robodozer/internal/log"
	"github.com/gwillem/robodozer/pkg/remote"
	"github.com/gwillem/robodozer/pkg/robot"
)

// minStartupPlay is the shortest time one pass of the startup idle loop takes,
// so a sound that fails at once does not spin the loop.
const minStartupPlay = 250 * time.Millisecond

// Mode is the active sub-mode of the controller.
type Mode int

const (
	Driving Mode = iota
	Auto
)

func (m Mode) String() string {
	if m == Auto {
		return "auto"
	}
	return "driving"
}

// State represents the current state of the dozer.
type State struct {
	Mode      Mode
	Iteration uint64

	ImplementCommand remote.Command
	Implement        ImplementAction
	DriveCommand     remote.Command
	Drive            DriveAction

	Proximity float64
	Obstacle  bool
	Escaping  bool
	Touch     robot.TouchState
	Timestamp time.Time
}

// Controller runs the mode arbiter loop.
type Controller struct {
	v        robot.Vehicle
	behavior robot.Behavior
	decoder  *remote.Decoder
	prox     *ProximityMonitor
	sleep    func(time.Duration)
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.RWMutex
	state   State
	running bool
	stateCh chan State
	logCh   chan string
}

// Config holds configuration for the controller.
type Config struct {
	Behavior  robot.Behavior
	Proximity robot.SensorCalibration
	RunID     string

	// Sleep and Now default to time.Sleep and time.Now.
	Sleep  func(time.Duration)
	Now    func() time.Time
	Logger *slog.Logger
}

// NewController creates a controller for v. Every collaborator except
// Display, Escape and Exit is required.
func NewController(v robot.Vehicle, cfg Config) (*Controller, error) {
	var missing []error
	if v.Implement == nil {
		missing = append(missing, errors.New("implement actuator"))
	}
	if v.Drive == nil {
		missing = append(missing, errors.New("drive actuator"))
	}
	if v.Touch == nil {
		missing = append(missing, errors.New("touch sensor"))
	}
	if v.Proximity == nil {
		missing = append(missing, errors.New("proximity sensor"))
	}
	if v.Remote == nil {
		missing = append(missing, errors.New("remote receiver"))
	}
	if v.Audio == nil {
		missing = append(missing, errors.New("audio cue"))
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing collaborators: %w", errors.Join(missing...))
	}

	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.L()
	}
	if cfg.RunID != "" {
		cfg.Logger = cfg.Logger.With("run_id", cfg.RunID)
	}

	return &Controller{
		v:        v,
		behavior: cfg.Behavior,
		decoder:  remote.NewDecoder(v.Remote),
		prox:     NewProximityMonitor(v.Proximity, cfg.Proximity),
		sleep:    cfg.Sleep,
		now:      cfg.Now,
		logger:   cfg.Logger,
		stateCh:  make(chan State, 1),
		logCh:    make(chan string, 10),
	}, nil
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// State returns the latest state snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Controller) log(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.logger.Info(text)
	msg := fmt.Sprintf("[%s] %s", c.now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// ShowBanner renders the startup status text.
func ShowBanner(d robot.StatusDisplay) {
	d.ShowText("RoboDoz3r", true, 2, 2, robot.ColorBlack, robot.FontLarge)
}

// Start plays the engine start sound and then runs the mode arbiter.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.startup(ctx)
	return c.run(ctx)
}

// startup plays the start sound, then keeps it playing for the idle window.
func (c *Controller) startup(ctx context.Context) {
	s := c.behavior.StartupSound
	c.v.Audio.Play(s.Name, s.Volume, true)

	idle := c.behavior.IdleWindow.Duration()
	for st := c.now(); c.now().Sub(st) < idle && ctx.Err() == nil; {
		began := c.now()
		c.v.Audio.Play(s.Name, s.Volume, true)
		if rest := minStartupPlay - c.now().Sub(began); rest > 0 {
			c.sleep(rest)
		}
	}
}

// run alternates driving and auto mode, each followed by the transition
// sound, until the escape button is pressed or ctx is done. The escape
// button is only checked between full rounds. A done ctx also ends the
// active mode after its current iteration, so the caller may stop the
// motors once run has returned.
func (c *Controller) run(ctx context.Context) error {
	c.log("Dozer started")
	for c.keepRunning(ctx) {
		c.drivingMode(ctx)
		if ctx.Err() != nil {
			break
		}
		c.transitionCue()

		c.autoMode(ctx)
		if ctx.Err() != nil {
			break
		}
		c.transitionCue()
	}
	c.log("Dozer stopped")
	return ctx.Err()
}

func (c *Controller) keepRunning(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	return c.v.Escape == nil || !c.v.Escape.IsPressed()
}

func (c *Controller) transitionCue() {
	s := c.behavior.TransitionSound
	c.v.Audio.Play(s.Name, s.Volume, true)
}

func (c *Controller) enterMode(m Mode) {
	c.mu.Lock()
	c.state = State{Mode: m, Timestamp: c.now()}
	c.mu.Unlock()
	c.logger.Debug("enter mode", "mode", m.String())
	c.log("%s mode", m)
}

// touchReleased reads the touch sensor once and records the reading.
func (c *Controller) touchReleased() bool {
	t := c.v.Touch.Read()
	c.mu.Lock()
	c.state.Touch = t
	c.state.Iteration++
	c.state.Timestamp = c.now()
	s := c.state
	c.mu.Unlock()
	c.sendState(s)
	return t == robot.Released
}

// drivingMode runs until the touch sensor is pressed or ctx is done. Each
// iteration acts before it reads the sensor, so the last iteration still
// moves the motors.
func (c *Controller) drivingMode(ctx context.Context) {
	c.enterMode(Driving)
	for {
		c.raiseLower()
		c.remoteDrive()
		if !c.touchReleased() || ctx.Err() != nil {
			break
		}
	}
	c.logger.Debug("leave mode", "mode", Driving.String())
}

// raiseLower moves the shovel from the implement channel. The brake is
// re-applied on every iteration without a command.
func (c *Controller) raiseLower() {
	cmd := c.decoder.Command(c.behavior.ImplementChannel)
	a := ImplementActionFor(cmd, c.behavior.ImplementPower)
	if a.Brake {
		c.v.Implement.BrakeStop(true)
	} else {
		c.v.Implement.SetPower(a.Power)
	}

	c.mu.Lock()
	c.state.ImplementCommand = cmd
	c.state.Implement = a
	c.mu.Unlock()
}

// remoteDrive steers the tracks from the drive channel.
func (c *Controller) remoteDrive() {
	cmd := c.decoder.Command(c.behavior.DriveChannel)
	a := DriveActionFor(cmd, c.behavior.DrivePower)
	c.applyDrive(a)

	c.mu.Lock()
	c.state.DriveCommand = cmd
	c.mu.Unlock()
}

func (c *Controller) applyDrive(a DriveAction) {
	if a.Brake {
		c.v.Drive.BrakeStop()
	} else {
		c.v.Drive.SetPower(a.Left, a.Right)
	}
	c.mu.Lock()
	c.state.Drive = a
	c.mu.Unlock()
}

// autoMode runs until the touch sensor is pressed or ctx is done.
func (c *Controller) autoMode(ctx context.Context) {
	c.enterMode(Auto)
	for {
		c.autoStep()
		if !c.touchReleased() || ctx.Err() != nil {
			break
		}
	}
	c.logger.Debug("leave mode", "mode", Auto.String())
}

// autoStep samples proximity once and either cruises or escapes.
func (c *Controller) autoStep() {
	p := c.prox.Read()
	obstacle := IsObstacle(p, c.behavior.ObstacleThreshold)

	c.mu.Lock()
	c.state.Proximity = p
	c.state.Obstacle = obstacle
	c.mu.Unlock()

	if !obstacle {
		c.applyDrive(DriveAction{Left: c.behavior.CruisePower, Right: c.behavior.CruisePower})
		return
	}
	c.log("Obstacle at %.1f, backing off", p)
	c.escape()
}

// escape runs the fixed back-off maneuver. Nothing is sampled until it is done.
func (c *Controller) escape() {
	b := c.behavior

	c.applyDrive(DriveAction{Brake: true})
	c.setEscaping(true)

	c.sleep(b.Dwell.Duration())

	c.markDrive(DriveAction{Left: b.BackOffPower, Right: b.BackOffPower})
	c.v.Drive.RunForDuration(b.BackOffPower, b.BackOffPower, b.BackOffTime.Duration(), true)

	c.markDrive(DriveAction{Left: b.PivotLeft, Right: b.PivotRight})
	c.v.Drive.RunForDuration(b.PivotLeft, b.PivotRight, b.PivotTime.Duration(), true)

	c.markDrive(DriveAction{Brake: true})
	c.setEscaping(false)
}

// markDrive records a timed drive phase for the dashboard before it blocks.
func (c *Controller) markDrive(a DriveAction) {
	c.mu.Lock()
	c.state.Drive = a
	c.state.Timestamp = c.now()
	s := c.state
	c.mu.Unlock()
	c.sendState(s)
}

func (c *Controller) setEscaping(v bool) {
	c.mu.Lock()
	c.state.Escaping = v
	c.mu.Unlock()
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}
