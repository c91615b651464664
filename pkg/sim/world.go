// Package sim provides a simulated dozer for running without hardware.
//
// The world is a single lane ending in a wall. Driving with negative power
// moves the dozer toward the wall, positive power backs it away, and a pivot
// of a quarter turn or more faces it down a fresh open lane.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/gwillem/robodozer/pkg/robot"
)

// Defaults for a new world.
const (
	DefaultOpenDistance  = 100.0
	DefaultSpeedPerPower = 0.4 // distance units per second per power unit
	DefaultTurnPerPower  = 2.0 // degrees per second per power unit of track difference
	DefaultShovelRate    = 0.5 // shovel travel per second per power unit
	DefaultSoundLength   = 200 * time.Millisecond
	DefaultRemoteHold    = 300 * time.Millisecond
)

// Options tune the world.
type Options struct {
	OpenDistance  float64
	SpeedPerPower float64
	TurnPerPower  float64
	ShovelRate    float64
	SoundLength   time.Duration
	RemoteHold    time.Duration
	// ReadLatency is how long each sensor read takes. Zero reads instantly.
	ReadLatency time.Duration

	Now   func() time.Time
	Sleep func(time.Duration)
}

// Snapshot is the observable state of the world.
type Snapshot struct {
	Distance    float64
	Left, Right int
	Braked      bool
	Shovel      float64
	ShovelHeld  bool
	Heading     float64
	Lanes       int
	Touch       bool
	LastSound   string
	SoundsTotal int
	Text        string
}

type remoteKey struct {
	raw   int
	until time.Time
}

// World is a simulated dozer and its surroundings.
type World struct {
	opts Options

	mu         sync.Mutex
	last       time.Time
	distance   float64
	left       int
	right      int
	braked     bool
	heading    float64
	turned     float64
	lanes      int
	shovel     float64
	shovelPow  int
	shovelHeld bool
	touchHeld  bool
	touchTap   bool
	remote     [5]remoteKey
	escape     bool
	exit       bool
	lastSound  string
	sounds     int
	text       string
}

// NewWorld creates a world with the dozer at the start of an open lane.
func NewWorld(opts Options) *World {
	if opts.OpenDistance == 0 {
		opts.OpenDistance = DefaultOpenDistance
	}
	if opts.SpeedPerPower == 0 {
		opts.SpeedPerPower = DefaultSpeedPerPower
	}
	if opts.TurnPerPower == 0 {
		opts.TurnPerPower = DefaultTurnPerPower
	}
	if opts.ShovelRate == 0 {
		opts.ShovelRate = DefaultShovelRate
	}
	if opts.SoundLength == 0 {
		opts.SoundLength = DefaultSoundLength
	}
	if opts.RemoteHold == 0 {
		opts.RemoteHold = DefaultRemoteHold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &World{
		opts:     opts,
		last:     opts.Now(),
		distance: opts.OpenDistance,
		braked:   true,
	}
}

// advance integrates motion since the last call. Callers hold w.mu.
func (w *World) advance() {
	now := w.opts.Now()
	dt := now.Sub(w.last).Seconds()
	w.last = now
	if dt <= 0 {
		return
	}

	forward := -float64(w.left+w.right) / 2
	w.distance -= forward * w.opts.SpeedPerPower * dt
	w.distance = math.Max(0, math.Min(w.opts.OpenDistance, w.distance))

	turn := float64(w.left-w.right) / 2 * w.opts.TurnPerPower * dt
	w.heading = math.Mod(w.heading+turn+360, 360)
	w.turned += math.Abs(turn)
	if w.turned >= 90 {
		w.turned = 0
		w.lanes++
		w.distance = w.opts.OpenDistance
	}

	w.shovel += float64(w.shovelPow) * w.opts.ShovelRate * dt
	w.shovel = math.Max(-100, math.Min(100, w.shovel))
}

func (w *World) setDrive(left, right int, braked bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	w.left, w.right, w.braked = left, right, braked
	if left == right && left != 0 {
		w.turned = 0
	}
}

// SetRemote presses a button combination on channel for the hold time.
func (w *World) SetRemote(channel, raw int) {
	if channel < 1 || channel > 4 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.remote[channel] = remoteKey{raw: raw, until: w.opts.Now().Add(w.opts.RemoteHold)}
}

// TapTouch presses the touch sensor until the next read.
func (w *World) TapTouch() {
	w.mu.Lock()
	w.touchTap = true
	w.mu.Unlock()
}

// HoldTouch keeps the touch sensor pressed or released.
func (w *World) HoldTouch(pressed bool) {
	w.mu.Lock()
	w.touchHeld = pressed
	w.mu.Unlock()
}

// PressEscape presses the escape button for good.
func (w *World) PressEscape() {
	w.mu.Lock()
	w.escape = true
	w.mu.Unlock()
}

// AssertExit raises the exit signal.
func (w *World) AssertExit() {
	w.mu.Lock()
	w.exit = true
	w.mu.Unlock()
}

// PlaceWall puts a wall at distance d ahead.
func (w *World) PlaceWall(d float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	w.distance = d
}

// Snapshot returns the current world state.
func (w *World) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	return Snapshot{
		Distance:    w.distance,
		Left:        w.left,
		Right:       w.right,
		Braked:      w.braked,
		Shovel:      w.shovel,
		ShovelHeld:  w.shovelHeld,
		Heading:     w.heading,
		Lanes:       w.lanes,
		Touch:       w.touchHeld || w.touchTap,
		LastSound:   w.lastSound,
		SoundsTotal: w.sounds,
		Text:        w.text,
	}
}

// Vehicle returns the collaborators backed by this world.
func (w *World) Vehicle() robot.Vehicle {
	return robot.Vehicle{
		Implement: shovel{w},
		Drive:     tracks{w},
		Touch:     touch{w},
		Proximity: proximity{w},
		Remote:    receiver{w},
		Audio:     speaker{w},
		Display:   screen{w},
		Escape:    escapeButton{w},
		Exit:      exitButton{w},
	}
}

type tracks struct{ w *World }

func (t tracks) SetPower(left, right int) { t.w.setDrive(left, right, false) }
func (t tracks) BrakeStop()               { t.w.setDrive(0, 0, true) }

func (t tracks) RunForDuration(left, right int, d time.Duration, brake bool) {
	t.w.setDrive(left, right, false)
	t.w.opts.Sleep(d)
	t.w.setDrive(0, 0, brake)
}

type shovel struct{ w *World }

func (s shovel) SetPower(power int) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.advance()
	s.w.shovelPow = power
	s.w.shovelHeld = false
}

func (s shovel) BrakeStop(hold bool) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.advance()
	s.w.shovelPow = 0
	s.w.shovelHeld = hold
}

// settle waits out the sensor read latency.
func (w *World) settle() {
	if w.opts.ReadLatency > 0 {
		w.opts.Sleep(w.opts.ReadLatency)
	}
}

type touch struct{ w *World }

func (t touch) Read() robot.TouchState {
	t.w.settle()
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	pressed := t.w.touchHeld || t.w.touchTap
	t.w.touchTap = false
	if pressed {
		return robot.Pressed
	}
	return robot.Released
}

type proximity struct{ w *World }

func (p proximity) Read() float64 {
	p.w.settle()
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	p.w.advance()
	return p.w.distance
}

type receiver struct{ w *World }

func (r receiver) Read(channel int) int {
	if channel < 1 || channel > 4 {
		return 0
	}
	r.w.settle()
	r.w.mu.Lock()
	defer r.w.mu.Unlock()
	k := r.w.remote[channel]
	if r.w.opts.Now().After(k.until) {
		return 0
	}
	return k.raw
}

type speaker struct{ w *World }

func (s speaker) Play(name string, volume int, blocking bool) {
	s.w.mu.Lock()
	s.w.lastSound = name
	s.w.sounds++
	s.w.mu.Unlock()
	if blocking {
		s.w.opts.Sleep(s.w.opts.SoundLength)
	}
}

type screen struct{ w *World }

func (s screen) ShowText(text string, clear bool, x, y int, color robot.Color, font robot.FontSize) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if clear {
		s.w.text = ""
	}
	s.w.text += text
}

type escapeButton struct{ w *World }

func (b escapeButton) IsPressed() bool {
	b.w.mu.Lock()
	defer b.w.mu.Unlock()
	return b.w.escape
}

type exitButton struct{ w *World }

func (b exitButton) IsAsserted() bool {
	b.w.mu.Lock()
	defer b.w.mu.Unlock()
	return b.w.exit
}
