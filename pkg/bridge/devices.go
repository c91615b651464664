package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gwillem/robodozer/pkg/robot"
)

func flag(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (b *Bridge) expectOK(timeout time.Duration, args ...any) error {
	reply, err := b.do(timeout, args...)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%v: unexpected reply %q", args[0], reply)
	}
	return nil
}

// SetMotor switches a motor on with the given power.
func (b *Bridge) SetMotor(port robot.MotorPort, power int) error {
	return b.expectOK(b.timeout, "MOTOR", port, power)
}

// SetDrive switches both drive motors on at once.
func (b *Bridge) SetDrive(left, right robot.MotorPort, lpow, rpow int) error {
	return b.expectOK(b.timeout, "DRIVE", left, right, lpow, rpow)
}

// StopMotors stops the given motors with the brake or coasting.
func (b *Bridge) StopMotors(brake bool, ports ...robot.MotorPort) error {
	args := []any{"STOP", flag(brake)}
	for _, p := range ports {
		args = append(args, p)
	}
	return b.expectOK(b.timeout, args...)
}

// RunTank runs both drive motors for d, then brakes or coasts them. The line
// is free for other requests while the motors run. RunTank takes at least d
// even when the brick fails to answer.
func (b *Bridge) RunTank(left, right robot.MotorPort, lpow, rpow int, d time.Duration, brake bool) error {
	start := time.Now()
	runErr := b.SetDrive(left, right, lpow, rpow)
	if rest := d - time.Since(start); rest > 0 {
		time.Sleep(rest)
	}
	return errors.Join(runErr, b.StopMotors(brake, left, right))
}

// Touch reads a touch sensor.
func (b *Bridge) Touch(port robot.SensorPort) (bool, error) {
	reply, err := b.Do("TOUCH", port)
	if err != nil {
		return false, err
	}
	return parseBool(reply)
}

// Proximity reads the infrared sensor in proximity mode.
func (b *Bridge) Proximity(port robot.SensorPort) (float64, error) {
	reply, err := b.Do("PROX", port)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("parse proximity %q: %w", reply, err)
	}
	return v, nil
}

// Remote reads the infrared sensor in remote mode for channel.
func (b *Bridge) Remote(port robot.SensorPort, channel int) (int, error) {
	reply, err := b.Do("REMOTE", port, channel)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(reply)
	if err != nil {
		return 0, fmt.Errorf("parse remote %q: %w", reply, err)
	}
	return v, nil
}

// PlaySound starts a sound file. With wait it polls until playback is over;
// the line is free for other requests between polls.
func (b *Bridge) PlaySound(name string, volume int, wait bool) error {
	if err := b.expectOK(b.timeout, "SOUND", volume, name); err != nil {
		return err
	}
	if !wait {
		return nil
	}

	deadline := time.Now().Add(soundTimeout)
	for {
		playing, err := b.Playing()
		if err != nil {
			return fmt.Errorf("wait for %q: %w", name, err)
		}
		if !playing {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("wait for %q: %w", name, ErrTimeout)
		}
		time.Sleep(soundPoll)
	}
}

// Playing reports whether a sound is still playing.
func (b *Bridge) Playing() (bool, error) {
	reply, err := b.Do("PLAYING")
	if err != nil {
		return false, err
	}
	return parseBool(reply)
}

// Button reads a brick button.
func (b *Bridge) Button(name string) (bool, error) {
	reply, err := b.Do("BUTTON", name)
	if err != nil {
		return false, err
	}
	return parseBool(reply)
}

// Text writes text on the brick screen.
func (b *Bridge) Text(text string, clear bool, x, y int, color robot.Color, font robot.FontSize) error {
	return b.expectOK(b.timeout, "TEXT", x, y, int(color), int(font), flag(clear), text)
}

func parseBool(s string) (bool, error) {
	switch s {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, fmt.Errorf("unexpected flag %q", s)
}

// Vehicle returns adapters for every collaborator on the brick.
func (b *Bridge) Vehicle(ports robot.PortsConfig) robot.Vehicle {
	return robot.Vehicle{
		Implement: &Motor{b: b, port: ports.Implement},
		Drive:     &Tank{b: b, left: ports.DriveLeft, right: ports.DriveRight},
		Touch:     &Touch{b: b, port: ports.Touch},
		Proximity: &Proximity{b: b, port: ports.Infrared},
		Remote:    &Remote{b: b, port: ports.Infrared},
		Audio:     &Sound{b: b},
		Display:   &Screen{b: b},
		Escape:    &Button{b: b, name: "ESCAPE"},
		Exit:      &Button{b: b, name: "ENTER"},
	}
}

// Motor is a single motor on the brick.
type Motor struct {
	b    *Bridge
	port robot.MotorPort
}

func (m *Motor) SetPower(power int) {
	if err := m.b.SetMotor(m.port, power); err != nil {
		m.b.logger.Warn("motor power failed", "port", m.port, "err", err)
	}
}

func (m *Motor) BrakeStop(hold bool) {
	if err := m.b.StopMotors(hold, m.port); err != nil {
		m.b.logger.Warn("motor stop failed", "port", m.port, "err", err)
	}
}

// Tank is the drive motor pair on the brick.
type Tank struct {
	b           *Bridge
	left, right robot.MotorPort
}

func (t *Tank) SetPower(left, right int) {
	if err := t.b.SetDrive(t.left, t.right, left, right); err != nil {
		t.b.logger.Warn("drive power failed", "err", err)
	}
}

func (t *Tank) BrakeStop() {
	if err := t.b.StopMotors(true, t.left, t.right); err != nil {
		t.b.logger.Warn("drive stop failed", "err", err)
	}
}

// RunForDuration blocks for at least d even when the brick fails to answer.
func (t *Tank) RunForDuration(left, right int, d time.Duration, brake bool) {
	if err := t.b.RunTank(t.left, t.right, left, right, d, brake); err != nil {
		t.b.logger.Warn("timed drive failed", "err", err)
	}
}

// Touch is a touch sensor; failed reads repeat the last state.
type Touch struct {
	b    *Bridge
	port robot.SensorPort

	mu   sync.Mutex
	last robot.TouchState
}

func (t *Touch) Read() robot.TouchState {
	t.mu.Lock()
	defer t.mu.Unlock()
	pressed, err := t.b.Touch(t.port)
	if err != nil {
		t.b.logger.Warn("touch read failed", "port", t.port, "err", err)
		return t.last
	}
	t.last = robot.Released
	if pressed {
		t.last = robot.Pressed
	}
	return t.last
}

// Proximity is the infrared sensor in proximity mode; failed reads repeat
// the last value.
type Proximity struct {
	b    *Bridge
	port robot.SensorPort

	mu   sync.Mutex
	last float64
}

func (p *Proximity) Read() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := p.b.Proximity(p.port)
	if err != nil {
		p.b.logger.Warn("proximity read failed", "port", p.port, "err", err)
		return p.last
	}
	p.last = v
	return v
}

// Remote is the infrared sensor in remote mode; failed reads are "no button".
type Remote struct {
	b    *Bridge
	port robot.SensorPort
}

func (r *Remote) Read(channel int) int {
	v, err := r.b.Remote(r.port, channel)
	if err != nil {
		r.b.logger.Warn("remote read failed", "port", r.port, "channel", channel, "err", err)
		return 0
	}
	return v
}

// Sound plays sound files on the brick speaker.
type Sound struct {
	b *Bridge
}

func (s *Sound) Play(name string, volume int, blocking bool) {
	if err := s.b.PlaySound(name, volume, blocking); err != nil {
		s.b.logger.Warn("sound failed", "name", name, "err", err)
	}
}

// Screen is the brick display.
type Screen struct {
	b *Bridge
}

func (s *Screen) ShowText(text string, clear bool, x, y int, color robot.Color, font robot.FontSize) {
	if err := s.b.Text(text, clear, x, y, color, font); err != nil {
		s.b.logger.Warn("display failed", "err", err)
	}
}

// Button is a brick button; failed reads count as not pressed.
type Button struct {
	b    *Bridge
	name string
}

func (b *Button) IsPressed() bool {
	pressed, err := b.b.Button(b.name)
	if err != nil {
		b.b.logger.Warn("button read failed", "button", b.name, "err", err)
		return false
	}
	return pressed
}

// IsAsserted lets a button act as the exit signal.
func (b *Button) IsAsserted() bool {
	return b.IsPressed()
}
