package robot

import "time"

// TouchState is the reading of a binary touch sensor.
type TouchState int

const (
	Released TouchState = iota
	Pressed
)

func (s TouchState) String() string {
	if s == Pressed {
		return "pressed"
	}
	return "released"
}

// Color is a display text color.
type Color int

const (
	ColorBlack Color = iota
	ColorWhite
)

// FontSize is a display font.
type FontSize int

const (
	FontNormal FontSize = iota
	FontBold
	FontLarge
)

// DriveActuator is the skid-steer drive pair.
type DriveActuator interface {
	SetPower(left, right int)
	BrakeStop()
	// RunForDuration blocks for d, then brakes or coasts.
	RunForDuration(left, right int, d time.Duration, brake bool)
}

// ImplementActuator is the motor moving the shovel.
type ImplementActuator interface {
	SetPower(power int)
	BrakeStop(hold bool)
}

// TouchSensor reads the mode-toggle touch sensor.
type TouchSensor interface {
	Read() TouchState
}

// ProximitySensor reads a distance-like value; larger means farther.
type ProximitySensor interface {
	Read() float64
}

// RemoteReceiver reads the raw infrared remote value for a channel.
type RemoteReceiver interface {
	Read(channel int) int
}

// AudioCue plays named sound files.
type AudioCue interface {
	Play(name string, volume int, blocking bool)
}

// StatusDisplay renders status text on the brick screen.
type StatusDisplay interface {
	ShowText(text string, clear bool, x, y int, color Color, font FontSize)
}

// ExitConfirm is the operator's stop signal.
type ExitConfirm interface {
	IsAsserted() bool
}

// Button is a momentary push button.
type Button interface {
	IsPressed() bool
}

// Vehicle bundles every collaborator the controller talks to.
// Hardware and simulated backends both produce one.
type Vehicle struct {
	Implement ImplementActuator
	Drive     DriveActuator
	Touch     TouchSensor
	Proximity ProximitySensor
	Remote    RemoteReceiver
	Audio     AudioCue
	Display   StatusDisplay
	Escape    Button
	Exit      ExitConfirm
}
