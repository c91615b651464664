package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

const DefaultConfigFile = "robodozer.json"

// Implement drivers.
const (
	ImplementBridge  = "bridge"
	ImplementFeetech = "feetech"
)

// Config holds the robot configuration
type Config struct {
	Bridge    BridgeConfig      `json:"bridge"`
	Ports     PortsConfig       `json:"ports"`
	Implement ImplementConfig   `json:"implement"`
	Proximity SensorCalibration `json:"proximity"`
	Behavior  Behavior          `json:"behavior"`
	Log       LogConfig         `json:"log"`
}

// BridgeConfig holds the serial connection to the motor and sensor brick
type BridgeConfig struct {
	Port        string   `json:"port"`
	BaudRate    int      `json:"baud_rate"`
	ReadTimeout Duration `json:"read_timeout"`
}

// PortsConfig assigns motors and sensors to brick ports
type PortsConfig struct {
	Implement  MotorPort  `json:"implement"`
	DriveLeft  MotorPort  `json:"drive_left"`
	DriveRight MotorPort  `json:"drive_right"`
	Touch      SensorPort `json:"touch"`
	Infrared   SensorPort `json:"infrared"`
}

// ImplementConfig selects how the shovel is driven
type ImplementConfig struct {
	Driver      string           `json:"driver"`
	ServoPort   string           `json:"servo_port,omitempty"`
	Calibration ServoCalibration `json:"calibration"`
	// StepPerPower is the normalized travel per power unit per command.
	StepPerPower float64 `json:"step_per_power,omitempty"`
}

// Sound is a named sound file and its volume.
type Sound struct {
	Name   string `json:"name"`
	Volume int    `json:"volume"`
}

// Behavior holds the control parameters of both modes.
type Behavior struct {
	ImplementChannel int `json:"implement_channel"`
	DriveChannel     int `json:"drive_channel"`
	ImplementPower   int `json:"implement_power"`
	DrivePower       int `json:"drive_power"`

	ObstacleThreshold float64  `json:"obstacle_threshold"`
	CruisePower       int      `json:"cruise_power"`
	Dwell             Duration `json:"dwell"`
	BackOffPower      int      `json:"back_off_power"`
	BackOffTime       Duration `json:"back_off_time"`
	PivotLeft         int      `json:"pivot_left"`
	PivotRight        int      `json:"pivot_right"`
	PivotTime         Duration `json:"pivot_time"`

	StartupSound    Sound    `json:"startup_sound"`
	IdleWindow      Duration `json:"idle_window"`
	TransitionSound Sound    `json:"transition_sound"`
}

// LogConfig holds logging settings
type LogConfig struct {
	File  string `json:"file"`
	Level string `json:"level"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// DefaultBehavior returns the stock control parameters.
func DefaultBehavior() Behavior {
	var b Behavior
	applyBehaviorDefaults(&b)
	return b
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file.
// Comments and trailing commas are allowed.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

// Validate checks port assignments and the implement driver.
func (c *Config) Validate() error {
	var errs []error
	for _, p := range []MotorPort{c.Ports.Implement, c.Ports.DriveLeft, c.Ports.DriveRight} {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Ports.DriveLeft == c.Ports.DriveRight {
		errs = append(errs, fmt.Errorf("drive motors share port %q", string(c.Ports.DriveLeft)))
	}
	for _, p := range []SensorPort{c.Ports.Touch, c.Ports.Infrared} {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Implement.Driver {
	case ImplementBridge:
	case ImplementFeetech:
		if c.Implement.ServoPort == "" {
			errs = append(errs, errors.New("feetech implement needs servo_port"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown implement driver %q", c.Implement.Driver))
	}
	for _, ch := range []int{c.Behavior.ImplementChannel, c.Behavior.DriveChannel} {
		if ch < 1 || ch > 4 {
			errs = append(errs, fmt.Errorf("remote channel %d out of range 1-4", ch))
		}
	}
	b := c.Behavior
	powers := []struct {
		name  string
		power int
	}{
		{"implement_power", b.ImplementPower},
		{"drive_power", b.DrivePower},
		{"cruise_power", b.CruisePower},
		{"back_off_power", b.BackOffPower},
		{"pivot_left", b.PivotLeft},
		{"pivot_right", b.PivotRight},
	}
	for _, p := range powers {
		if p.power < -100 || p.power > 100 {
			errs = append(errs, fmt.Errorf("%s %d out of range -100..100", p.name, p.power))
		}
	}
	return errors.Join(errs...)
}

// applyDefaults fills in zero-value fields with the stock dozer layout.
func applyDefaults(cfg *Config) {
	if cfg.Bridge.BaudRate == 0 {
		cfg.Bridge.BaudRate = 115200
	}
	if cfg.Bridge.ReadTimeout == 0 {
		cfg.Bridge.ReadTimeout = Duration(500 * time.Millisecond)
	}
	if cfg.Ports.Implement == "" {
		cfg.Ports.Implement = MotorA
	}
	if cfg.Ports.DriveLeft == "" {
		cfg.Ports.DriveLeft = MotorB
	}
	if cfg.Ports.DriveRight == "" {
		cfg.Ports.DriveRight = MotorC
	}
	if cfg.Ports.Touch == "" {
		cfg.Ports.Touch = Sensor1
	}
	if cfg.Ports.Infrared == "" {
		cfg.Ports.Infrared = Sensor4
	}
	if cfg.Implement.Driver == "" {
		cfg.Implement.Driver = ImplementBridge
	}
	if cfg.Implement.StepPerPower == 0 {
		cfg.Implement.StepPerPower = 0.1
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "robodozer.log"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	applyBehaviorDefaults(&cfg.Behavior)
}

func applyBehaviorDefaults(b *Behavior) {
	if b.ImplementChannel == 0 {
		b.ImplementChannel = 4
	}
	if b.DriveChannel == 0 {
		b.DriveChannel = 1
	}
	if b.ImplementPower == 0 {
		b.ImplementPower = 10
	}
	if b.DrivePower == 0 {
		b.DrivePower = 50
	}
	if b.ObstacleThreshold == 0 {
		b.ObstacleThreshold = 50
	}
	if b.CruisePower == 0 {
		b.CruisePower = -50
	}
	if b.Dwell == 0 {
		b.Dwell = Duration(time.Second)
	}
	if b.BackOffPower == 0 {
		b.BackOffPower = 30
	}
	if b.BackOffTime == 0 {
		b.BackOffTime = Duration(time.Second)
	}
	if b.PivotLeft == 0 && b.PivotRight == 0 {
		b.PivotLeft, b.PivotRight = 50, -50
	}
	if b.PivotTime == 0 {
		b.PivotTime = Duration(time.Second)
	}
	if b.StartupSound.Name == "" {
		b.StartupSound = Sound{Name: "Motor start", Volume: 56}
	}
	if b.IdleWindow == 0 {
		b.IdleWindow = Duration(2 * time.Second)
	}
	if b.TransitionSound.Name == "" {
		b.TransitionSound = Sound{Name: "Airbrake", Volume: 100}
	}
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalJSON accepts a duration string such as "1.5s", or a bare number
// of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		dur, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(dur)
	case float64:
		*d = Duration(v)
	default:
		return fmt.Errorf("duration must be a string like \"1s\" or nanoseconds, got %s", b)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
