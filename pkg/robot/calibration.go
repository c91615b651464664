package robot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// ServoCalibration holds the travel limits of the shovel servo.
type ServoCalibration struct {
	ID       int `json:"id"`
	RangeMin int `json:"range_min"`
	RangeMax int `json:"range_max"`
}

// Normalize converts a raw servo position to a normalized value in the range [-100, 100].
func (c ServoCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	return (float64(raw-c.RangeMin)/rangeSize)*200 - 100
}

// Denormalize converts a normalized value [-100, 100] to a raw servo position.
// Values outside the range are clamped to the travel limits.
func (c ServoCalibration) Denormalize(norm float64) int {
	norm = clamp(norm, -100, 100)
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int((norm+100)/200*rangeSize) + c.RangeMin
}

// IsCalibrated returns true if the servo has a usable travel range.
func (c ServoCalibration) IsCalibrated() bool {
	return c.RangeMax > c.RangeMin
}

// SensorCalibration maps raw proximity sensor values onto [0, 100].
type SensorCalibration struct {
	RawMin float64 `json:"raw_min"`
	RawMax float64 `json:"raw_max"`
}

// Normalize converts a raw sensor value to the range [0, 100].
// An empty calibration passes the value through, clamped.
func (c SensorCalibration) Normalize(raw float64) float64 {
	rangeSize := c.RawMax - c.RawMin
	if rangeSize == 0 {
		return clamp(raw, 0, 100)
	}
	return clamp((raw-c.RawMin)/rangeSize*100, 0, 100)
}

// LoadServoCalibration loads a servo calibration from a JSON file.
func LoadServoCalibration(path string) (ServoCalibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServoCalibration{}, fmt.Errorf("read calibration file: %w", err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return ServoCalibration{}, fmt.Errorf("parse calibration file: %w", err)
	}

	var cal ServoCalibration
	if err := json.Unmarshal(std, &cal); err != nil {
		return ServoCalibration{}, fmt.Errorf("parse calibration JSON: %w", err)
	}
	return cal, nil
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
