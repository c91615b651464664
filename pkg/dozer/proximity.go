package dozer

import "github.com/gwillem/robodozer/pkg/robot"

// ProximityMonitor reads the proximity sensor and normalizes it to [0, 100].
type ProximityMonitor struct {
	sensor robot.ProximitySensor
	cal    robot.SensorCalibration
}

// NewProximityMonitor wraps sensor with the given calibration.
func NewProximityMonitor(sensor robot.ProximitySensor, cal robot.SensorCalibration) *ProximityMonitor {
	return &ProximityMonitor{sensor: sensor, cal: cal}
}

// Read samples the sensor once.
func (m *ProximityMonitor) Read() float64 {
	return m.cal.Normalize(m.sensor.Read())
}

// IsObstacle reports whether a normalized reading is closer than threshold.
func IsObstacle(proximity, threshold float64) bool {
	return proximity < threshold
}
