// Package robot provides the hardware contracts, port layout and configuration
// of the dozer.
package robot

import "fmt"

// MotorPort identifies an output port on the brick.
type MotorPort string

// Motor ports on the brick.
const (
	MotorA MotorPort = "A"
	MotorB MotorPort = "B"
	MotorC MotorPort = "C"
	MotorD MotorPort = "D"
)

// SensorPort identifies an input port on the brick.
type SensorPort string

// Sensor ports on the brick.
const (
	Sensor1 SensorPort = "S1"
	Sensor2 SensorPort = "S2"
	Sensor3 SensorPort = "S3"
	Sensor4 SensorPort = "S4"
)

// AllMotorPorts returns all motor ports in order.
func AllMotorPorts() []MotorPort {
	return []MotorPort{MotorA, MotorB, MotorC, MotorD}
}

// AllSensorPorts returns all sensor ports in order.
func AllSensorPorts() []SensorPort {
	return []SensorPort{Sensor1, Sensor2, Sensor3, Sensor4}
}

// Validate returns an error if p is not a motor port of the brick.
func (p MotorPort) Validate() error {
	for _, mp := range AllMotorPorts() {
		if p == mp {
			return nil
		}
	}
	return fmt.Errorf("unknown motor port %q", string(p))
}

// Validate returns an error if p is not a sensor port of the brick.
func (p SensorPort) Validate() error {
	for _, sp := range AllSensorPorts() {
		if p == sp {
			return nil
		}
	}
	return fmt.Errorf("unknown sensor port %q", string(p))
}
