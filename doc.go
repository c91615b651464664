// Package robodozer drives a tracked dozer robot with a shovel.
//
// The vehicle switches between two modes with a touch sensor: in driving mode
// an infrared remote steers the tracks and raises or lowers the shovel, in auto
// mode the dozer pushes ahead on its own and backs off with a short scripted
// maneuver whenever the proximity sensor reports an obstacle.
//
// # Installation
//
//	go install github.com/gwillem/robodozer/cmd/robodozer@latest
//
// # Usage
//
// First, run setup to find the motor bridge and write robodozer.json:
//
//	robodozer setup
//
// Then start the controller:
//
//	robodozer run
//
// Without hardware, the same dashboard runs against a simulated vehicle:
//
//	robodozer run --sim
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/robodozer: CLI with setup, run and info commands
//   - pkg/robot: collaborator contracts, ports, calibration, configuration and the shovel servo
//   - pkg/remote: infrared remote command decoding
//   - pkg/dozer: mode arbiter, driving/auto mode controllers and exit watcher
//   - pkg/bridge: serial line protocol to the motor and sensor brick
//   - pkg/sim: simulated vehicle for running without hardware
package robodozer
