package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gwillem/robodozer/pkg/bridge"
	"github.com/gwillem/robodozer/pkg/robot"
	"github.com/gwillem/robodozer/pkg/sim"
)

// loadConfig reads path. A simulated run falls back to the defaults when the
// file does not exist.
func loadConfig(path string, simulated bool) (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(path)
	if err == nil {
		return cfg, nil
	}
	if simulated && errors.Is(err, os.ErrNotExist) {
		return robot.DefaultConfig(), nil
	}
	return nil, err
}

// openVehicle builds the collaborators for cfg, or wraps world when it is
// set. The returned func releases the hardware.
func openVehicle(cfg *robot.Config, world *sim.World) (robot.Vehicle, func(), error) {
	if world != nil {
		return world.Vehicle(), func() {}, nil
	}

	if cfg.Bridge.Port == "" {
		return robot.Vehicle{}, nil, errors.New("no brick port configured, run 'robodozer setup' first")
	}
	b, err := bridge.Open(cfg.Bridge)
	if err != nil {
		return robot.Vehicle{}, nil, err
	}
	v := b.Vehicle(cfg.Ports)
	closers := []func() error{b.Close}

	if cfg.Implement.Driver == robot.ImplementFeetech {
		s, err := robot.NewServoImplement(cfg.Implement)
		if err != nil {
			b.Close()
			return robot.Vehicle{}, nil, fmt.Errorf("shovel servo: %w", err)
		}
		v.Implement = s
		closers = append(closers, s.Close)
	}

	return v, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}
