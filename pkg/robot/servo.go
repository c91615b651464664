package robot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/robodozer/internal/log"
)

// servoTimeout bounds a single bus transaction.
const servoTimeout = 100 * time.Millisecond

// ServoImplement drives the shovel with a Feetech bus servo instead of a
// brick motor. Each SetPower call steps the target position by
// power*StepPerPower in normalized units.
type ServoImplement struct {
	bus    *feetech.Bus
	group  *feetech.ServoGroup
	cal    ServoCalibration
	step   float64
	logger *slog.Logger
}

// NewServoImplement opens the servo bus from cfg.
func NewServoImplement(cfg ImplementConfig) (*ServoImplement, error) {
	if !cfg.Calibration.IsCalibrated() {
		return nil, fmt.Errorf("servo %d not calibrated", cfg.Calibration.ID)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.ServoPort,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  servoTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	return &ServoImplement{
		bus:    bus,
		group:  feetech.NewServoGroupByIDs(bus, cfg.Calibration.ID),
		cal:    cfg.Calibration,
		step:   cfg.StepPerPower,
		logger: log.With("servo", cfg.Calibration.ID),
	}, nil
}

// Close closes the servo bus.
func (s *ServoImplement) Close() error {
	return s.bus.Close()
}

func (s *ServoImplement) position(ctx context.Context) (int, error) {
	positions, err := s.group.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("read position: %w", err)
	}
	raw, ok := positions[s.cal.ID]
	if !ok {
		return 0, fmt.Errorf("no reply from servo %d", s.cal.ID)
	}
	return raw, nil
}

func (s *ServoImplement) SetPower(power int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*servoTimeout)
	defer cancel()

	raw, err := s.position(ctx)
	if err != nil {
		s.logger.Warn("servo step failed", "err", err)
		return
	}
	target := StepTarget(s.cal, raw, power, s.step)
	if err := s.group.SetPositions(ctx, feetech.PositionMap{s.cal.ID: target}); err != nil {
		s.logger.Warn("servo step failed", "err", err)
	}
}

// BrakeStop keeps torque on to hold the shovel, or releases it.
func (s *ServoImplement) BrakeStop(hold bool) {
	ctx, cancel := context.WithTimeout(context.Background(), servoTimeout)
	defer cancel()

	var err error
	if hold {
		err = s.group.EnableAll(ctx)
	} else {
		err = s.group.DisableAll(ctx)
	}
	if err != nil {
		s.logger.Warn("servo stop failed", "hold", hold, "err", err)
	}
}

// StepTarget returns the raw position one step of power away from raw,
// clamped to the calibrated travel.
func StepTarget(cal ServoCalibration, raw, power int, stepPerPower float64) int {
	return cal.Denormalize(cal.Normalize(raw) + float64(power)*stepPerPower)
}

// ScanServos lists the servos answering on port.
func ScanServos(ctx context.Context, port string) ([]feetech.FoundServo, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  servoTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}
	defer bus.Close()

	servos, err := bus.Scan(ctx, 1, 20)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", port, err)
	}
	return servos, nil
}
