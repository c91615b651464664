package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/robodozer/internal/log"
	"github.com/gwillem/robodozer/pkg/dozer"
	"github.com/gwillem/robodozer/pkg/remote"
	"github.com/gwillem/robodozer/pkg/robot"
	"github.com/gwillem/robodozer/pkg/sim"
)

func TestLoadConfig_SimFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	cfg, err := loadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, robot.DefaultConfig(), cfg)

	_, err = loadConfig(path, false)
	assert.Error(t, err)
}

func TestOpenVehicle_Sim(t *testing.T) {
	w := sim.NewWorld(sim.Options{})
	v, release, err := openVehicle(robot.DefaultConfig(), w)
	require.NoError(t, err)
	defer release()

	assert.NotNil(t, v.Drive)
	assert.NotNil(t, v.Exit)
}

func TestOpenVehicle_NoBrickPort(t *testing.T) {
	_, _, err := openVehicle(robot.DefaultConfig(), nil)
	assert.ErrorContains(t, err, "setup")
}

func TestDashboard_SimKeys(t *testing.T) {
	w := sim.NewWorld(sim.Options{})
	m := dashboardModel{world: w, behavior: robot.DefaultBehavior()}
	rx := w.Vehicle().Remote

	m.simKey("w")
	assert.Equal(t, int(remote.TopBoth), rx.Read(1))

	m.simKey("r")
	assert.Equal(t, int(remote.TopLeft), rx.Read(4))

	m.simKey("t")
	assert.Equal(t, robot.Pressed, w.Vehicle().Touch.Read())

	m.simKey("esc")
	assert.True(t, w.Vehicle().Escape.IsPressed())
	assert.Len(t, m.logs, 1)

	m.simKey("enter")
	assert.True(t, w.Vehicle().Exit.IsAsserted())
}

func TestDashboard_QuitStopsControllerFirst(t *testing.T) {
	stopped := false
	m := dashboardModel{stop: func() { stopped = true }}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.False(t, stopped, "stop must not run on the UI goroutine")
	assert.True(t, next.(dashboardModel).quitting)

	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, stopped)
}

func TestControllerRun_StopBrakesAfterControllerReturns(t *testing.T) {
	w := sim.NewWorld(sim.Options{ReadLatency: time.Millisecond, SoundLength: time.Millisecond})
	v := w.Vehicle()

	b := robot.DefaultBehavior()
	b.IdleWindow = robot.Duration(time.Millisecond)
	ctrl, err := dozer.NewController(v, dozer.Config{Behavior: b, Logger: log.Discard()})
	require.NoError(t, err)

	r := startController(context.Background(), ctrl, v)

	// Hold the forward buttons until the tracks run.
	require.Eventually(t, func() bool {
		w.SetRemote(b.DriveChannel, int(remote.TopBoth))
		return w.Snapshot().Left == -b.DrivePower
	}, 2*time.Second, 5*time.Millisecond)

	r.stop()
	require.NoError(t, r.failed())

	s := w.Snapshot()
	assert.True(t, s.Braked)
	assert.Equal(t, 0, s.Left)
	assert.Equal(t, 0, s.Right)
	assert.False(t, s.ShovelHeld)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, w.Snapshot().Left)
}
