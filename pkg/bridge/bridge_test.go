package bridge

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/robodozer/internal/log"
	"github.com/gwillem/robodozer/pkg/dozer"
	"github.com/gwillem/robodozer/pkg/robot"
)

// fakeBrick answers requests on the far end of a pipe. An empty reply means
// the brick stays silent. Requests are recorded without their sequence number.
type fakeBrick struct {
	mu       sync.Mutex
	writeMu  sync.Mutex
	requests []string
	handle   func(req string) string
	// delay, when set, holds back the reply to req.
	delay func(req string) time.Duration
}

func (f *fakeBrick) serve(conn net.Conn) {
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		id, req, _ := strings.Cut(sc.Text(), " ")
		f.mu.Lock()
		f.requests = append(f.requests, req)
		handle, delay := f.handle, f.delay
		f.mu.Unlock()

		reply := handle(req)
		if reply == "" {
			continue
		}
		line := id + " " + reply + "\n"
		if delay != nil {
			if d := delay(req); d > 0 {
				go func() {
					time.Sleep(d)
					f.write(conn, line)
				}()
				continue
			}
		}
		if err := f.write(conn, line); err != nil {
			return
		}
	}
}

func (f *fakeBrick) write(conn net.Conn, line string) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_, err := conn.Write([]byte(line))
	return err
}

func (f *fakeBrick) setDelay(delay func(req string) time.Duration) {
	f.mu.Lock()
	f.delay = delay
	f.mu.Unlock()
}

func (f *fakeBrick) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestBridge(t *testing.T, handle func(req string) string) (*Bridge, *fakeBrick) {
	t.Helper()
	client, server := net.Pipe()
	brick := &fakeBrick{handle: handle}
	go brick.serve(server)

	b := New(client, WithTimeout(200*time.Millisecond), WithLogger(log.Discard()))
	t.Cleanup(func() {
		b.Close()
		server.Close()
	})
	return b, brick
}

func okBrick(req string) string {
	switch {
	case req == "PING":
		return "PONG"
	case req == "TOUCH S1":
		return "1"
	case req == "PROX S4":
		return "37.5"
	case req == "REMOTE S4 1":
		return "6"
	case req == "BUTTON ENTER":
		return "0"
	case req == "BUTTON ESCAPE":
		return "1"
	case req == "PLAYING":
		return "0"
	default:
		return "OK"
	}
}

func TestBridge_Ping(t *testing.T) {
	b, brick := newTestBridge(t, okBrick)
	require.NoError(t, b.Ping())
	assert.Equal(t, []string{"PING"}, brick.Requests())
}

func TestBridge_ErrReply(t *testing.T) {
	b, _ := newTestBridge(t, func(string) string { return "ERR no motor on port D" })

	err := b.SetMotor(robot.MotorD, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no motor on port D")
}

func TestBridge_Timeout(t *testing.T) {
	b, _ := newTestBridge(t, func(string) string { return "" })

	_, err := b.Do("PING")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestBridge_Requests(t *testing.T) {
	b, brick := newTestBridge(t, okBrick)

	require.NoError(t, b.SetMotor(robot.MotorA, -10))
	require.NoError(t, b.SetDrive(robot.MotorB, robot.MotorC, 50, -50))
	require.NoError(t, b.StopMotors(true, robot.MotorB, robot.MotorC))
	require.NoError(t, b.StopMotors(false, robot.MotorA))
	require.NoError(t, b.RunTank(robot.MotorB, robot.MotorC, 30, 30, 10*time.Millisecond, true))
	require.NoError(t, b.PlaySound("Motor start", 56, true))
	require.NoError(t, b.Text("RoboDoz3r", true, 2, 2, robot.ColorBlack, robot.FontLarge))

	pressed, err := b.Touch(robot.Sensor1)
	require.NoError(t, err)
	assert.True(t, pressed)

	prox, err := b.Proximity(robot.Sensor4)
	require.NoError(t, err)
	assert.Equal(t, 37.5, prox)

	raw, err := b.Remote(robot.Sensor4, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, raw)

	assert.Equal(t, []string{
		"MOTOR A -10",
		"DRIVE B C 50 -50",
		"STOP 1 B C",
		"STOP 0 A",
		"DRIVE B C 30 30",
		"STOP 1 B C",
		"SOUND 56 Motor start",
		"PLAYING",
		"TEXT 2 2 0 2 1 RoboDoz3r",
		"TOUCH S1",
		"PROX S4",
		"REMOTE S4 1",
	}, brick.Requests())
}

func TestBridge_BadValues(t *testing.T) {
	b, _ := newTestBridge(t, func(string) string { return "maybe" })

	_, err := b.Touch(robot.Sensor1)
	assert.Error(t, err)
	_, err = b.Proximity(robot.Sensor4)
	assert.Error(t, err)
	_, err = b.Remote(robot.Sensor4, 1)
	assert.Error(t, err)
	assert.Error(t, b.SetMotor(robot.MotorA, 1))
}

func TestVehicle_Adapters(t *testing.T) {
	b, brick := newTestBridge(t, okBrick)
	v := b.Vehicle(robot.DefaultConfig().Ports)

	v.Implement.SetPower(10)
	v.Implement.BrakeStop(true)
	v.Drive.SetPower(0, -50)
	v.Drive.BrakeStop()
	v.Drive.RunForDuration(50, -50, 10*time.Millisecond, true)
	v.Audio.Play("Airbrake", 100, true)
	v.Display.ShowText("RoboDoz3r", true, 2, 2, robot.ColorBlack, robot.FontLarge)

	assert.Equal(t, robot.Pressed, v.Touch.Read())
	assert.Equal(t, 37.5, v.Proximity.Read())
	assert.Equal(t, 6, v.Remote.Read(1))
	assert.True(t, v.Escape.IsPressed())
	assert.False(t, v.Exit.IsAsserted())

	assert.Equal(t, []string{
		"MOTOR A 10",
		"STOP 1 A",
		"DRIVE B C 0 -50",
		"STOP 1 B C",
		"DRIVE B C 50 -50",
		"STOP 1 B C",
		"SOUND 100 Airbrake",
		"PLAYING",
		"TEXT 2 2 0 2 1 RoboDoz3r",
		"TOUCH S1",
		"PROX S4",
		"REMOTE S4 1",
		"BUTTON ESCAPE",
		"BUTTON ENTER",
	}, brick.Requests())
}

func TestVehicle_FailedReadsFallBack(t *testing.T) {
	var mu sync.Mutex
	failing := false
	b, _ := newTestBridge(t, func(req string) string {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return "ERR sensor unplugged"
		}
		return okBrick(req)
	})
	v := b.Vehicle(robot.DefaultConfig().Ports)

	assert.Equal(t, robot.Pressed, v.Touch.Read())
	assert.Equal(t, 37.5, v.Proximity.Read())

	mu.Lock()
	failing = true
	mu.Unlock()

	assert.Equal(t, robot.Pressed, v.Touch.Read())
	assert.Equal(t, 37.5, v.Proximity.Read())
	assert.Equal(t, 0, v.Remote.Read(1))
	assert.False(t, v.Escape.IsPressed())
}

func TestTank_RunForDurationBlocksOnFailure(t *testing.T) {
	b, _ := newTestBridge(t, func(string) string { return "ERR motor stalled" })
	v := b.Vehicle(robot.DefaultConfig().Ports)

	start := time.Now()
	v.Drive.RunForDuration(30, 30, 50*time.Millisecond, true)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestBridge_LateReplyIsDropped(t *testing.T) {
	b, brick := newTestBridge(t, okBrick)
	brick.setDelay(func(req string) time.Duration {
		if req == "TOUCH S1" {
			return 300 * time.Millisecond
		}
		return 0
	})

	_, err := b.Touch(robot.Sensor1)
	require.ErrorIs(t, err, ErrTimeout)

	// Let the late "1" reach the line before the next request.
	time.Sleep(150 * time.Millisecond)

	prox, err := b.Proximity(robot.Sensor4)
	require.NoError(t, err)
	assert.Equal(t, 37.5, prox)

	raw, err := b.Remote(robot.Sensor4, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, raw)

	require.NoError(t, b.SetMotor(robot.MotorA, 10))

	prox, err = b.Proximity(robot.Sensor4)
	require.NoError(t, err)
	assert.Equal(t, 37.5, prox)
}

func TestMatchReply(t *testing.T) {
	reply, ok := matchReply("12 37.5", 12)
	assert.True(t, ok)
	assert.Equal(t, "37.5", reply)

	_, ok = matchReply("11 1", 12)
	assert.False(t, ok)
	_, ok = matchReply("PONG", 12)
	assert.False(t, ok)
}

func exitBrick(req string) string {
	if req == "BUTTON ENTER" {
		return "1"
	}
	return okBrick(req)
}

func watchExit(t *testing.T, confirm robot.ExitConfirm) <-chan struct{} {
	t.Helper()
	exited := make(chan struct{})
	dozer.NewExitWatcher(confirm,
		dozer.WithExitFunc(func() { close(exited) }),
		dozer.WithLogger(log.Discard()),
	).Start()
	return exited
}

func TestExit_NotBlockedByTimedRun(t *testing.T) {
	b, _ := newTestBridge(t, exitBrick)
	v := b.Vehicle(robot.DefaultConfig().Ports)

	go v.Drive.RunForDuration(50, -50, time.Second, true)
	time.Sleep(20 * time.Millisecond)

	exited := watchExit(t, v.Exit)
	select {
	case <-exited:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("exit signal not seen while the tracks were running")
	}
}

func TestExit_NotBlockedBySound(t *testing.T) {
	b, brick := newTestBridge(t, func(req string) string {
		if req == "PLAYING" {
			return "1"
		}
		return exitBrick(req)
	})
	v := b.Vehicle(robot.DefaultConfig().Ports)

	done := make(chan struct{})
	go func() {
		v.Audio.Play("Motor start", 56, true)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	exited := watchExit(t, v.Exit)
	select {
	case <-exited:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("exit signal not seen while a sound was playing")
	}

	select {
	case <-done:
		t.Fatal("sound wait ended while still playing")
	default:
	}
	assert.Contains(t, brick.Requests(), "PLAYING")
}

func TestBridge_PlaySoundWaitsForPlayback(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	b, brick := newTestBridge(t, func(req string) string {
		if req != "PLAYING" {
			return okBrick(req)
		}
		mu.Lock()
		defer mu.Unlock()
		polls++
		if polls < 3 {
			return "1"
		}
		return "0"
	})

	require.NoError(t, b.PlaySound("Airbrake", 100, true))
	assert.Equal(t, []string{"SOUND 100 Airbrake", "PLAYING", "PLAYING", "PLAYING"}, brick.Requests())
}
