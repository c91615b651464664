package dozer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gwillem/robodozer/internal/log"
	"github.com/gwillem/robodozer/pkg/robot"
)

// recorder collects collaborator calls in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	muted  atomic.Bool
}

func (r *recorder) add(format string, args ...any) {
	if r.muted.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.Events() {
		if e == event {
			n++
		}
	}
	return n
}

type fakeImplement struct{ rec *recorder }

func (f *fakeImplement) SetPower(power int)  { f.rec.add("implement.power %d", power) }
func (f *fakeImplement) BrakeStop(hold bool) { f.rec.add("implement.brake %t", hold) }

type fakeDrive struct{ rec *recorder }

func (f *fakeDrive) SetPower(left, right int) { f.rec.add("drive.power %d %d", left, right) }
func (f *fakeDrive) BrakeStop()               { f.rec.add("drive.brake") }
func (f *fakeDrive) RunForDuration(left, right int, d time.Duration, brake bool) {
	f.rec.add("drive.run %d %d %s %t", left, right, d, brake)
}

type fakeTouch struct {
	rec      *recorder
	mu       sync.Mutex
	seq      []robot.TouchState
	fallback robot.TouchState
	// onRead, when set, runs before every reading.
	onRead func()
}

func (f *fakeTouch) Read() robot.TouchState {
	f.rec.add("touch")
	if f.onRead != nil {
		f.onRead()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seq) == 0 {
		return f.fallback
	}
	s := f.seq[0]
	f.seq = f.seq[1:]
	return s
}

func (f *fakeTouch) setFallback(s robot.TouchState) {
	f.mu.Lock()
	f.fallback = s
	f.mu.Unlock()
}

type fakeProximity struct {
	rec      *recorder
	seq      []float64
	fallback float64
}

func (f *fakeProximity) Read() float64 {
	f.rec.add("prox")
	if len(f.seq) == 0 {
		return f.fallback
	}
	p := f.seq[0]
	f.seq = f.seq[1:]
	return p
}

type fakeRemote struct {
	rec *recorder
	seq map[int][]int
}

func (f *fakeRemote) Read(channel int) int {
	f.rec.add("remote %d", channel)
	vals := f.seq[channel]
	if len(vals) == 0 {
		return 0
	}
	f.seq[channel] = vals[1:]
	return vals[0]
}

type fakeAudio struct {
	rec   *recorder
	clock *fakeClock
}

func (f *fakeAudio) Play(name string, volume int, blocking bool) {
	f.rec.add("audio %s %d %t", name, volume, blocking)
	if f.clock != nil {
		f.clock.advance(500 * time.Millisecond)
	}
}

type fakeDisplay struct{ rec *recorder }

func (f *fakeDisplay) ShowText(text string, clear bool, x, y int, color robot.Color, font robot.FontSize) {
	f.rec.add("display %s %t %d %d %d %d", text, clear, x, y, color, font)
}

// fakeButton reports its sequence, then fallback.
type fakeButton struct {
	mu       sync.Mutex
	seq      []bool
	fallback atomic.Bool
}

func (f *fakeButton) IsPressed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.seq) == 0 {
		return f.fallback.Load()
	}
	p := f.seq[0]
	f.seq = f.seq[1:]
	return p
}

func (f *fakeButton) IsAsserted() bool { return f.IsPressed() }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeVehicle struct {
	rec    *recorder
	clock  *fakeClock
	touch  *fakeTouch
	prox   *fakeProximity
	remote *fakeRemote
	escape *fakeButton
}

func newFakeVehicle() *fakeVehicle {
	rec := &recorder{}
	escape := &fakeButton{}
	escape.fallback.Store(true)
	return &fakeVehicle{
		rec:    rec,
		clock:  &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		touch:  &fakeTouch{rec: rec, fallback: robot.Pressed},
		prox:   &fakeProximity{rec: rec, fallback: 100},
		remote: &fakeRemote{rec: rec, seq: map[int][]int{}},
		escape: escape,
	}
}

func (f *fakeVehicle) vehicle() robot.Vehicle {
	return robot.Vehicle{
		Implement: &fakeImplement{rec: f.rec},
		Drive:     &fakeDrive{rec: f.rec},
		Touch:     f.touch,
		Proximity: f.prox,
		Remote:    f.remote,
		Audio:     &fakeAudio{rec: f.rec, clock: f.clock},
		Display:   &fakeDisplay{rec: f.rec},
		Escape:    f.escape,
	}
}

func (f *fakeVehicle) controller() *Controller {
	c, err := NewController(f.vehicle(), Config{
		Behavior: robot.DefaultBehavior(),
		RunID:    "test",
		Sleep:    func(d time.Duration) { f.rec.add("sleep %s", d) },
		Now:      f.clock.Now,
		Logger:   log.Discard(),
	})
	if err != nil {
		panic(err)
	}
	return c
}
