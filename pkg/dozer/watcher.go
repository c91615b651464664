package dozer

import (
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/gwillem/robodozer/internal/log"
	"github.com/gwillem/robodozer/pkg/robot"
)

// DefaultPollInterval is the pause between two polls of the exit signal.
const DefaultPollInterval = 2 * time.Millisecond

// ExitWatcher polls the operator's exit signal and ends the process when it
// is asserted. It does not stop the motors.
type ExitWatcher struct {
	confirm  robot.ExitConfirm
	interval time.Duration
	exit     func()
	sleep    func(time.Duration)
	logger   *slog.Logger
}

// ExitOption configures an ExitWatcher.
type ExitOption func(*ExitWatcher)

// WithExitFunc replaces the default os.Exit(0).
func WithExitFunc(f func()) ExitOption {
	return func(w *ExitWatcher) { w.exit = f }
}

// WithPollInterval replaces the 2ms poll interval.
func WithPollInterval(d time.Duration) ExitOption {
	return func(w *ExitWatcher) { w.interval = d }
}

// WithSleep replaces time.Sleep between polls.
func WithSleep(f func(time.Duration)) ExitOption {
	return func(w *ExitWatcher) { w.sleep = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExitOption {
	return func(w *ExitWatcher) { w.logger = l }
}

// NewExitWatcher creates a watcher on confirm.
func NewExitWatcher(confirm robot.ExitConfirm, opts ...ExitOption) *ExitWatcher {
	w := &ExitWatcher{
		confirm:  confirm,
		interval: DefaultPollInterval,
		exit:     func() { os.Exit(0) },
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.L()
	}
	return w
}

// Start runs Watch in a new goroutine.
func (w *ExitWatcher) Start() {
	go w.Watch()
}

// Watch blocks until the exit signal is asserted, then calls the exit func.
func (w *ExitWatcher) Watch() {
	w.logger.Debug("exit watcher started")
	for !w.confirm.IsAsserted() {
		runtime.Gosched()
		w.sleep(w.interval)
	}
	w.logger.Info("exit requested")
	w.exit()
}
