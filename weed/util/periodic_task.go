package util

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/golang/glog"
)

// PeriodicTask runs a job on a fixed interval in its own goroutine.
// Trigger wakes the loop early; the job itself decides how to serialize
// against direct callers.
type PeriodicTask struct {
	name     string
	interval time.Duration
	clock    clock.Clock
	job      func(ctx context.Context)

	trigger chan struct{}
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewPeriodicTask(name string, interval time.Duration, clk clock.Clock, job func(ctx context.Context)) *PeriodicTask {
	if clk == nil {
		clk = clock.New()
	}
	return &PeriodicTask{
		name:     name,
		interval: interval,
		clock:    clk,
		job:      job,
		trigger:  make(chan struct{}, 1),
	}
}

// Start is a no-op when the interval is not positive or the task already runs.
func (t *PeriodicTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	if t.interval <= 0 {
		glog.V(0).Infof("%s is disabled, interval %v", t.name, t.interval)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)
	glog.V(0).Infof("%s started, interval %v", t.name, t.interval)
}

func (t *PeriodicTask) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := t.clock.Ticker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-t.trigger:
		}
		t.job(ctx)
	}
}

// Trigger asks the loop to run as soon as possible. Never blocks.
func (t *PeriodicTask) Trigger() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the running job and waits for the loop to exit.
func (t *PeriodicTask) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	glog.V(0).Infof("%s stopped", t.name)
}

func (t *PeriodicTask) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
