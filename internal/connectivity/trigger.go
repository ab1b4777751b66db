package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/incident-outbox/internal/service"
	"go.uber.org/zap"
)

const defaultGracePeriod = 5 * time.Second

// Sweeper runs one resync pass over the outbox.
type Sweeper interface {
	ResyncAll(ctx context.Context) (service.SweepSummary, error)
}

// Trigger turns online/offline observations into debounced sweeps. A sweep
// starts only after the connection stayed online for the whole grace period.
type Trigger struct {
	sweeper Sweeper
	grace   time.Duration
	logger  *zap.Logger

	mu         sync.Mutex
	known      bool
	online     bool
	generation uint64
	timer      *time.Timer
	stopped    bool
	sweeps     sync.WaitGroup

	// done is canceled by Stop. Every sweep context is tied to it.
	done       context.Context
	cancelDone context.CancelFunc
}

func NewTrigger(sweeper Sweeper, grace time.Duration, logger *zap.Logger) (*Trigger, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper is required")
	}
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	done, cancelDone := context.WithCancel(context.Background())
	return &Trigger{
		sweeper:    sweeper,
		grace:      grace,
		logger:     logger,
		done:       done,
		cancelDone: cancelDone,
	}, nil
}

// SetOnline records the current connectivity state. The first observation
// counts as a transition, so a process that starts online syncs once.
func (t *Trigger) SetOnline(ctx context.Context, online bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	changed := !t.known || t.online != online
	t.known = true
	t.online = online
	if !changed {
		return
	}

	t.generation++
	t.stopTimerLocked()

	if !online {
		t.logger.Info("connectivity lost")
		return
	}

	generation := t.generation
	t.logger.Info("connectivity restored, scheduling resync", zap.Duration("grace", t.grace))
	t.timer = time.AfterFunc(t.grace, func() {
		t.fire(ctx, generation)
	})
}

func (t *Trigger) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.known && t.online
}

// Stop cancels a pending or running sweep and waits for it to return. Later
// observations are ignored.
func (t *Trigger) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.generation++
	t.stopTimerLocked()
	t.mu.Unlock()

	t.cancelDone()

	t.sweeps.Wait()
}

func (t *Trigger) fire(ctx context.Context, generation uint64) {
	t.mu.Lock()
	if generation != t.generation || !t.online {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.sweeps.Add(1)
	t.mu.Unlock()

	sweepCtx, cancel := context.WithCancel(ctx)
	release := context.AfterFunc(t.done, cancel)
	defer func() {
		release()
		cancel()
		t.sweeps.Done()
	}()

	if sweepCtx.Err() != nil {
		return
	}

	summary, err := t.sweeper.ResyncAll(sweepCtx)
	if err != nil {
		t.logger.Error("connectivity resync failed", zap.Error(err))
		return
	}
	if summary.Skipped {
		t.logger.Info("connectivity resync skipped, another sweep is running")
	}
}

func (t *Trigger) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
