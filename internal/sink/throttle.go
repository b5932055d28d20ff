package sink

import (
	"sync"
	"time"

	"market-feedv1/internal/model"
)

// DefaultWindow is the minimum interval between forwarded updates.
const DefaultWindow = 100 * time.Millisecond

// Throttle coalesces high-frequency updates before they reach the wrapped
// sink: within one window only the most recent candle is retained, and it is
// forwarded when the window elapses. Earlier updates in the same window are
// replaced, never queued, so the sink always ends on the final state.
type Throttle struct {
	dst    Sink
	window time.Duration

	// Hooks, both optional. OnFlush fires per forwarded update, OnCoalesce
	// per update absorbed by a newer one in the same window.
	OnFlush    func()
	OnCoalesce func()

	mu         sync.Mutex
	pending    model.Candle
	hasPending bool
	timer      *time.Timer
	lastFlush  time.Time
	closed     bool
}

// NewThrottle wraps dst with the given window. window <= 0 selects the
// default. The first window opens at construction time.
func NewThrottle(dst Sink, window time.Duration) *Throttle {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Throttle{dst: dst, window: window, lastFlush: time.Now()}
}

// Initialize passes straight through and restarts the window.
func (t *Throttle) Initialize(candles []model.Candle, volumes []model.VolumeBar) {
	t.mu.Lock()
	t.lastFlush = time.Now()
	t.hasPending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	t.dst.Initialize(candles, volumes)
}

// PushUpdate records the candle as the pending update and arms a flush for
// the end of the current window. Never blocks beyond the mutex.
func (t *Throttle) PushUpdate(candle model.Candle, volume model.VolumeBar) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	if t.hasPending && t.OnCoalesce != nil {
		t.OnCoalesce()
	}
	t.pending = candle
	t.hasPending = true
	if t.timer == nil {
		d := t.window - time.Since(t.lastFlush)
		if d < 0 {
			d = 0
		}
		t.timer = time.AfterFunc(d, t.flush)
	}
}

func (t *Throttle) flush() {
	t.mu.Lock()
	t.timer = nil
	if !t.hasPending || t.closed {
		t.mu.Unlock()
		return
	}
	c := t.pending
	t.hasPending = false
	t.lastFlush = time.Now()
	t.mu.Unlock()

	t.dst.PushUpdate(c, c.VolumeBar())
	if t.OnFlush != nil {
		t.OnFlush()
	}
}

// Close cancels any armed flush and forwards a still-pending final update so
// the last state is not lost. Further PushUpdate calls are ignored.
func (t *Throttle) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	pending, has := t.pending, t.hasPending
	t.hasPending = false
	t.mu.Unlock()

	if has {
		t.dst.PushUpdate(pending, pending.VolumeBar())
	}
}
