package consumer

import (
	"sync"
	"time"
)

// DefaultWatchdogCeiling is how long a streaming run may stay silent before
// the watchdog fires.
const DefaultWatchdogCeiling = 30 * time.Second

// Watchdog guards against a run stuck in streaming after its transport died
// without an observable close. Armed when a run enters streaming, re-armed
// on every event, disarmed on any terminal transition. If it fires, the
// coordinator force-aborts the local run state.
type Watchdog struct {
	ceiling  time.Duration
	onExpire func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatchdog creates a watchdog with the given silence ceiling.
func NewWatchdog(ceiling time.Duration, onExpire func()) *Watchdog {
	if ceiling <= 0 {
		ceiling = DefaultWatchdogCeiling
	}
	return &Watchdog{ceiling: ceiling, onExpire: onExpire}
}

// Arm starts, or restarts, the timer.
func (w *Watchdog) Arm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.ceiling, w.onExpire)
}

// Disarm stops the timer.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
