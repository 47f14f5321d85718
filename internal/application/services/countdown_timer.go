package services

import (
	"sync"
	"time"

	"github.com/goldkiwi/storefront/internal/core/domain/verification"
)

// CountdownTimer publishes the countdown of an issued code once per interval.
// Only the latest state is kept for a slow reader.
type CountdownTimer struct {
	interval time.Duration
	now      func() time.Time
	out      chan verification.CountdownState

	mu       sync.Mutex
	armed    bool
	active   bool
	issuedAt time.Time
	stop     chan struct{}
	done     chan struct{}
}

// NewCountdownTimer creates an idle timer. A zero interval means one second
// and a nil now means time.Now.
func NewCountdownTimer(interval time.Duration, now func() time.Time) *CountdownTimer {
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &CountdownTimer{
		interval: interval,
		now:      now,
		out:      make(chan verification.CountdownState, 1),
	}
}

// C delivers countdown states.
func (t *CountdownTimer) C() <-chan verification.CountdownState {
	return t.out
}

// Arm (re)starts the countdown for issuedAt. The current state is emitted
// immediately; while active and not expired a new state follows every
// interval, and ticking stops after the expired state. Arming with the same
// arguments again does nothing.
func (t *CountdownTimer) Arm(active bool, issuedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed && t.active == active && t.issuedAt.Equal(issuedAt) {
		return
	}
	t.halt()
	t.armed = true
	t.active = active
	t.issuedAt = issuedAt

	st := verification.Compute(active, issuedAt, t.now())
	t.emit(st)
	if !active || st.Expired {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop(issuedAt, t.stop, t.done)
}

// Stop cancels ticking. The timer can be armed again afterwards.
func (t *CountdownTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.halt()
	t.armed = false
}

func (t *CountdownTimer) loop(issuedAt time.Time, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st := verification.Compute(true, issuedAt, t.now())
			t.emit(st)
			if st.Expired {
				return
			}
		}
	}
}

// halt stops the running goroutine, if any. Callers hold t.mu.
func (t *CountdownTimer) halt() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop = nil
	t.done = nil
}

// emit replaces any unread state with st.
func (t *CountdownTimer) emit(st verification.CountdownState) {
	for {
		select {
		case t.out <- st:
			return
		default:
			select {
			case <-t.out:
			default:
			}
		}
	}
}
