package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ExpiryTimer keeps one timer per vet armed at the soonest slot expiry.
// When it fires it sweeps, then re-arms at the next expiry. There is no
// polling: with nothing left to expire the timer stays idle until Rearm.
type ExpiryTimer struct {
	ctx    context.Context
	m      *Maintainer
	vetID  string
	work   sync.Locker
	logger *zerolog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	next    time.Time
	gen     uint64
	stopped bool
}

// NewExpiryTimer creates an idle timer. ctx bounds the sweeps it runs;
// work, when non-nil, is held around every sweep so that callers can
// serialize the timer with their own maintenance work.
func NewExpiryTimer(ctx context.Context, m *Maintainer, vetID string, work sync.Locker, logger *zerolog.Logger) *ExpiryTimer {
	if work == nil {
		work = &sync.Mutex{}
	}
	if logger == nil {
		logger = m.logger
	}
	return &ExpiryTimer{ctx: ctx, m: m, vetID: vetID, work: work, logger: logger}
}

// Rearm recomputes the next expiry and resets the timer to it.
func (t *ExpiryTimer) Rearm(ctx context.Context) error {
	next, ok, err := t.m.NextExpiry(ctx, t.vetID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	t.next = time.Time{}
	if !ok {
		t.logger.Debug().Str("vet_id", t.vetID).Msg("no upcoming slot expiry")
		return nil
	}

	delay := next.Sub(t.m.now())
	if delay < 0 {
		delay = 0
	}
	gen := t.gen
	t.next = next
	t.timer = time.AfterFunc(delay, func() { t.fire(gen) })
	t.logger.Debug().Str("vet_id", t.vetID).Time("next", next).Msg("expiry timer armed")
	return nil
}

// Next returns the instant the timer is armed for.
func (t *ExpiryTimer) Next() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next, !t.next.IsZero()
}

// Stop disarms the timer for good.
func (t *ExpiryTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.gen++
	t.next = time.Time{}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *ExpiryTimer) fire(gen uint64) {
	t.mu.Lock()
	current := gen == t.gen && !t.stopped
	t.mu.Unlock()
	if !current || t.ctx.Err() != nil {
		return
	}

	t.work.Lock()
	if _, err := t.m.Sweep(t.ctx, t.vetID); err != nil {
		t.logger.Error().Err(err).Str("vet_id", t.vetID).Msg("scheduled sweep failed")
	}
	t.work.Unlock()

	if err := t.Rearm(t.ctx); err != nil {
		t.logger.Error().Err(err).Str("vet_id", t.vetID).Msg("failed to re-arm expiry timer")
	}
}
