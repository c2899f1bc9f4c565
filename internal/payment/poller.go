package payment

import (
	"context"
	"errors"
	"time"
)

// PollOutcome is the final word of one polling run.
type PollOutcome struct {
	Status string
	Result Result
	Err    error
}

// StatusFunc asks the reconciler whether a reference has settled. It returns
// the Result on success and one of the payment errors otherwise.
type StatusFunc func(ctx context.Context) (Result, error)

// Poller drives consumer-facing payment status polling: a fixed interval
// bounded by a maximum duration. Each Start call returns its own handle; the
// poller itself holds no state, so there is nothing global to leak when the
// caller goes away.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration
}

func NewPoller(interval, timeout time.Duration) *Poller {
	return &Poller{Interval: interval, Timeout: timeout}
}

// Handle owns one polling loop. Stop cancels it deterministically; Done
// yields exactly one outcome.
type Handle struct {
	cancel context.CancelFunc
	done   chan PollOutcome
}

// Done returns the channel carrying the final outcome.
func (h *Handle) Done() <-chan PollOutcome {
	return h.done
}

// Stop cancels the loop. Safe to call after the loop already finished.
func (h *Handle) Stop() {
	h.cancel()
}

// Start begins polling immediately and then on every interval tick until the
// payment settles, fails terminally, the timeout elapses, or the handle is
// stopped. On timeout the staging record is left alone for late webhook
// reconciliation; the outcome just tells the UI to show the contact-support
// path.
func (p *Poller) Start(ctx context.Context, check StatusFunc) *Handle {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	h := &Handle{cancel: cancel, done: make(chan PollOutcome, 1)}

	go func() {
		defer cancel()
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()

		for {
			outcome, final := p.checkOnce(ctx, check)
			if final {
				h.done <- outcome
				return
			}
			select {
			case <-ctx.Done():
				h.done <- PollOutcome{Status: StatusFailed, Err: ctx.Err()}
				return
			case <-ticker.C:
			}
		}
	}()
	return h
}

func (p *Poller) checkOnce(ctx context.Context, check StatusFunc) (PollOutcome, bool) {
	res, err := check(ctx)
	switch {
	case err == nil:
		return PollOutcome{Status: StatusPaid, Result: res}, true
	case errors.Is(err, ErrPaymentExpired):
		return PollOutcome{Status: StatusExpired, Err: err}, true
	case errors.Is(err, ErrPaymentNotCompleted),
		errors.Is(err, ErrPendingOrderNotFound),
		errors.Is(err, ErrPaymentGateway):
		// transient from the poller's point of view; keep asking
		return PollOutcome{Status: StatusPending, Err: err}, false
	default:
		return PollOutcome{Status: StatusFailed, Err: err}, true
	}
}
