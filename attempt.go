package eident

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nordauth/eident/order"
)

// AttemptOutcome is the terminal result of a scheduled authentication
// attempt.
type AttemptOutcome uint8

// Attempt outcomes.
const (
	// OutcomeUnresolved means the attempt is still running.
	OutcomeUnresolved AttemptOutcome = iota
	// OutcomeComplete means the user finished authenticating.
	OutcomeComplete
	// OutcomeFailed means the order ended without a completed
	// authentication.
	OutcomeFailed
	// OutcomeTimeout means an attempt-wide cap was hit before the order
	// resolved.
	OutcomeTimeout
	// OutcomeStopped means the attempt was cancelled by its owner.
	OutcomeStopped
)

// String describes the string operation and its observable behavior.
//
// String may return an error when input validation, dependency calls, or security checks fail.
// String does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeStopped:
		return "stopped"
	default:
		return "unresolved"
	}
}

// AttemptUpdate is one event streamed by a running attempt. Exactly one of
// the optional fields is meaningful per event: a poll update carries
// Status/HintCode, a QR update carries QRPayload, a renew update carries
// Renewed=true plus the new OrderRef.
type AttemptUpdate struct {
	OrderRef  string
	Status    string
	HintCode  string
	QRPayload string
	Renewed   bool
}

// Attempt is one scheduled authentication attempt. It owns a single
// goroutine that polls, renews, and refreshes the QR payload on independent
// timers until the order resolves, a cap is hit, or the owner stops it.
type Attempt struct {
	engine       *Engine
	sessionToken string
	updates      chan AttemptUpdate
	done         chan struct{}
	cancel       context.CancelFunc
	stopOnce     sync.Once

	initial OrderView

	// outcome and finalRef are written exactly once before done is closed.
	outcome  AttemptOutcome
	finalRef string
}

// StartAttempt describes the startattempt operation and its observable behavior.
//
// StartAttempt may return an error when input validation, dependency calls, or security checks fail.
// StartAttempt does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) StartAttempt(ctx context.Context, endUserIP string) (*Attempt, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	result, err := e.Initiate(ctx, endUserIP)
	if err != nil {
		return nil, err
	}

	return e.startAttempt(ctx, result, e.config.Timers, e.config.Order.TTL), nil
}

func (e *Engine) startAttempt(ctx context.Context, result *InitiateResult, timers TimerConfig, orderTTL time.Duration) *Attempt {
	runCtx, cancel := context.WithCancel(ctx)
	a := &Attempt{
		engine:       e,
		sessionToken: result.SessionToken,
		updates:      make(chan AttemptUpdate, timers.UpdateBuffer),
		done:         make(chan struct{}),
		cancel:       cancel,
		initial:      result.Order,
	}

	e.metricInc(MetricAttemptStarted)
	go a.run(runCtx, timers, orderTTL)

	return a
}

// Updates exposes the attempt's event stream. Events are dropped, never
// blocked on, when the consumer falls behind; the channel is closed once
// the attempt resolves.
func (a *Attempt) Updates() <-chan AttemptUpdate {
	return a.updates
}

// Done is closed when the attempt has resolved and its outcome is readable.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Outcome describes the outcome operation and its observable behavior.
//
// Outcome may return an error when input validation, dependency calls, or security checks fail.
// Outcome does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (a *Attempt) Outcome() AttemptOutcome {
	select {
	case <-a.done:
		return a.outcome
	default:
		return OutcomeUnresolved
	}
}

// SessionToken returns the session binding value for this attempt. The
// caller needs it to call Complete after the attempt resolves.
func (a *Attempt) SessionToken() string {
	return a.sessionToken
}

// InitialOrder describes the initialorder operation and its observable behavior.
//
// InitialOrder may return an error when input validation, dependency calls, or security checks fail.
// InitialOrder does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (a *Attempt) InitialOrder() OrderView {
	return a.initial
}

// Complete waits for the attempt to resolve and consumes its order. It
// fails with [ErrAttemptEnded] when the attempt resolved without a
// completed authentication.
func (a *Attempt) Complete(ctx context.Context) (*CompleteResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.done:
	}
	if a.outcome != OutcomeComplete {
		return nil, ErrAttemptEnded
	}
	return a.engine.Complete(ctx, a.finalRef, a.sessionToken)
}

// Stop ends the attempt. In-flight remote calls run to completion and
// their results are discarded; Done is closed once the goroutine exits.
func (a *Attempt) Stop() {
	a.stopOnce.Do(a.cancel)
}

func (a *Attempt) run(ctx context.Context, timers TimerConfig, orderTTL time.Duration) {
	defer close(a.updates)

	pollTimer := time.NewTimer(timers.PollInterval)
	renewTimer := time.NewTimer(timers.RenewInterval)
	qrTimer := time.NewTimer(timers.QRRefreshInterval)
	deadline := time.NewTimer(orderTTL)
	defer pollTimer.Stop()
	defer renewTimer.Stop()
	defer qrTimer.Stop()
	defer deadline.Stop()

	orderRef := a.initial.OrderRef
	hintCode := a.initial.HintCode
	renewals := 0

	finish := func(outcome AttemptOutcome, cancelRemote bool) {
		if cancelRemote {
			cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_ = a.engine.Cancel(cancelCtx, orderRef, a.sessionToken)
			cancel()
		}
		a.outcome = outcome
		a.finalRef = orderRef
		close(a.done)
	}

	for {
		select {
		case <-ctx.Done():
			finish(OutcomeStopped, true)
			return

		case <-deadline.C:
			a.engine.metricInc(MetricAttemptTimeout)
			finish(OutcomeTimeout, true)
			return

		case <-pollTimer.C:
			view, err := a.engine.Poll(ctx, orderRef, a.sessionToken)
			if err != nil {
				if errors.Is(err, ErrOrderNotFound) {
					finish(OutcomeFailed, false)
					return
				}
				// Transient; the next tick retries.
				pollTimer.Reset(timers.PollInterval)
				continue
			}
			hintCode = view.HintCode
			a.emit(AttemptUpdate{
				OrderRef: view.OrderRef,
				Status:   view.Status,
				HintCode: view.HintCode,
			})
			switch view.Status {
			case order.StatusComplete.String():
				finish(OutcomeComplete, false)
				return
			case order.StatusFailed.String():
				finish(OutcomeFailed, false)
				return
			}
			pollTimer.Reset(timers.PollInterval)

		case <-renewTimer.C:
			if renewals >= timers.MaxRenewals {
				a.engine.metricInc(MetricAttemptTimeout)
				finish(OutcomeTimeout, true)
				return
			}
			if hintBlocksRenewal(hintCode) {
				// Skip the tick, keep the cadence.
				renewTimer.Reset(timers.RenewInterval)
				continue
			}
			view, err := a.engine.Renew(ctx, orderRef, a.sessionToken)
			if err != nil {
				if errors.Is(err, ErrOrderNotFound) {
					finish(OutcomeFailed, false)
					return
				}
				renewTimer.Reset(timers.RenewInterval)
				continue
			}
			if view.OrderRef != orderRef {
				orderRef = view.OrderRef
				hintCode = view.HintCode
				renewals++
				a.emit(AttemptUpdate{
					OrderRef: view.OrderRef,
					Status:   view.Status,
					HintCode: view.HintCode,
					Renewed:  true,
				})
			}
			renewTimer.Reset(timers.RenewInterval)

		case <-qrTimer.C:
			payload, err := a.engine.QRPayload(ctx, orderRef, a.sessionToken)
			if err == nil {
				a.emit(AttemptUpdate{
					OrderRef:  orderRef,
					QRPayload: payload,
				})
			}
			qrTimer.Reset(timers.QRRefreshInterval)
		}
	}
}

func (a *Attempt) emit(update AttemptUpdate) {
	select {
	case a.updates <- update:
	default:
	}
}
