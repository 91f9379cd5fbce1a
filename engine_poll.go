package eident

import (
	"context"
	"errors"
	"time"

	"github.com/nordauth/eident/order"
)

// Poll describes the poll operation and its observable behavior.
//
// Poll may return an error when input validation, dependency calls, or security checks fail.
// Poll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Poll(ctx context.Context, orderRef, sessionToken string) (*OrderView, error) {
	start := time.Now()

	record, err := e.resolveOrder(ctx, orderRef, sessionToken)
	if err != nil {
		e.metricInc(MetricPollFailure)
		return nil, err
	}
	if e.remote == nil {
		return nil, ErrEngineNotReady
	}

	// Terminal orders have nothing left to collect.
	if record.Status != order.StatusPending {
		view := sanitize(record)
		e.metricInc(MetricPollSuccess)
		if e.metrics != nil {
			e.metrics.Observe(MetricPollLatency, time.Since(start))
		}
		return &view, nil
	}

	status, err := e.remote.Collect(ctx, record.OrderRef)
	if err != nil || status == nil {
		e.metricInc(MetricPollFailure)
		e.emitAudit(ctx, auditEventPollFailure, false, record.OrderRef, record.IPAddress, ErrRemoteUnavailable, nil)
		return nil, ErrRemoteUnavailable
	}

	updated, wrote, err := e.orderStore.ApplyResult(
		ctx, record.OrderRef, status.Status, status.HintCode, status.Completion, time.Now(),
	)
	switch {
	case err == nil:
	case errors.Is(err, order.ErrNotFound):
		// Swept between resolve and write. Report what the remote said;
		// nothing is persisted.
		record.Status = status.Status
		record.HintCode = status.HintCode
		updated = record
		wrote = false
		err = nil
	case errors.Is(err, order.ErrConsumed):
		updated = record
		wrote = false
		err = nil
	case errors.Is(err, order.ErrRedisUnavailable):
		e.metricInc(MetricPollFailure)
		return nil, ErrStoreUnavailable
	default:
		e.metricInc(MetricPollFailure)
		return nil, ErrStoreUnavailable
	}

	if !wrote {
		e.metricInc(MetricPollWriteSuppressed)
	}

	e.metricInc(MetricPollSuccess)
	if e.metrics != nil {
		e.metrics.Observe(MetricPollLatency, time.Since(start))
	}
	e.emitAudit(ctx, auditEventPollSuccess, true, record.OrderRef, record.IPAddress, nil, func() map[string]string {
		return map[string]string{
			"status":    updated.Status.String(),
			"hint_code": updated.HintCode,
		}
	})

	view := sanitize(updated)
	return &view, nil
}
