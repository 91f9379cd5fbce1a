package eident

import (
	"context"
	"errors"
	"time"

	"github.com/nordauth/eident/order"
)

// Cancel describes the cancel operation and its observable behavior.
//
// Cancel may return an error when input validation, dependency calls, or security checks fail.
// Cancel does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Cancel(ctx context.Context, orderRef, sessionToken string) error {
	record, err := e.resolveOrder(ctx, orderRef, sessionToken)
	if err != nil {
		e.metricInc(MetricCancelFailure)
		return err
	}
	if e.remote == nil {
		return ErrEngineNotReady
	}

	if record.Status != order.StatusPending {
		// Already terminal; nothing to tear down remotely.
		return nil
	}

	if err := e.remote.Cancel(ctx, record.OrderRef); err != nil {
		e.metricInc(MetricCancelFailure)
		e.emitAudit(ctx, auditEventCancel, false, record.OrderRef, record.IPAddress, ErrRemoteUnavailable, nil)
		return ErrRemoteUnavailable
	}

	_, _, err = e.orderStore.ApplyResult(
		ctx, record.OrderRef, order.StatusFailed, HintCancelled, nil, time.Now(),
	)
	if err != nil && !errors.Is(err, order.ErrNotFound) && !errors.Is(err, order.ErrConsumed) {
		e.metricInc(MetricCancelFailure)
		e.emitAudit(ctx, auditEventCancel, false, record.OrderRef, record.IPAddress, err, nil)
		return ErrStoreUnavailable
	}

	e.metricInc(MetricCancelSuccess)
	e.emitAudit(ctx, auditEventCancel, true, record.OrderRef, record.IPAddress, nil, nil)
	return nil
}
