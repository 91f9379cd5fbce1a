package eident

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nordauth/eident/order"
)

// Renew describes the renew operation and its observable behavior.
//
// Renew may return an error when input validation, dependency calls, or security checks fail.
// Renew does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Renew(ctx context.Context, oldOrderRef, sessionToken string) (*OrderView, error) {
	record, err := e.resolveOrder(ctx, oldOrderRef, sessionToken)
	if err != nil {
		e.metricInc(MetricRenewFailure)
		return nil, err
	}
	if e.remote == nil {
		return nil, ErrEngineNotReady
	}

	// A terminal order has an answer already and an order the user is
	// interacting with must not be replaced under them.
	if record.Status != order.StatusPending || hintBlocksRenewal(record.HintCode) {
		e.metricInc(MetricRenewRefused)
		e.emitAudit(ctx, auditEventRenewRefused, false, record.OrderRef, record.IPAddress, nil, func() map[string]string {
			return map[string]string{
				"status":    record.Status.String(),
				"hint_code": record.HintCode,
			}
		})
		view := sanitize(record)
		return &view, nil
	}

	init, err := e.remote.Initiate(ctx, record.IPAddress)
	if err != nil || init == nil || init.OrderRef == "" {
		e.metricInc(MetricRenewFailure)
		e.emitAudit(ctx, auditEventRenewFailure, false, record.OrderRef, record.IPAddress, ErrRemoteUnavailable, nil)
		return nil, ErrRemoteUnavailable
	}

	now := time.Now()
	fresh := &order.Order{
		ID:             uuid.NewString(),
		OrderRef:       init.OrderRef,
		QRStartToken:   init.QRStartToken,
		AutoStartToken: init.AutoStartToken,
		QRStartSecret:  init.QRStartSecret,
		StartT:         init.StartT,
		SessionHash:    record.SessionHash,
		IPAddress:      record.IPAddress,
		Status:         order.StatusPending,
		HintCode:       HintOutstanding,
		InsertedAt:     now.Unix(),
		UpdatedAt:      now.Unix(),
	}
	if fresh.StartT == 0 {
		fresh.StartT = now.Unix()
	}

	if err := e.orderStore.Create(ctx, fresh); err != nil {
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		_ = e.remote.Cancel(cancelCtx, init.OrderRef)
		cancel()

		e.metricInc(MetricRenewFailure)
		e.emitAudit(ctx, auditEventRenewFailure, false, record.OrderRef, record.IPAddress, err, nil)
		return nil, ErrStoreUnavailable
	}

	// The old order stays in the store: a poll racing this renew must keep
	// resolving until the expunger collects it.
	e.metricInc(MetricRenewSuccess)
	e.metricInc(MetricOrderCreated)
	e.emitAudit(ctx, auditEventRenewSuccess, true, fresh.OrderRef, fresh.IPAddress, nil, func() map[string]string {
		return map[string]string{
			"old_order_ref": record.OrderRef,
		}
	})

	view := sanitize(fresh)
	return &view, nil
}
