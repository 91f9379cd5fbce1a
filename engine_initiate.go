package eident

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nordauth/eident/internal"
	"github.com/nordauth/eident/order"
)

// Initiate describes the initiate operation and its observable behavior.
//
// Initiate may return an error when input validation, dependency calls, or security checks fail.
// Initiate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Initiate(ctx context.Context, endUserIP string) (*InitiateResult, error) {
	if e == nil || e.orderStore == nil || e.remote == nil {
		return nil, ErrEngineNotReady
	}

	init, err := e.remote.Initiate(ctx, endUserIP)
	if err != nil || init == nil || init.OrderRef == "" {
		e.metricInc(MetricInitiateFailure)
		e.emitAudit(ctx, auditEventInitiateFailure, false, "", endUserIP, ErrRemoteUnavailable, nil)
		return nil, ErrRemoteUnavailable
	}

	sessionToken, err := internal.NewSessionToken()
	if err != nil {
		e.metricInc(MetricInitiateFailure)
		e.emitAudit(ctx, auditEventInitiateFailure, false, init.OrderRef, endUserIP, err, nil)
		return nil, err
	}

	now := time.Now()
	record := &order.Order{
		ID:             uuid.NewString(),
		OrderRef:       init.OrderRef,
		QRStartToken:   init.QRStartToken,
		AutoStartToken: init.AutoStartToken,
		QRStartSecret:  init.QRStartSecret,
		StartT:         init.StartT,
		SessionHash:    internal.HashSessionToken(sessionToken),
		IPAddress:      endUserIP,
		Status:         order.StatusPending,
		HintCode:       HintOutstanding,
		InsertedAt:     now.Unix(),
		UpdatedAt:      now.Unix(),
	}
	if record.StartT == 0 {
		record.StartT = now.Unix()
	}

	if err := e.orderStore.Create(ctx, record); err != nil {
		// The remote order exists but was never persisted; cancel it so the
		// user's app does not keep a dead transaction alive.
		cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		_ = e.remote.Cancel(cancelCtx, init.OrderRef)
		cancel()

		e.metricInc(MetricInitiateFailure)
		e.emitAudit(ctx, auditEventInitiateFailure, false, init.OrderRef, endUserIP, err, nil)
		return nil, ErrStoreUnavailable
	}

	e.metricInc(MetricInitiateSuccess)
	e.metricInc(MetricOrderCreated)
	e.emitAudit(ctx, auditEventInitiateSuccess, true, init.OrderRef, endUserIP, nil, nil)

	return &InitiateResult{
		Order:        sanitize(record),
		SessionToken: sessionToken,
	}, nil
}
