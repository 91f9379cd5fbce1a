package eident

import (
	"context"
	"time"

	"github.com/nordauth/eident/order"
)

// Engine defines a public type used by eident APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	orderStore *order.Store
	remote     RemoteClient
	principals PrincipalProvider
	issuer     TokenIssuer
	audit      *auditDispatcher
	metrics    *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping describes the ping operation and its observable behavior.
//
// Ping may return an error when input validation, dependency calls, or security checks fail.
// Ping does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.orderStore == nil {
		return 0, ErrEngineNotReady
	}
	return e.orderStore.Ping(ctx)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	orderRef string,
	ip string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		OrderRef:  orderRef,
		IP:        ip,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}

// orderExpired reports whether the order has aged past the configured
// order TTL at the given instant. Age is measured from the last write,
// matching the expunger's cutoff for unconsumed orders.
func (e *Engine) orderExpired(rec *order.Order, now time.Time) bool {
	if rec == nil {
		return true
	}
	return now.Unix()-rec.UpdatedAt > int64(e.config.Order.TTL/time.Second)
}
