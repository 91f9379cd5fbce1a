package eident

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"
)

// Expunger is the background worker that deletes dead order records. It is
// the only component allowed to remove orders: expired unconsumed orders
// after the order TTL, consumed orders after the retention window.
type Expunger struct {
	engine   *Engine
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// StartExpunger describes the startexpunger operation and its observable behavior.
//
// StartExpunger may return an error when input validation, dependency calls, or security checks fail.
// StartExpunger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) StartExpunger(ctx context.Context) (*Expunger, error) {
	if e == nil || e.orderStore == nil {
		return nil, ErrEngineNotReady
	}

	runCtx, cancel := context.WithCancel(ctx)
	w := &Expunger{
		engine:   e,
		interval: e.config.Expunge.Interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go w.run(runCtx)

	return w, nil
}

// SweepOnce runs a single expunge cycle and reports how many records were
// removed. It is safe to call concurrently with a running worker; a zero
// match count is a normal result.
func (e *Engine) SweepOnce(ctx context.Context) (int, error) {
	if e == nil || e.orderStore == nil {
		return 0, ErrEngineNotReady
	}

	now := time.Now()
	expiredCutoff := now.Add(-e.config.Order.TTL)
	consumedCutoff := now.Add(-e.config.Order.ConsumedRetentionTTL)

	removed, err := e.orderStore.Sweep(ctx, expiredCutoff, consumedCutoff)
	e.metricInc(MetricExpungeCycles)
	if err != nil {
		e.metricInc(MetricExpungeErrors)
		return removed, ErrStoreUnavailable
	}
	if removed > 0 && e.metrics != nil {
		e.metrics.Add(MetricOrdersExpunged, uint64(removed))
	}

	e.emitAudit(ctx, auditEventExpungeCycle, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"removed": strconv.Itoa(removed),
		}
	})

	return removed, nil
}

func (w *Expunger) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.engine.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				log.Print("eident: expunge cycle failed")
			}
		}
	}
}

// Stop ends the worker and waits for the current cycle to finish.
func (w *Expunger) Stop() {
	w.stopOnce.Do(w.cancel)
	<-w.done
}
