package eident

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/nordauth/eident/internal"
	"github.com/nordauth/eident/order"
)

// zeroSessionHash is compared against on the not-found path so that a
// missing order and a session mismatch cost the same work.
var zeroSessionHash [32]byte

// resolveOrder loads the order for orderRef and verifies the caller's
// session binding. A missing order and a session mismatch both return
// [ErrOrderNotFound]; callers must not be able to distinguish the two by
// error value or by timing.
func (e *Engine) resolveOrder(ctx context.Context, orderRef, sessionToken string) (*order.Order, error) {
	if e == nil || e.orderStore == nil {
		return nil, ErrEngineNotReady
	}
	if orderRef == "" || sessionToken == "" {
		return nil, ErrOrderNotFound
	}

	providedHash := internal.HashSessionToken(sessionToken)

	record, err := e.orderStore.GetByRef(ctx, orderRef)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) || errors.Is(err, order.ErrCorruptRecord) {
			subtle.ConstantTimeCompare(zeroSessionHash[:], providedHash[:])
			return nil, ErrOrderNotFound
		}
		if errors.Is(err, order.ErrRedisUnavailable) {
			return nil, ErrStoreUnavailable
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare(record.SessionHash[:], providedHash[:]) != 1 {
		return nil, ErrOrderNotFound
	}

	return record, nil
}
