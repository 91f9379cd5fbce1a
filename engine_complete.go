package eident

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nordauth/eident/order"
)

// Complete describes the complete operation and its observable behavior.
//
// Complete may return an error when input validation, dependency calls, or security checks fail.
// Complete does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Complete(ctx context.Context, orderRef, sessionToken string) (*CompleteResult, error) {
	record, err := e.resolveOrder(ctx, orderRef, sessionToken)
	if err != nil {
		e.metricInc(MetricCompleteFailure)
		return nil, err
	}

	now := time.Now()
	if e.orderExpired(record, now) {
		e.metricInc(MetricCompleteFailure)
		e.emitAudit(ctx, auditEventCompleteFailure, false, record.OrderRef, record.IPAddress, ErrOrderExpired, nil)
		return nil, ErrOrderExpired
	}
	if record.Status != order.StatusComplete {
		e.metricInc(MetricCompleteFailure)
		e.emitAudit(ctx, auditEventCompleteFailure, false, record.OrderRef, record.IPAddress, ErrOrderNotComplete, nil)
		return nil, ErrOrderNotComplete
	}
	if record.Consumed {
		e.metricInc(MetricCompleteReplayed)
		e.emitAudit(ctx, auditEventCompleteReplay, false, record.OrderRef, record.IPAddress, ErrOrderConsumed, nil)
		return nil, ErrOrderConsumed
	}

	principal, err := principalFromCompletion(record, now)
	if err != nil {
		e.metricInc(MetricCompleteFailure)
		e.emitAudit(ctx, auditEventCompleteFailure, false, record.OrderRef, record.IPAddress, err, nil)
		return nil, err
	}

	// Consumption is the commit point: the first caller to flip the flag
	// owns the result, everyone else sees ErrOrderConsumed.
	if _, err := e.orderStore.MarkConsumed(ctx, record.OrderRef, now); err != nil {
		switch {
		case errors.Is(err, order.ErrConsumed):
			e.metricInc(MetricCompleteReplayed)
			e.emitAudit(ctx, auditEventCompleteReplay, false, record.OrderRef, record.IPAddress, ErrOrderConsumed, nil)
			return nil, ErrOrderConsumed
		case errors.Is(err, order.ErrNotFound):
			e.metricInc(MetricCompleteFailure)
			return nil, ErrOrderNotFound
		default:
			e.metricInc(MetricCompleteFailure)
			e.emitAudit(ctx, auditEventCompleteFailure, false, record.OrderRef, record.IPAddress, err, nil)
			return nil, ErrStoreUnavailable
		}
	}
	e.metricInc(MetricOrderConsumed)

	result := &CompleteResult{Principal: principal}

	if e.principals != nil {
		rec, err := e.principals.UpsertByPersonalNumber(ctx, principal)
		if err != nil {
			// The consumed flag already committed; the caller must see the
			// failure rather than a silent success, and a retry is refused
			// with ErrOrderConsumed.
			e.metricInc(MetricCompleteFailure)
			e.emitAudit(ctx, auditEventCompleteFailure, false, record.OrderRef, record.IPAddress, err, nil)
			return nil, ErrStoreUnavailable
		}
		result.Record = rec
	}

	if e.issuer != nil {
		token, err := e.issuer.Issue(ctx, principal)
		if err != nil {
			e.metricInc(MetricCompleteFailure)
			e.emitAudit(ctx, auditEventCompleteFailure, false, record.OrderRef, record.IPAddress, err, nil)
			return nil, err
		}
		result.Token = token
	}

	e.metricInc(MetricCompleteSuccess)
	e.emitAudit(ctx, auditEventCompleteSuccess, true, record.OrderRef, record.IPAddress, nil, func() map[string]string {
		return map[string]string{
			"personal_number": principal.PersonalNumber,
		}
	})

	return result, nil
}

// principalFromCompletion validates the order's completion data and
// projects it into a [Principal].
func principalFromCompletion(rec *order.Order, now time.Time) (Principal, error) {
	completion := rec.Completion
	if completion == nil {
		return Principal{}, ErrCompletionDataMissing
	}

	var missing []string
	if strings.TrimSpace(completion.User.PersonalNumber) == "" {
		missing = append(missing, "personalNumber")
	}
	if strings.TrimSpace(completion.User.GivenName) == "" {
		missing = append(missing, "givenName")
	}
	if strings.TrimSpace(completion.User.Surname) == "" {
		missing = append(missing, "surname")
	}
	if len(missing) > 0 {
		return Principal{}, &MissingIdentityFieldsError{Fields: missing}
	}

	name := completion.User.Name
	if name == "" {
		name = completion.User.GivenName + " " + completion.User.Surname
	}

	return Principal{
		PersonalNumber:  completion.User.PersonalNumber,
		GivenName:       completion.User.GivenName,
		Surname:         completion.User.Surname,
		Name:            name,
		OrderRef:        rec.OrderRef,
		IPAddress:       rec.IPAddress,
		AuthenticatedAt: now,
	}, nil
}
