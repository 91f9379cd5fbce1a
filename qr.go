package eident

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const qrPayloadPrefix = "bankid"

// BuildQRPayload computes the animated QR payload for an order. The
// payload embeds the whole seconds elapsed since the order's start time
// and an HMAC-SHA256 auth code keyed by the order's QR start secret, so
// each payload is valid only for the second it was generated in.
func BuildQRPayload(qrStartToken, qrStartSecret string, startT, now time.Time) string {
	seconds := int64(now.Sub(startT) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	elapsed := strconv.FormatInt(seconds, 10)

	mac := hmac.New(sha256.New, []byte(qrStartSecret))
	mac.Write([]byte(elapsed))
	authCode := hex.EncodeToString(mac.Sum(nil))

	return qrPayloadPrefix + "." + qrStartToken + "." + elapsed + "." + authCode
}

// AutoStartURL builds the app launch URL for the given auto start token.
// The redirect parameter is fixed to null; callers embedding the URL in a
// platform-specific flow rewrite it themselves.
func AutoStartURL(autoStartToken string) string {
	return "bankid:///?autostarttoken=" + autoStartToken + "&redirect=null"
}

// QRPayload describes the qrpayload operation and its observable behavior.
//
// QRPayload may return an error when input validation, dependency calls, or security checks fail.
// QRPayload does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) QRPayload(ctx context.Context, orderRef, sessionToken string) (string, error) {
	record, err := e.resolveOrder(ctx, orderRef, sessionToken)
	if err != nil {
		return "", err
	}
	startT := time.Unix(record.StartT, 0)
	return BuildQRPayload(record.QRStartToken, record.QRStartSecret, startT, time.Now()), nil
}
