package eident

import (
	"context"
	"time"

	"github.com/nordauth/eident/order"
)

// Hint codes reported by the remote party alongside a pending or failed
// status. The set is open-ended on the wire; these are the values the
// engine takes decisions on.
const (
	// HintOutstanding means the remote party is waiting for the user's
	// client app to pick the order up.
	HintOutstanding = "outstandingTransaction"
	// HintNoClient means no client app has fetched the order yet.
	HintNoClient = "noClient"
	// HintStarted means a client app has fetched the order.
	HintStarted = "started"
	// HintUserSign means the user is actively authenticating in the client
	// app right now.
	HintUserSign = "userSign"
	// HintExpired means the remote party timed the order out.
	HintExpired = "expiredTransaction"
	// HintUserCancel means the user aborted in the client app.
	HintUserCancel = "userCancel"
	// HintCancelled means the relying party cancelled the order.
	HintCancelled = "cancelled"
	// HintStartFailed means the client app could not start the order.
	HintStartFailed = "startFailed"
)

// hintBlocksRenewal reports whether replacing the order now would orphan a
// remote transaction the user is in the middle of.
func hintBlocksRenewal(hintCode string) bool {
	return hintCode == HintUserSign || hintCode == HintStarted
}

// OrderInit is the remote party's response to an initiate call.
// QRStartSecret is secret material: it is persisted into the order record
// and must never travel further.
type OrderInit struct {
	OrderRef       string
	AutoStartToken string
	QRStartToken   string
	QRStartSecret  string
	StartT         int64
}

// StatusResult is the remote party's response to a collect (status) call.
type StatusResult struct {
	Status     order.Status
	HintCode   string
	Completion *order.Completion
}

// RemoteClient wraps the identity provider's relying-party network API.
// Implementations must be safe for concurrent use; the scheduler calls
// them from many attempt goroutines at once.
type RemoteClient interface {
	Initiate(ctx context.Context, endUserIP string) (*OrderInit, error)
	Collect(ctx context.Context, orderRef string) (*StatusResult, error)
	Cancel(ctx context.Context, orderRef string) error
}

// OrderView is the sanitized representation of an order returned across the
// public boundary. It never carries qrStartSecret or the session binding
// value.
type OrderView struct {
	OrderRef       string
	Status         string
	HintCode       string
	QRStartToken   string
	AutoStartToken string
	StartT         int64
}

// InitiateResult is returned by [Engine.Initiate]. SessionToken is the
// fresh session binding value: it is handed out exactly once here and can
// never be read back from the engine.
type InitiateResult struct {
	Order        OrderView
	SessionToken string
}

// Principal is the verified identity extracted from a completed order.
type Principal struct {
	PersonalNumber  string
	GivenName       string
	Surname         string
	Name            string
	OrderRef        string
	IPAddress       string
	AuthenticatedAt time.Time
}

// PrincipalRecord is the stored principal row returned by a
// [PrincipalProvider] upsert.
type PrincipalRecord struct {
	ID             string
	PersonalNumber string
	GivenName      string
	Surname        string
	Name           string
	LastAuthAt     time.Time
}

// PrincipalProvider is the interface callers implement to persist verified
// principals. UpsertByPersonalNumber must be keyed on the personal number:
// repeated authentications of the same person update one record.
type PrincipalProvider interface {
	UpsertByPersonalNumber(ctx context.Context, p Principal) (PrincipalRecord, error)
}

// TokenIssuer mints the opaque credential handed to a caller after a
// successful, exactly-once completion. The engine never inspects the
// returned string.
type TokenIssuer interface {
	Issue(ctx context.Context, p Principal) (string, error)
}

// CompleteResult is returned by [Engine.Complete].
type CompleteResult struct {
	Principal Principal
	Record    PrincipalRecord
	Token     string
}

func sanitize(o *order.Order) OrderView {
	return OrderView{
		OrderRef:       o.OrderRef,
		Status:         o.Status.String(),
		HintCode:       o.HintCode,
		QRStartToken:   o.QRStartToken,
		AutoStartToken: o.AutoStartToken,
		StartT:         o.StartT,
	}
}
