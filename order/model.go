package order

// Status is the stored lifecycle state of an order as reported by the
// remote party. Expiry is not a status: it is derived from UpdatedAt by the
// engine and never written back.
type Status uint8

const (
	// StatusPending means the remote transaction is still in progress.
	StatusPending Status = iota
	// StatusComplete means the remote party verified the user and attached
	// completion data.
	StatusComplete
	// StatusFailed is terminal: the remote transaction ended without a
	// verified identity.
	StatusFailed
)

// String returns the wire form used by the remote party's API.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseStatus maps the remote party's wire status onto Status. Unknown
// values parse as pending so a new hint code from the remote side degrades
// into "still in progress" instead of a hard failure.
func ParseStatus(s string) Status {
	switch s {
	case "complete":
		return StatusComplete
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}

// CompletionUser carries the verified principal's identity fields from the
// remote party's completion payload.
type CompletionUser struct {
	PersonalNumber string `json:"personalNumber"`
	Name           string `json:"name"`
	GivenName      string `json:"givenName"`
	Surname        string `json:"surname"`
}

// CompletionDevice describes the device the remote party observed during
// verification.
type CompletionDevice struct {
	IPAddress string `json:"ipAddress"`
}

// Completion is the structured payload the remote party returns once an
// order reaches StatusComplete. It is mandatory input to consumption.
type Completion struct {
	User         CompletionUser   `json:"user"`
	Device       CompletionDevice `json:"device"`
	Signature    string           `json:"signature,omitempty"`
	OCSPResponse string           `json:"ocspResponse,omitempty"`
}

// Order is one persisted authentication attempt against the remote party.
//
// SessionHash is the SHA-256 of the session binding token handed out at
// initiation; the raw token is never stored. QRStartSecret stays inside the
// engine boundary: it is encoded into the store record and nowhere else.
type Order struct {
	ID             string
	OrderRef       string
	QRStartToken   string
	AutoStartToken string
	QRStartSecret  string
	StartT         int64

	SessionHash [32]byte
	IPAddress   string

	Status     Status
	HintCode   string
	Completion *Completion
	Consumed   bool

	InsertedAt int64
	UpdatedAt  int64
}

// Clone returns a deep copy. Store reads hand out clones so callers can
// never mutate a record another goroutine is deciding on.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	out := *o
	if o.Completion != nil {
		c := *o.Completion
		out.Completion = &c
	}
	return &out
}
