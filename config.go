package eident

import (
	"errors"
	"time"
)

// remoteOrderLifetime is how long the remote party keeps an order alive
// before timing it out on its side. Renewals must land strictly inside
// this window.
const remoteOrderLifetime = 30 * time.Second

// pollRateFloor is the hard minimum poll interval imposed by the remote
// party. Undercutting it gets the relying party throttled.
const pollRateFloor = 2 * time.Second

// qrMaxStaleness bounds the QR refresh interval: payloads older than about
// a second start failing scans in the remote party's client app.
const qrMaxStaleness = 2 * time.Second

// Config defines a public type used by eident APIs.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Config struct {
	Order   OrderConfig
	Timers  TimerConfig
	Expunge ExpungeConfig
	Token   TokenConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// OrderConfig governs order validity and retention.
type OrderConfig struct {
	// RedisPrefix namespaces order keys.
	RedisPrefix string
	// TTL is the wall-clock budget of a whole authentication attempt and
	// the staleness bound past which an order can no longer be completed.
	TTL time.Duration
	// ConsumedRetentionTTL is how long consumed orders are kept before the
	// expunger removes them.
	ConsumedRetentionTTL time.Duration
	// StoreBackstopTTL is a Redis key TTL applied at creation purely as a
	// leak guard; it must comfortably exceed ConsumedRetentionTTL so the
	// expunger, not Redis, decides deletion.
	StoreBackstopTTL time.Duration
}

// TimerConfig governs the per-attempt scheduler cadences.
type TimerConfig struct {
	// PollInterval is the collect cadence. Floor: 2s (remote rate limit).
	PollInterval time.Duration
	// RenewInterval is the order-replacement cadence. Must stay strictly
	// under the remote party's ~30s order timeout.
	RenewInterval time.Duration
	// QRRefreshInterval is the animated-QR rederivation cadence.
	QRRefreshInterval time.Duration
	// MaxRenewals caps how many replacement orders one attempt may create.
	MaxRenewals int
	// UpdateBuffer sizes an attempt's update channel. A slow consumer
	// loses intermediate views, never the terminal outcome.
	UpdateBuffer int
}

// ExpungeConfig governs the background sweeper.
type ExpungeConfig struct {
	Interval time.Duration
}

// TokenConfig configures the default JWT token issuer. Ignored when the
// builder is given a custom [TokenIssuer].
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// AuditConfig defines a public type used by eident APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by eident APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Order: OrderConfig{
			RedisPrefix:          "eord",
			TTL:                  300 * time.Second,
			ConsumedRetentionTTL: 24 * time.Hour,
			StoreBackstopTTL:     48 * time.Hour,
		},
		Timers: TimerConfig{
			PollInterval:      2 * time.Second,
			RenewInterval:     28 * time.Second,
			QRRefreshInterval: time.Second,
			MaxRenewals:       10,
			UpdateBuffer:      16,
		},
		Expunge: ExpungeConfig{
			Interval: 300 * time.Second,
		},
		Token: TokenConfig{
			TTL:           5 * time.Minute,
			SigningMethod: "ed25519",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate is run once by [Builder.Build]; Engine operations never
// re-validate configuration per call.
func (c *Config) Validate() error {
	// Order
	if c.Order.RedisPrefix == "" {
		return errors.New("Order RedisPrefix must not be empty")
	}
	if c.Order.TTL <= 0 {
		return errors.New("Order TTL must be > 0")
	}
	if c.Order.ConsumedRetentionTTL <= 0 {
		return errors.New("Order ConsumedRetentionTTL must be > 0")
	}
	if c.Order.StoreBackstopTTL <= c.Order.ConsumedRetentionTTL {
		return errors.New("Order StoreBackstopTTL must exceed ConsumedRetentionTTL")
	}

	// Timers
	if c.Timers.PollInterval < pollRateFloor {
		return errors.New("Timers PollInterval must be >= 2s (remote rate limit)")
	}
	if c.Timers.RenewInterval <= 0 || c.Timers.RenewInterval >= remoteOrderLifetime {
		return errors.New("Timers RenewInterval must be > 0 and < 30s (remote order timeout)")
	}
	if c.Timers.QRRefreshInterval <= 0 || c.Timers.QRRefreshInterval > qrMaxStaleness {
		return errors.New("Timers QRRefreshInterval must be > 0 and <= 2s")
	}
	if c.Timers.MaxRenewals <= 0 {
		return errors.New("Timers MaxRenewals must be > 0")
	}
	if c.Timers.UpdateBuffer <= 0 {
		return errors.New("Timers UpdateBuffer must be > 0")
	}

	// Expunge
	if c.Expunge.Interval <= 0 {
		return errors.New("Expunge Interval must be > 0")
	}

	// Token (validated lazily by the issuer when the default issuer is
	// used; only sanity-check cross-field shape here)
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.SigningMethod != "ed25519" && c.Token.SigningMethod != "hs256" {
		return errors.New("unsupported Token signing method")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
