package token

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod defines a public type used by eident APIs.
//
// SigningMethod instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SigningMethod string

const (
	// MethodEd25519 is an exported constant or variable used by the order engine.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 is an exported constant or variable used by the order engine.
	MethodHS256 SigningMethod = "hs256"
)

// Config defines a public type used by eident APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	TTL           time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Identity is the verified subject a token is minted for.
type Identity struct {
	PersonalNumber  string
	GivenName       string
	Surname         string
	Name            string
	OrderRef        string
	IPAddress       string
	AuthenticatedAt time.Time
}

// IdentityClaims defines a public type used by eident APIs.
//
// IdentityClaims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type IdentityClaims struct {
	PersonalNumber string `json:"pnr"`
	GivenName      string `json:"given_name,omitempty"`
	Surname        string `json:"family_name,omitempty"`
	Name           string `json:"name,omitempty"`
	OrderRef       string `json:"ord"`
	IP             string `json:"ip,omitempty"`
	AuthTime       int64  `json:"auth_time"`
	jwt.RegisteredClaims
}

// Issuer defines a public type used by eident APIs.
//
// Issuer instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Issuer struct {
	config Config
}

// NewIssuer describes the newissuer operation and its observable behavior.
//
// NewIssuer may return an error when input validation, dependency calls, or security checks fail.
// NewIssuer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch SigningMethod(cfg.SigningMethod) {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Issuer{config: cfg}, nil
}

// Issue describes the issue operation and its observable behavior.
//
// Issue may return an error when input validation, dependency calls, or security checks fail.
// Issue does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (i *Issuer) Issue(ctx context.Context, id Identity) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if id.PersonalNumber == "" {
		return "", errors.New("identity requires a personal number")
	}

	now := time.Now()
	authTime := id.AuthenticatedAt
	if authTime.IsZero() {
		authTime = now
	}

	claims := IdentityClaims{
		PersonalNumber: id.PersonalNumber,
		GivenName:      id.GivenName,
		Surname:        id.Surname,
		Name:           id.Name,
		OrderRef:       id.OrderRef,
		IP:             id.IPAddress,
		AuthTime:       authTime.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.PersonalNumber,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.config.Issuer,
			ID:        uuid.NewString(),
		},
	}
	if i.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.config.Audience}
	}

	token := jwt.NewWithClaims(i.getMethod(), claims)

	signKey, err := i.getSignKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

// Parse describes the parse operation and its observable behavior.
//
// Parse may return an error when input validation, dependency calls, or security checks fail.
// Parse does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (i *Issuer) Parse(tokenStr string) (*IdentityClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.getMethod().Alg()}),
	}
	if i.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.config.Leeway))
	}
	if i.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.config.Issuer))
	}
	if i.config.Audience != "" {
		options = append(options, jwt.WithAudience(i.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &IdentityClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != i.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return i.getVerifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

func (i *Issuer) getMethod() jwt.SigningMethod {
	switch SigningMethod(i.config.SigningMethod) {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (i *Issuer) getSignKey() (interface{}, error) {
	switch SigningMethod(i.config.SigningMethod) {
	case MethodHS256:
		return i.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(i.config.PrivateKey)
	}
}

func (i *Issuer) getVerifyKey() (interface{}, error) {
	switch SigningMethod(i.config.SigningMethod) {
	case MethodHS256:
		return i.config.PrivateKey, nil
	default:
		if len(i.config.PublicKey) > 0 {
			return parseEdPublicKey(i.config.PublicKey)
		}
		priv, err := parseEdPrivateKey(i.config.PrivateKey)
		if err != nil {
			return nil, err
		}
		return priv.Public(), nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
