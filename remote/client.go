package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nordauth/eident"
	"github.com/nordauth/eident/order"
)

// ErrRemoteRejected is an exported constant or variable used by the order engine.
var ErrRemoteRejected = errors.New("remote party rejected the request")

// Config defines a public type used by eident APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// BaseURL is the relying-party API root, e.g.
	// "https://appapi2.bankid.com/rp/v6.0".
	BaseURL string
	// ClientCert and ClientKey are the PEM relying-party certificate pair.
	// Both empty skips client-certificate auth (test servers).
	ClientCert []byte
	ClientKey  []byte
	// RootCAs is an optional PEM bundle replacing the system pool.
	RootCAs []byte
	// Timeout bounds each request. Zero means 10s.
	Timeout time.Duration
	// HTTPClient overrides the constructed client entirely; TLS fields are
	// ignored when set.
	HTTPClient *http.Client
}

// Client defines a public type used by eident APIs.
//
// Client instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient describes the newclient operation and its observable behavior.
//
// NewClient may return an error when input validation, dependency calls, or security checks fail.
// NewClient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote BaseURL required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}

		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		if len(cfg.ClientCert) > 0 || len(cfg.ClientKey) > 0 {
			cert, err := tls.X509KeyPair(cfg.ClientCert, cfg.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		if len(cfg.RootCAs) > 0 {
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(cfg.RootCAs) {
				return nil, errors.New("invalid root CA bundle")
			}
			tlsConfig.RootCAs = pool
		}

		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
	}, nil
}

type authRequest struct {
	EndUserIP string `json:"endUserIp"`
}

type authResponse struct {
	OrderRef       string `json:"orderRef"`
	AutoStartToken string `json:"autoStartToken"`
	QRStartToken   string `json:"qrStartToken"`
	QRStartSecret  string `json:"qrStartSecret"`
}

type collectRequest struct {
	OrderRef string `json:"orderRef"`
}

type collectResponse struct {
	OrderRef       string            `json:"orderRef"`
	Status         string            `json:"status"`
	HintCode       string            `json:"hintCode"`
	CompletionData *order.Completion `json:"completionData"`
}

type apiError struct {
	ErrorCode string `json:"errorCode"`
	Details   string `json:"details"`
}

// Initiate describes the initiate operation and its observable behavior.
//
// Initiate may return an error when input validation, dependency calls, or security checks fail.
// Initiate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) Initiate(ctx context.Context, endUserIP string) (*eident.OrderInit, error) {
	var resp authResponse
	if err := c.post(ctx, "/auth", authRequest{EndUserIP: endUserIP}, &resp); err != nil {
		return nil, err
	}
	if resp.OrderRef == "" {
		return nil, fmt.Errorf("%w: auth response missing orderRef", ErrRemoteRejected)
	}

	return &eident.OrderInit{
		OrderRef:       resp.OrderRef,
		AutoStartToken: resp.AutoStartToken,
		QRStartToken:   resp.QRStartToken,
		QRStartSecret:  resp.QRStartSecret,
		StartT:         time.Now().Unix(),
	}, nil
}

// Collect describes the collect operation and its observable behavior.
//
// Collect may return an error when input validation, dependency calls, or security checks fail.
// Collect does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) Collect(ctx context.Context, orderRef string) (*eident.StatusResult, error) {
	var resp collectResponse
	if err := c.post(ctx, "/collect", collectRequest{OrderRef: orderRef}, &resp); err != nil {
		return nil, err
	}

	return &eident.StatusResult{
		Status:     order.ParseStatus(resp.Status),
		HintCode:   resp.HintCode,
		Completion: resp.CompletionData,
	}, nil
}

// Cancel describes the cancel operation and its observable behavior.
//
// Cancel may return an error when input validation, dependency calls, or security checks fail.
// Cancel does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) Cancel(ctx context.Context, orderRef string) error {
	return c.post(ctx, "/cancel", collectRequest{OrderRef: orderRef}, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.ErrorCode != "" {
			return fmt.Errorf("%w: %s (%s)", ErrRemoteRejected, apiErr.ErrorCode, apiErr.Details)
		}
		return fmt.Errorf("%w: %s returned %s", ErrRemoteRejected, path, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
