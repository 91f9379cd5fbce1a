package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nordauth/eident/order"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return server, client
}

func TestInitiateParsesAuthResponse(t *testing.T) {
	var gotBody authRequest
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(authResponse{
			OrderRef:       "order-abc",
			AutoStartToken: "ast",
			QRStartToken:   "qst",
			QRStartSecret:  "qss",
		})
	})

	init, err := client.Initiate(context.Background(), "203.0.113.7")
	if err != nil {
		t.Fatalf("Initiate failed: %v", err)
	}
	if gotBody.EndUserIP != "203.0.113.7" {
		t.Fatalf("expected endUserIp forwarded, got %s", gotBody.EndUserIP)
	}
	if init.OrderRef != "order-abc" || init.QRStartSecret != "qss" {
		t.Fatalf("unexpected init %+v", init)
	}
	if init.StartT == 0 {
		t.Fatal("expected a start time")
	}
}

func TestCollectMapsStatusAndCompletion(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collect" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"orderRef": "order-abc",
			"status":   "complete",
			"completionData": map[string]interface{}{
				"user": map[string]string{
					"personalNumber": "190001019876",
					"name":           "Anna Andersson",
					"givenName":      "Anna",
					"surname":        "Andersson",
				},
				"device": map[string]string{
					"ipAddress": "192.0.2.10",
				},
				"signature":    "c2ln",
				"ocspResponse": "b2NzcA",
			},
		})
	})

	result, err := client.Collect(context.Background(), "order-abc")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Status != order.StatusComplete {
		t.Fatalf("expected complete, got %v", result.Status)
	}
	if result.Completion == nil || result.Completion.User.PersonalNumber != "190001019876" {
		t.Fatalf("completion not mapped: %+v", result.Completion)
	}
}

func TestCollectPendingHint(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(collectResponse{
			OrderRef: "order-abc",
			Status:   "pending",
			HintCode: "userSign",
		})
	})

	result, err := client.Collect(context.Background(), "order-abc")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Status != order.StatusPending || result.HintCode != "userSign" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiError{
			ErrorCode: "invalidParameters",
			Details:   "No such order",
		})
	})

	_, err := client.Collect(context.Background(), "order-abc")
	if !errors.Is(err, ErrRemoteRejected) {
		t.Fatalf("expected ErrRemoteRejected, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	canceled := false
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cancel" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		canceled = true
		w.Write([]byte("{}"))
	})

	if err := client.Cancel(context.Background(), "order-abc"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !canceled {
		t.Fatal("expected the cancel endpoint to be called")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected an error without BaseURL")
	}
}

func TestDefaultLifecycle(t *testing.T) {
	ResetDefault()
	t.Cleanup(ResetDefault)

	if _, err := Default(); err == nil {
		t.Fatal("expected an error before configuration")
	}

	SetDefaultConfig(Config{BaseURL: "https://example.invalid/rp/v6.0"})

	first, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	second, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	if first != second {
		t.Fatal("expected the same client instance")
	}

	replacement, err := NewClient(Config{BaseURL: "https://example.invalid/other"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	SetDefault(replacement)

	current, err := Default()
	if err != nil {
		t.Fatalf("Default failed: %v", err)
	}
	if current != replacement {
		t.Fatal("expected SetDefault to replace the instance")
	}

	ResetDefault()
	if _, err := Default(); err == nil {
		t.Fatal("expected an error after reset")
	}
}
