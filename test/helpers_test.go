package test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	eident "github.com/nordauth/eident"
	"github.com/nordauth/eident/order"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeRemote is a scriptable identity provider built on the exported
// interfaces only.
type fakeRemote struct {
	mu       sync.Mutex
	nextID   int
	statuses map[string]*eident.StatusResult
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{statuses: map[string]*eident.StatusResult{}}
}

func (f *fakeRemote) Initiate(_ context.Context, _ string) (*eident.OrderInit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	ref := fmt.Sprintf("order-%d", f.nextID)
	return &eident.OrderInit{
		OrderRef:       ref,
		AutoStartToken: "ast-" + ref,
		QRStartToken:   "qst-" + ref,
		QRStartSecret:  "qss-" + ref,
	}, nil
}

func (f *fakeRemote) Collect(_ context.Context, orderRef string) (*eident.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if status, ok := f.statuses[orderRef]; ok {
		return status, nil
	}
	return &eident.StatusResult{Status: order.StatusPending, HintCode: eident.HintOutstanding}, nil
}

func (f *fakeRemote) Cancel(_ context.Context, _ string) error { return nil }

func (f *fakeRemote) setStatus(orderRef string, status *eident.StatusResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[orderRef] = status
}

func newEngine(t *testing.T, remote eident.RemoteClient) (*eident.Engine, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := eident.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("integration-test-secret")
	cfg.Token.Issuer = "eident-test"

	engine, err := eident.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRemoteClient(remote).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("engine build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func completion(personalNumber string) *order.Completion {
	return &order.Completion{
		User: order.CompletionUser{
			PersonalNumber: personalNumber,
			Name:           "Anna Andersson",
			GivenName:      "Anna",
			Surname:        "Andersson",
		},
		Device: order.CompletionDevice{IPAddress: "198.51.100.20"},
	}
}
