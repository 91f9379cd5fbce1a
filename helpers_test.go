package eident

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nordauth/eident/order"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type mockRemoteClient struct {
	mu sync.Mutex

	initiateCalls int
	collectCalls  int
	cancelCalls   int

	initiateErr error
	collectErr  error
	cancelErr   error

	nextRef  int
	statuses map[string]*StatusResult
}

func newMockRemoteClient() *mockRemoteClient {
	return &mockRemoteClient{
		statuses: map[string]*StatusResult{},
	}
}

func (m *mockRemoteClient) Initiate(_ context.Context, _ string) (*OrderInit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initiateCalls++
	if m.initiateErr != nil {
		return nil, m.initiateErr
	}

	m.nextRef++
	ref := fmt.Sprintf("order-%d", m.nextRef)
	return &OrderInit{
		OrderRef:       ref,
		AutoStartToken: "ast-" + ref,
		QRStartToken:   "qst-" + ref,
		QRStartSecret:  "qss-" + ref,
	}, nil
}

func (m *mockRemoteClient) Collect(_ context.Context, orderRef string) (*StatusResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.collectCalls++
	if m.collectErr != nil {
		return nil, m.collectErr
	}
	if result, ok := m.statuses[orderRef]; ok {
		clone := *result
		return &clone, nil
	}
	return &StatusResult{
		Status:   order.StatusPending,
		HintCode: HintOutstanding,
	}, nil
}

func (m *mockRemoteClient) Cancel(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelCalls++
	return m.cancelErr
}

func (m *mockRemoteClient) setStatus(orderRef string, result *StatusResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[orderRef] = result
}

func (m *mockRemoteClient) calls() (initiate, collect, cancel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initiateCalls, m.collectCalls, m.cancelCalls
}

type mockPrincipalProvider struct {
	mu sync.Mutex

	records     map[string]PrincipalRecord
	upsertCalls int
	upsertErr   error
}

func newMockPrincipalProvider() *mockPrincipalProvider {
	return &mockPrincipalProvider{
		records: map[string]PrincipalRecord{},
	}
}

func (m *mockPrincipalProvider) UpsertByPersonalNumber(_ context.Context, p Principal) (PrincipalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertCalls++
	if m.upsertErr != nil {
		return PrincipalRecord{}, m.upsertErr
	}

	record, ok := m.records[p.PersonalNumber]
	if !ok {
		record = PrincipalRecord{
			ID:             fmt.Sprintf("principal-%d", len(m.records)+1),
			PersonalNumber: p.PersonalNumber,
		}
	}
	record.GivenName = p.GivenName
	record.Surname = p.Surname
	record.Name = p.Name
	record.LastAuthAt = p.AuthenticatedAt
	m.records[p.PersonalNumber] = record
	return record, nil
}

type staticTokenIssuer struct {
	token string
	err   error
}

func (s staticTokenIssuer) Issue(_ context.Context, _ Principal) (string, error) {
	return s.token, s.err
}

func newTestEngine(t *testing.T, rdb *redis.Client, rc RemoteClient, pp PrincipalProvider) *Engine {
	t.Helper()

	cfg := defaultConfig()
	return &Engine{
		config:     cfg,
		orderStore: order.NewStore(rdb, cfg.Order.RedisPrefix, cfg.Order.StoreBackstopTTL),
		remote:     rc,
		principals: pp,
		metrics:    NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true}),
	}
}

func testCompletion(personalNumber string) *order.Completion {
	return &order.Completion{
		User: order.CompletionUser{
			PersonalNumber: personalNumber,
			Name:           "Anna Andersson",
			GivenName:      "Anna",
			Surname:        "Andersson",
		},
		Device: order.CompletionDevice{
			IPAddress: "192.0.2.10",
		},
		Signature:    "c2lnbmF0dXJl",
		OCSPResponse: "b2NzcA",
	}
}
