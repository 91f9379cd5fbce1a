package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewStore(client, "eord", 48*time.Hour)
}

func TestCreateAndGet(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	o := sampleOrder()
	if err := store.Create(context.Background(), o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.GetByRef(context.Background(), o.OrderRef)
	if err != nil {
		t.Fatalf("GetByRef failed: %v", err)
	}
	if got.OrderRef != o.OrderRef || got.SessionHash != o.SessionHash {
		t.Fatalf("stored record mismatch: %+v", got)
	}

	ttl := mr.TTL("eord:" + o.OrderRef)
	if ttl <= 0 {
		t.Fatal("expected a backstop TTL on the key")
	}
}

func TestCreateDuplicateRef(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	o := sampleOrder()
	if err := store.Create(context.Background(), o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(context.Background(), o); !errors.Is(err, ErrDuplicateRef) {
		t.Fatalf("expected ErrDuplicateRef, got %v", err)
	}
}

func TestGetByRefNotFound(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	if _, err := store.GetByRef(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByRefCorruptRecord(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	mr.Set("eord:broken", "not a record")

	if _, err := store.GetByRef(context.Background(), "broken"); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestApplyResultWritesChange(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	o := sampleOrder()
	if err := store.Create(context.Background(), o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	later := time.Now().Add(3 * time.Second)
	updated, wrote, err := store.ApplyResult(context.Background(), o.OrderRef, StatusPending, "userSign", nil, later)
	if err != nil {
		t.Fatalf("ApplyResult failed: %v", err)
	}
	if !wrote {
		t.Fatal("expected a write for a changed hint")
	}
	if updated.HintCode != "userSign" {
		t.Fatalf("expected userSign hint, got %s", updated.HintCode)
	}
	if updated.UpdatedAt != later.Unix() {
		t.Fatal("expected UpdatedAt refreshed on write")
	}
}

func TestApplyResultSuppressesIdenticalWrite(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	o := sampleOrder()
	if err := store.Create(context.Background(), o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, wrote, err := store.ApplyResult(context.Background(), o.OrderRef, o.Status, o.HintCode, nil, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ApplyResult failed: %v", err)
	}
	if wrote {
		t.Fatal("expected the identical result to be suppressed")
	}

	stored, err := store.GetByRef(context.Background(), o.OrderRef)
	if err != nil {
		t.Fatalf("GetByRef failed: %v", err)
	}
	if stored.UpdatedAt != o.UpdatedAt {
		t.Fatal("suppressed write must not touch UpdatedAt")
	}
}

func TestApplyResultRefusedAfterConsumption(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	o := sampleOrder()
	o.Status = StatusComplete
	if err := store.Create(context.Background(), o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := store.MarkConsumed(context.Background(), o.OrderRef, time.Now()); err != nil {
		t.Fatalf("MarkConsumed failed: %v", err)
	}

	updated, wrote, err := store.ApplyResult(context.Background(), o.OrderRef, StatusFailed, "cancelled", nil, time.Now())
	if err != nil {
		t.Fatalf("ApplyResult failed: %v", err)
	}
	if wrote {
		t.Fatal("consumed records must not be rewritten")
	}
	if updated.Status != StatusComplete {
		t.Fatalf("expected stored status untouched, got %v", updated.Status)
	}
}

func TestApplyResultMissingOrder(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	_, _, err := store.ApplyResult(context.Background(), "missing", StatusComplete, "", nil, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkConsumedSingleWinner(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	o := sampleOrder()
	o.Status = StatusComplete
	if err := store.Create(context.Background(), o); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.MarkConsumed(context.Background(), o.OrderRef, time.Now())
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrConsumed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestSweepCohorts(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	now := time.Now()
	write := func(ref string, consumed bool, updatedAt time.Time) {
		o := sampleOrder()
		o.OrderRef = ref
		o.Consumed = consumed
		o.UpdatedAt = updatedAt.Unix()
		if err := store.Create(context.Background(), o); err != nil {
			t.Fatalf("Create %s failed: %v", ref, err)
		}
	}

	write("live-pending", false, now)
	write("stale-pending", false, now.Add(-10*time.Minute))
	write("fresh-consumed", true, now.Add(-10*time.Minute))
	write("old-consumed", true, now.Add(-25*time.Hour))
	mr.Set("eord:garbage", "undecodable")

	expiredCutoff := now.Add(-5 * time.Minute)
	consumedCutoff := now.Add(-24 * time.Hour)

	deleted, err := store.Sweep(context.Background(), expiredCutoff, consumedCutoff)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deletions, got %d", deleted)
	}

	for _, ref := range []string{"live-pending", "fresh-consumed"} {
		if _, err := store.GetByRef(context.Background(), ref); err != nil {
			t.Fatalf("%s should survive: %v", ref, err)
		}
	}
	for _, ref := range []string{"stale-pending", "old-consumed", "garbage"} {
		_, err := store.GetByRef(context.Background(), ref)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s should be swept: %v", ref, err)
		}
	}

	// Second pass deletes nothing.
	deleted, err = store.Sweep(context.Background(), expiredCutoff, consumedCutoff)
	if err != nil {
		t.Fatalf("second Sweep failed: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("expected idempotent sweep, got %d deletions", deleted)
	}
}

func TestPing(t *testing.T) {
	mr, store := newTestStore(t)

	if _, err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mr.Close()
	if _, err := store.Ping(context.Background()); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatal("expected ErrRedisUnavailable after close")
	}
}
