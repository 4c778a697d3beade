package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewStore(rdb, "cst", "auth_user", 30*time.Minute), mr
}

func TestUsernameLifecycle(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()
	sid := NewID()

	if _, ok, err := store.Username(ctx, sid); err != nil || ok {
		t.Fatalf("fresh session: got ok=%v err=%v", ok, err)
	}

	if err := store.SetUsername(ctx, sid, "alice"); err != nil {
		t.Fatalf("set username: %v", err)
	}

	username, ok, err := store.Username(ctx, sid)
	if err != nil || !ok {
		t.Fatalf("read username: ok=%v err=%v", ok, err)
	}
	if username != "alice" {
		t.Fatalf("username: got %q want alice", username)
	}

	if err := store.Clear(ctx, sid); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.Username(ctx, sid); ok {
		t.Fatal("username survived clear")
	}
	// Clear is idempotent.
	if err := store.Clear(ctx, sid); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestFailureCounter(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()
	sid := NewID()

	if n, err := store.Failures(ctx, sid); err != nil || n != 0 {
		t.Fatalf("fresh counter: n=%d err=%v", n, err)
	}

	for want := 1; want <= 3; want++ {
		n, err := store.IncrFailures(ctx, sid)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != want {
			t.Fatalf("incr: got %d want %d", n, want)
		}
	}

	if err := store.ResetFailures(ctx, sid); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := store.Failures(ctx, sid); n != 0 {
		t.Fatalf("counter after reset: %d", n)
	}
}

func TestFailureCounterSurvivesIdentityClear(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()
	sid := NewID()

	if _, err := store.IncrFailures(ctx, sid); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if err := store.SetUsername(ctx, sid, "alice"); err != nil {
		t.Fatalf("set username: %v", err)
	}
	if err := store.Clear(ctx, sid); err != nil {
		t.Fatalf("clear: %v", err)
	}

	n, err := store.Failures(ctx, sid)
	if err != nil {
		t.Fatalf("failures: %v", err)
	}
	if n != 1 {
		t.Fatalf("counter after identity clear: got %d want 1", n)
	}
}

func TestFailureCounterExpires(t *testing.T) {
	store, mr := newStoreTest(t)
	ctx := context.Background()
	sid := NewID()

	if _, err := store.IncrFailures(ctx, sid); err != nil {
		t.Fatalf("incr: %v", err)
	}

	mr.FastForward(31 * time.Minute)

	if n, _ := store.Failures(ctx, sid); n != 0 {
		t.Fatalf("counter survived session lifetime: %d", n)
	}
}

func TestRegenerateMovesStateAtomically(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()
	sid := NewID()

	if err := store.SetUsername(ctx, sid, "alice"); err != nil {
		t.Fatalf("set username: %v", err)
	}
	if _, err := store.IncrFailures(ctx, sid); err != nil {
		t.Fatalf("incr: %v", err)
	}

	newSID, err := store.Regenerate(ctx, sid)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if newSID == sid {
		t.Fatal("regenerate returned the same identifier")
	}

	// Old identifier stops resolving.
	if _, ok, _ := store.Username(ctx, sid); ok {
		t.Fatal("old session still resolves")
	}
	if n, _ := store.Failures(ctx, sid); n != 0 {
		t.Fatal("old failure counter still resolves")
	}

	// State moved intact.
	username, ok, err := store.Username(ctx, newSID)
	if err != nil || !ok || username != "alice" {
		t.Fatalf("moved identity: username=%q ok=%v err=%v", username, ok, err)
	}
	if n, _ := store.Failures(ctx, newSID); n != 1 {
		t.Fatalf("moved counter: %d", n)
	}
}

func TestRegenerateEmptySession(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()

	newSID, err := store.Regenerate(ctx, NewID())
	if err != nil {
		t.Fatalf("regenerate empty: %v", err)
	}
	if _, ok, _ := store.Username(ctx, newSID); ok {
		t.Fatal("empty session produced an identity")
	}
}

func TestConsumeTicketOnce(t *testing.T) {
	store, _ := newStoreTest(t)
	ctx := context.Background()

	fresh, err := store.ConsumeTicket(ctx, "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !fresh {
		t.Fatal("first consume refused")
	}

	replay, err := store.ConsumeTicket(ctx, "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("consume replay: %v", err)
	}
	if replay {
		t.Fatal("replayed ticket accepted")
	}
}

func TestErrRedisUnavailable(t *testing.T) {
	store, mr := newStoreTest(t)
	ctx := context.Background()
	mr.Close()

	if _, _, err := store.Username(ctx, NewID()); err == nil {
		t.Fatal("expected error with backend down")
	}
}
