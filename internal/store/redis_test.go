package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/venuefarm/bookingbot/internal/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisSessionStore(client, WithTTL(time.Hour))
	ctx := context.Background()

	cs, err := s.GetConversationState(ctx, "911234567890")
	if err != nil || cs != nil {
		t.Fatalf("expected absent state, got %+v, %v", cs, err)
	}

	st := models.NewConversationState("911234567890", time.Now())
	st.Phase = models.PhaseChoosingFarmType
	st.Selection = models.Selection{Kind: models.KindFarm}
	if err := s.SaveConversationState(ctx, st); err != nil {
		t.Fatalf("SaveConversationState failed: %v", err)
	}

	key := DefaultSessionKeyPrefix + "911234567890"
	if !mr.Exists(key) {
		t.Fatalf("expected key %s to exist", key)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("expected TTL of 1h, got %v", ttl)
	}

	got, err := s.GetConversationState(ctx, "911234567890")
	if err != nil || got == nil {
		t.Fatalf("GetConversationState: %+v, %v", got, err)
	}
	if got.Phase != models.PhaseChoosingFarmType || got.Selection.Kind != models.KindFarm {
		t.Fatalf("unexpected state: %+v", got)
	}

	mr.FastForward(2 * time.Hour)
	got, _ = s.GetConversationState(ctx, "911234567890")
	if got != nil {
		t.Fatalf("expected state to expire, got %+v", got)
	}
}

func TestRedisSessionStoreCorruptValue(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisSessionStore(client)
	mr.Set(DefaultSessionKeyPrefix+"91", "{broken")

	cs, err := s.GetConversationState(context.Background(), "91")
	if err != nil || cs != nil {
		t.Fatalf("corrupt value should read as absent, got %+v, %v", cs, err)
	}
}

func TestRedisSessionStoreUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisSessionStore(client)
	mr.Close()

	if _, err := s.GetConversationState(context.Background(), "91"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestRedisLockerSerializes(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, WithLockWait(5*time.Second))
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "91")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxInside)
	}
}

func TestRedisLockerTimeout(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, WithLockWait(100*time.Millisecond))
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "91")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	defer unlock()

	if _, err := l.Lock(ctx, "91"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	other, err := l.Lock(ctx, "92")
	if err != nil {
		t.Fatalf("different key should not block: %v", err)
	}
	other()
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client)
	unlock, err := l.Lock(context.Background(), "91")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	// simulate lease expiry and takeover by another process
	mr.Set(DefaultLockKeyPrefix+"91", "someone-else")
	unlock()

	v, err := mr.Get(DefaultLockKeyPrefix + "91")
	if err != nil || v != "someone-else" {
		t.Fatalf("foreign lock must survive release, got %q, %v", v, err)
	}
}
