package flow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedLockerSerializesSameKey(t *testing.T) {
	l := NewKeyedLocker(0)
	var inside, overlap int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "91")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if overlap != 0 {
		t.Fatal("two holders of the same key overlapped")
	}
	if n := l.Len(); n != 0 {
		t.Fatalf("expected entries to be released, %d remain", n)
	}
}

func TestKeyedLockerIndependentKeys(t *testing.T) {
	l := NewKeyedLocker(0)
	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock a failed: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("a different key must not block: %v", err)
	}
	unlockB()
}

func TestKeyedLockerWaitTimeout(t *testing.T) {
	l := NewKeyedLocker(30 * time.Millisecond)
	unlock, _ := l.Lock(context.Background(), "91")
	if _, err := l.Lock(context.Background(), "91"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	unlock()
	unlock() // second release is a no-op

	again, err := l.Lock(context.Background(), "91")
	if err != nil {
		t.Fatalf("lock should be free again: %v", err)
	}
	again()
	if n := l.Len(); n != 0 {
		t.Fatalf("expected no entries, got %d", n)
	}
}

func TestKeyedLockerContextCancel(t *testing.T) {
	l := NewKeyedLocker(0)
	unlock, _ := l.Lock(context.Background(), "91")
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Lock(ctx, "91"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
