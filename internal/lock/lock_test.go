package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocal_TimesOutWhenHeld(t *testing.T) {
	t.Parallel()

	l := NewLocal(20 * time.Millisecond)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := l.Acquire(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("second Acquire = %v, want ErrTimeout", err)
	}
	l.Release()
	if !l.TryAcquire() {
		t.Fatal("TryAcquire failed after Release")
	}
	l.Release()
}

func TestLocal_ContextCancel(t *testing.T) {
	t.Parallel()

	l := NewLocal(0)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire = %v, want context.Canceled", err)
	}
}

func TestWith_SerializesCallers(t *testing.T) {
	t.Parallel()

	l := NewLocal(time.Second)
	var inside, maxInside atomic.Int32
	done := make(chan struct{})

	for range 4 {
		go func() {
			_ = With(context.Background(), l, func(context.Context) error {
				n := inside.Add(1)
				if n > maxInside.Load() {
					maxInside.Store(n)
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			done <- struct{}{}
		}()
	}
	for range 4 {
		<-done
	}
	if maxInside.Load() != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside.Load())
	}
}

func TestNoop(t *testing.T) {
	t.Parallel()

	var n Noop
	for range 3 {
		if err := n.Acquire(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	n.Release()
}
