package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/franz/music-indexer/internal/util"
)

func TestLockRegistryExclusion(t *testing.T) {
	r := NewLockRegistry()
	ctx := context.Background()

	var counter, max int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := r.Acquire(ctx, "/band/a", 5*time.Second)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			counter--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if max != 1 {
		t.Errorf("max concurrent holders = %d, expected 1", max)
	}
	if r.Held() != 0 {
		t.Errorf("Held() = %d after all released", r.Held())
	}
}

func TestLockRegistryTimeout(t *testing.T) {
	r := NewLockRegistry()
	ctx := context.Background()

	release, err := r.Acquire(ctx, "/band/a", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	start := time.Now()
	_, err = r.Acquire(ctx, "/band/a", 30*time.Millisecond)
	if !errors.Is(err, util.ErrLock) {
		t.Fatalf("error = %v, expected ErrLock", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout took far longer than configured")
	}
}

func TestLockRegistryIndependentKeys(t *testing.T) {
	r := NewLockRegistry()
	ctx := context.Background()

	releaseA, err := r.Acquire(ctx, "/band/a", time.Second)
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	defer releaseA()

	// a held lock on one band never blocks another band
	releaseB, err := r.Acquire(ctx, "/band/b", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	releaseB()
}

func TestLockRegistryCancellation(t *testing.T) {
	r := NewLockRegistry()

	release, err := r.Acquire(context.Background(), "/band/a", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Acquire(ctx, "/band/a", 10*time.Second)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, expected context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire did not return")
	}
}

func TestLockReleaseIdempotent(t *testing.T) {
	r := NewLockRegistry()
	release, err := r.Acquire(context.Background(), "/band/a", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
	release() // second call is a no-op

	if r.Held() != 0 {
		t.Errorf("Held() = %d", r.Held())
	}
}
