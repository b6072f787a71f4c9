package tools

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()

	var mu sync.Mutex
	inside := map[string]int{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		key := "a"
		if i%2 == 0 {
			key = "b"
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			km.Lock(key)
			defer km.Unlock(key)

			mu.Lock()
			inside[key]++
			if inside[key] > 1 {
				t.Errorf("two holders inside key %s", key)
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside[key]--
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	if km.Locked("a") || km.Locked("b") {
		t.Fatal("entries should be reclaimed after the last unlock")
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("a")
	defer km.Unlock("a")

	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key should not block")
	}
}

func TestKeyedMutexUnlockUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewKeyedMutex().Unlock("nope")
}
