package signals

import (
	"testing"
	"time"
)

func TestBroadcastReachesAllListeners(t *testing.T) {
	a, cancelA := Listen(JobEnqueued)
	defer cancelA()
	b, cancelB := Listen(JobEnqueued)
	defer cancelB()

	Broadcast(JobEnqueued)

	for name, c := range map[string]<-chan struct{}{"a": a, "b": b} {
		select {
		case <-c:
		case <-time.After(time.Second):
			t.Fatalf("listener %s never woke", name)
		}
	}
}

func TestBroadcastIsScopedToSignal(t *testing.T) {
	c, cancel := Listen(RestartRequested)
	defer cancel()

	Broadcast(JobEnqueued)

	select {
	case <-c:
		t.Fatal("listener woke on an unrelated signal")
	default:
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	c, cancel := Listen(JobEnqueued)
	defer cancel()

	// a full buffer means a wakeup is already pending, extra broadcasts
	// collapse into it
	for i := 0; i < 10; i++ {
		Broadcast(JobEnqueued)
	}

	select {
	case <-c:
	default:
		t.Fatal("expected a pending wakeup")
	}
	select {
	case <-c:
		t.Fatal("collapsed broadcasts should leave a single wakeup")
	default:
	}
}

func TestCancelRemovesListener(t *testing.T) {
	c, cancel := Listen(JobEnqueued)
	cancel()

	Broadcast(JobEnqueued)

	select {
	case <-c:
		t.Fatal("cancelled listener still received a signal")
	default:
	}
}
