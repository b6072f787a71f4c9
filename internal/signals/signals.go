// Package signals is a tiny in-process pub/sub used to nudge long-running
// services: the web layer wakes the spool walker on enqueue and requests
// daemon restarts without holding references to either.
package signals

import (
	"sync"
)

type Signal string

const (
	// JobEnqueued tells the spool walker there is new work, sparing it the
	// poll interval.
	JobEnqueued Signal = "job-enqueued"
	// RestartRequested is broadcast by /api/system/restart-p. The daemon
	// turns it into a graceful shutdown.
	RestartRequested Signal = "restart-requested"
)

var mu sync.RWMutex
var listeners = map[Signal][]chan struct{}{}

// Broadcast delivers the signal to every listener without blocking. A
// listener with a full buffer has a wakeup pending already, dropping the
// signal loses nothing.
func Broadcast(sig Signal) {
	mu.RLock()
	defer mu.RUnlock()
	for _, c := range listeners[sig] {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

func Listen(sig Signal) (signal <-chan struct{}, cancel func()) {
	mu.Lock()
	defer mu.Unlock()

	c := make(chan struct{}, 1)
	listeners[sig] = append(listeners[sig], c)

	return c, func() {
		mu.Lock()
		defer mu.Unlock()

		var keep []chan struct{}
		for _, cc := range listeners[sig] {
			if cc == c {
				continue
			}
			keep = append(keep, cc)
		}
		listeners[sig] = keep
	}
}
