// Package watchdog detects a stalled loop.
//
// The owner calls Ping whenever it makes progress. If no ping arrives
// within the timeout the expiry handler runs, exactly once. The bridge's
// handler logs and terminates the process so a supervisor can restart it.
//
//	wd := watchdog.New(31*time.Second, func() {
//	    log.Error("watchdog expired")
//	    os.Exit(1)
//	})
//	wd.Start()
//	defer wd.Stop()
//
//	for {
//	    wd.Ping()
//	    // ... one unit of work ...
//	}
package watchdog

import (
	"sync"
	"sync/atomic"
	"time"
)

// Watchdog runs onExpire when Ping is not called within the timeout.
//
// Thread Safety: all methods are safe for concurrent use.
type Watchdog struct {
	timeout  time.Duration
	onExpire func()

	mu       sync.Mutex
	started  bool
	lastPing time.Time

	ping     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	expireOnce sync.Once
	expired    atomic.Bool
}

// New creates a stopped watchdog. A nil onExpire only marks the watchdog expired.
func New(timeout time.Duration, onExpire func()) *Watchdog {
	return &Watchdog{
		timeout:  timeout,
		onExpire: onExpire,
		ping:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Start arms the timer. Calling Start more than once has no effect.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}
	w.started = true
	w.lastPing = time.Now()

	w.wg.Add(1)
	go w.run()
}

// Ping resets the deadline.
func (w *Watchdog) Ping() {
	w.mu.Lock()
	w.lastPing = time.Now()
	w.mu.Unlock()

	select {
	case w.ping <- struct{}{}:
	default:
	}
}

// Stop disarms the watchdog and waits for its goroutine to exit.
// Safe to call multiple times and before Start.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

// LastPing returns the time of the most recent Ping (or Start).
func (w *Watchdog) LastPing() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastPing
}

// Expired reports whether the expiry handler has run.
func (w *Watchdog) Expired() bool {
	return w.expired.Load()
}

// Timeout returns the configured timeout.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

func (w *Watchdog) run() {
	defer w.wg.Done()

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-w.ping:
			timer.Reset(w.timeout)
		case <-timer.C:
			w.fire()
			return
		}
	}
}

func (w *Watchdog) fire() {
	w.expireOnce.Do(func() {
		w.expired.Store(true)
		if w.onExpire != nil {
			w.onExpire()
		}
	})
}
