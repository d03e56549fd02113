package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
	"github.com/nerrad567/gray-logic-echonet/internal/bridges/hvac"
)

const (
	defaultRecorderQueue = 128
	writeTimeout         = 5 * time.Second
)

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder writes bridge events to a Repository from a single background
// goroutine, so the MQTT and protocol paths never wait on SQLite. Events
// arriving while the queue is full are dropped and counted.
//
// It satisfies hvac.CommandRecorder and hvac.DiscoveryRecorder.
type Recorder struct {
	repo   Repository
	logger Logger
	events chan *AuditLog

	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewRecorder creates a recorder and starts its worker. Call Close to
// drain and stop it.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	r := &Recorder{
		repo:   repo,
		logger: logger,
		events: make(chan *AuditLog, defaultRecorderQueue),
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// RecordCommand queues a command outcome.
func (r *Recorder) RecordCommand(ev hvac.CommandEvent) {
	details := map[string]any{
		"topic":   ev.Topic,
		"payload": ev.Payload,
	}
	if ev.Error != "" {
		details["error"] = ev.Error
	}
	r.enqueue(&AuditLog{
		Action:     ActionCommand,
		EntityType: EntityDevice,
		EntityID:   ev.Device,
		Source:     "mqtt",
		Outcome:    string(ev.Outcome),
		Details:    details,
		CreatedAt:  ev.At,
	})
}

// RecordDiscovery queues a device registration.
func (r *Recorder) RecordDiscovery(name, address string, eoj echonet.EOJ) {
	r.enqueue(&AuditLog{
		Action:     ActionDiscover,
		EntityType: EntityDevice,
		EntityID:   name,
		Source:     "echonet",
		Details: map[string]any{
			"address": address,
			"eoj":     eoj.String(),
		},
	})
}

// Dropped returns how many events were lost to a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) enqueue(log *AuditLog) {
	select {
	case <-r.done:
		return
	default:
	}

	select {
	case r.events <- log:
	default:
		r.dropped.Add(1)
		if r.logger != nil {
			r.logger.Warn("audit queue full, dropping event", "action", log.Action, "device", log.EntityID)
		}
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case log := <-r.events:
			r.write(log)
		case <-r.done:
			// Drain what was queued before Close.
			for {
				select {
				case log := <-r.events:
					r.write(log)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(log *AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, log); err != nil && r.logger != nil {
		r.logger.Error("writing audit log failed", "action", log.Action, "device", log.EntityID, "error", err)
	}
}

// Close stops the worker after writing queued events. Safe to call
// multiple times.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}
