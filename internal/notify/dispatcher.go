package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const sendTimeout = 15 * time.Second

// Dispatcher is a Queue backed by a buffered channel and one worker goroutine
// that renders events into emails.
type Dispatcher struct {
	sender EmailSender
	from   string
	to     []string
	log    *zap.Logger

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	done    chan struct{}
	dropped atomic.Int64
}

// NewDispatcher starts the worker. size is the channel capacity.
func NewDispatcher(sender EmailSender, size int, from string, to []string, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if size <= 0 {
		size = 1
	}
	d := &Dispatcher{
		sender: sender,
		from:   from,
		to:     to,
		log:    log,
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue hands the event to the worker. When the buffer is full or the
// dispatcher is closed the event is dropped and logged.
func (d *Dispatcher) Enqueue(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ev, "dispatcher closed")
		return
	}
	select {
	case d.events <- ev:
	default:
		d.drop(ev, "queue full")
	}
}

func (d *Dispatcher) drop(ev Event, reason string) {
	d.dropped.Add(1)
	d.log.Warn("notification dropped",
		zap.String("reason", reason),
		zap.String("event_id", ev.ID.String()),
		zap.String("type", string(ev.Type)),
	)
}

// Dropped is the number of events discarded so far.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Close stops accepting events, drains the buffer and waits for the worker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := d.sender.Send(ctx, Email{From: d.from, To: d.to, Subject: ev.Subject, Text: ev.Body})
		cancel()
		if err != nil {
			d.log.Warn("notification failed",
				zap.String("event_id", ev.ID.String()),
				zap.String("type", string(ev.Type)),
				zap.Error(err),
			)
			continue
		}
		d.log.Debug("notification sent", zap.String("event_id", ev.ID.String()), zap.String("type", string(ev.Type)))
	}
}
