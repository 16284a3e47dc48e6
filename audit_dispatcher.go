package shieldauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands events to the sink from a single worker. Events
// that never reach the sink are counted per event type: a full queue in
// drop mode, a cancelled caller in blocking mode, or a panicking sink.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	dropIfFull bool

	stop      chan struct{}
	worker    sync.WaitGroup
	closing   atomic.Bool
	closeOnce sync.Once

	lost       atomic.Uint64
	lostMu     sync.Mutex
	lostByType map[AuditEventType]uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, size),
		dropIfFull: cfg.DropIfFull,
		stop:       make(chan struct{}),
		lostByType: make(map[AuditEventType]uint64),
	}
	d.worker.Add(1)
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer d.worker.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *auditDispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		default:
			return
		}
	}
}

// deliver shields the worker from a sink panic; the event counts as lost.
func (d *auditDispatcher) deliver(event AuditEvent) {
	defer func() {
		if recover() != nil {
			d.drop(event.EventType)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

func (d *auditDispatcher) drop(eventType AuditEventType) {
	d.lost.Add(1)
	d.lostMu.Lock()
	d.lostByType[eventType]++
	d.lostMu.Unlock()
}

// Emit queues event. In drop mode the call never blocks; otherwise it waits
// for queue space until ctx ends.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.drop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	case <-d.stop:
	}
}

// Close stops the worker after draining queued events.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.worker.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.lost.Load()
}

// DroppedByType returns a copy of the per-type loss counts.
func (d *auditDispatcher) DroppedByType() map[AuditEventType]uint64 {
	out := make(map[AuditEventType]uint64)
	if d == nil {
		return out
	}
	d.lostMu.Lock()
	defer d.lostMu.Unlock()
	for k, v := range d.lostByType {
		out[k] = v
	}
	return out
}
