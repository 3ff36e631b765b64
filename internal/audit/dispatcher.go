package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultEmitTimeout = 5 * time.Second

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	EmitTimeout time.Duration
}

// Dispatcher asynchronously forwards audit events to a sink.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	logger    logrus.FieldLogger
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closeOnce sync.Once

	// mu is held shared by Emit while it sends and exclusively by Close, so
	// every accepted event is buffered before the drain starts.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the delivery goroutine. It returns nil when auditing is
// disabled; a nil Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink, logger logrus.FieldLogger) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = defaultEmitTimeout
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if logger == nil {
		logger = logrus.New()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger.WithField("component", "audit"),
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.EmitTimeout)
	defer cancel()

	if err := d.sink.Emit(ctx, event); err != nil {
		d.failed.Add(1)
		d.logger.WithFields(logrus.Fields{
			"event_type": event.EventType,
			"account_id": event.AccountID,
		}).WithError(err).Warn("audit sink emit failed")
	}
}

// Emit queues event. With DropIfFull a full buffer drops the event and
// counts it; otherwise Emit waits for space or ctx. Events emitted after
// Close are counted as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		default:
			if d.dropped.Add(1) == 1 {
				d.logger.WithField("event_type", event.EventType).Warn("audit buffer full, dropping events")
			}
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
		d.logger.WithFields(logrus.Fields{
			"event_type": event.EventType,
			"account_id": event.AccountID,
		}).WithError(ctx.Err()).Warn("audit event dropped, caller gave up waiting for buffer space")
	}
}

// Close stops accepting events, drains the buffer and waits for delivery.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns how many events the sink rejected.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
