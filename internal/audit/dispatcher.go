package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	defaultWriteTimeout  = 5 * time.Second
)

// Config controls dispatcher buffering and batching.
type Config struct {
	Enabled       bool
	BufferSize    int
	DropIfFull    bool
	BatchSize     int
	FlushInterval time.Duration
}

// Dispatcher buffers events and hands them to a Writer in batches from a
// single goroutine. A batch is flushed when it is full, when FlushInterval
// elapses, or on Close.
type Dispatcher struct {
	cfg       Config
	writer    Writer
	logger    *slog.Logger
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher. It returns nil when cfg is disabled; a
// nil *Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, writer Writer, logger *slog.Logger) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if writer == nil {
		writer = NoOpWriter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		cfg:    cfg,
		writer: writer,
		logger: logger.With("module", "audit", "layer", "dispatcher"),
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
		if err := d.writer.WriteBatch(ctx, batch); err != nil {
			d.failed.Add(uint64(len(batch)))
			d.logger.Error("activity batch write failed", "operation", "write_batch", "outcome", "error", "size", len(batch), "error", err)
		}
		cancel()
		batch = make([]Event, 0, d.cfg.BatchSize)
	}

	for {
		select {
		case event := <-d.ch:
			batch = append(batch, event)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					batch = append(batch, event)
					if len(batch) >= d.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Emit queues event. With DropIfFull it never blocks and counts drops;
// otherwise it blocks until there is room, ctx ends, or Close is called.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.done:
	}
}

// Close stops accepting events and flushes what is buffered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns how many events were discarded because of backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns how many events were lost to writer errors.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
