package securitylog

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	defaultBatchSize      = 100
	defaultBatchTimeout   = 100 * time.Millisecond
	defaultStorageTimeout = 5 * time.Second
)

// ErrStorageClosed is returned by Store after Close has completed.
var ErrStorageClosed = errors.New("securitylog: storage closed")

// AsyncOptions configures NewAsync.
type AsyncOptions struct {
	BufferSize     int
	BatchSize      int
	BatchTimeout   time.Duration
	StorageTimeout time.Duration
}

// asyncStorage batches writes to an underlying Storage so that logging a
// security event never adds synchronous latency to the ingestion
// pipeline's rejection path. Store never fails the caller for a full
// buffer — it falls back to a direct synchronous write instead, matching
// spec.md's "append-only security events that never fail the caller".
type asyncStorage struct {
	underlying Storage
	eventChan  chan eventBatch
	done       chan struct{}
	wg         sync.WaitGroup
	opts       AsyncOptions
}

type eventBatch struct {
	ctx    context.Context
	events []Event
	result chan error
}

// NewAsync wraps storage with a background batching writer and returns it
// together with a close function to call during graceful shutdown.
func NewAsync(storage Storage, opts AsyncOptions) (Storage, func(context.Context) error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = defaultBatchTimeout
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = defaultStorageTimeout
	}

	as := &asyncStorage{
		underlying: storage,
		eventChan:  make(chan eventBatch, opts.BufferSize),
		done:       make(chan struct{}),
		opts:       opts,
	}

	as.wg.Add(1)
	go as.worker()

	return as, as.close
}

func (as *asyncStorage) Store(ctx context.Context, events ...Event) error {
	result := make(chan error, 1)

	select {
	case as.eventChan <- eventBatch{ctx: ctx, events: events, result: result}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-as.done:
		return ErrStorageClosed
	default:
		// Buffer is full: fall back to a synchronous write rather than
		// drop or block the caller.
		return as.underlying.Store(ctx, events...)
	}
}

func (as *asyncStorage) Query(ctx context.Context, criteria Criteria) ([]Event, error) {
	return as.underlying.Query(ctx, criteria)
}

func (as *asyncStorage) Count(ctx context.Context, criteria Criteria) (int64, error) {
	return as.underlying.Count(ctx, criteria)
}

func (as *asyncStorage) worker() {
	defer as.wg.Done()

	batch := make([]Event, 0, as.opts.BatchSize)
	pending := make([]chan error, 0, as.opts.BatchSize)

	ticker := time.NewTicker(as.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), as.opts.StorageTimeout)
		err := as.underlying.Store(ctx, batch...)
		cancel()

		for _, result := range pending {
			select {
			case result <- err:
			default:
			}
		}

		batch = batch[:0]
		pending = pending[:0]
	}

	for {
		select {
		case b := <-as.eventChan:
			batch = append(batch, b.events...)
			pending = append(pending, b.result)
			if len(batch) >= as.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-as.done:
			close(as.eventChan)
			for b := range as.eventChan {
				batch = append(batch, b.events...)
				pending = append(pending, b.result)
			}
			flush()
			return
		}
	}
}

func (as *asyncStorage) close(ctx context.Context) error {
	close(as.done)

	waited := make(chan struct{})
	go func() {
		as.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
