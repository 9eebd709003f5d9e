package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/maci-voter/log"
)

// QueryStatus is the state of the last fetch of a Query.
type QueryStatus string

const (
	StatusIdle    QueryStatus = "idle"
	StatusLoading QueryStatus = "loading"
	StatusReady   QueryStatus = "ready"
	StatusError   QueryStatus = "error"
)

// FetchFunc reads the current value of a query.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Query caches the result of a read and refreshes it periodically. The last
// good value is kept when a later refresh fails.
type Query[T any] struct {
	name  string
	fetch FetchFunc[T]

	mu      sync.RWMutex
	status  QueryStatus
	value   T
	err     error
	updated time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewQuery returns an idle query.
func NewQuery[T any](name string, fetch FetchFunc[T]) *Query[T] {
	return &Query[T]{name: name, fetch: fetch, status: StatusIdle}
}

// Name returns the query name.
func (q *Query[T]) Name() string { return q.name }

// Status returns the state of the last fetch.
func (q *Query[T]) Status() QueryStatus {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.status
}

// Value returns the last value fetched successfully.
func (q *Query[T]) Value() T {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.value
}

// Err returns the error of the last fetch, if it failed.
func (q *Query[T]) Err() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.err
}

// Updated returns the time of the last successful fetch.
func (q *Query[T]) Updated() time.Time {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.updated
}

// Refresh fetches the value now and stores the result.
func (q *Query[T]) Refresh(ctx context.Context) (T, error) {
	q.mu.Lock()
	q.status = StatusLoading
	q.mu.Unlock()

	v, err := q.fetch(ctx)

	q.mu.Lock()
	defer q.mu.Unlock()
	if err != nil {
		q.status = StatusError
		q.err = err
		var zero T
		return zero, err
	}
	q.status = StatusReady
	q.value = v
	q.err = nil
	q.updated = time.Now()
	return v, nil
}

// Start refreshes the query immediately and then every interval until ctx
// is done or Stop is called.
func (q *Query[T]) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("query %s: invalid interval %s", q.name, interval)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	go q.loop(ctx, interval, q.done)
	return nil
}

func (q *Query[T]) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := q.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Warnw("query refresh failed", "query", q.name, "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop halts the periodic refresh and waits for the loop to exit.
func (q *Query[T]) Stop() {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel, q.done = nil, nil
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Current returns a QuerySnapshot of the query.
func (q *Query[T]) Current() any {
	return q.snapshot()
}

func (q *Query[T]) snapshot() QuerySnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s := QuerySnapshot{Name: q.name, Status: string(q.status)}
	if !q.updated.IsZero() {
		s.Value = q.value
		s.Updated = q.updated
	}
	if q.err != nil {
		s.Error = q.err.Error()
	}
	return s
}

// RefreshNow refreshes the query discarding the typed value.
func (q *Query[T]) RefreshNow(ctx context.Context) error {
	_, err := q.Refresh(ctx)
	return err
}

// QuerySnapshot is the JSON form of a query.
type QuerySnapshot struct {
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	Value   any       `json:"value,omitempty"`
	Error   string    `json:"error,omitempty"`
	Updated time.Time `json:"updated,omitzero"`
}
