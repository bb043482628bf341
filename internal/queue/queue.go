// Package queue provides the bounded work queue that runs crawl tasks.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrQueueClosed is returned when adding to a queue that stopped dispatching.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("queue already started")
)

// Task is a unit of work. ctx is the context the queue was started with.
type Task func(ctx context.Context)

// Stats is a point-in-time view of a queue.
type Stats struct {
	Size        int   `json:"size"`
	Pending     int   `json:"pending"`
	Dispatched  int64 `json:"dispatched"`
	Dropped     int64 `json:"dropped"`
	Panics      int64 `json:"panics"`
	Concurrency int   `json:"concurrency"`
	// Interval is the minimum spacing between dispatches.
	Interval time.Duration `json:"interval"`
}
