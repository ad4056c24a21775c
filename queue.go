// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package textgen

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxQueueSize bounds how many requests may wait for a slot.
const DefaultMaxQueueSize = 100

var (
	// ErrQueueFull is returned when both the slots and the wait queue are
	// exhausted.
	ErrQueueFull = errors.New("request queue is full")
	// ErrRequestTimeout is returned when a request waited longer than
	// RequestTimeout for a slot.
	ErrRequestTimeout = errors.New("timed out waiting for a request slot")
)

// RequestQueueConfig configures a RequestQueue.
type RequestQueueConfig struct {
	// MaxConcurrentRequests defaults to runtime.NumCPU().
	MaxConcurrentRequests int
	// MaxQueueSize defaults to DefaultMaxQueueSize.
	MaxQueueSize int
	// RequestTimeout bounds the time spent waiting; zero waits until the
	// request context ends.
	RequestTimeout time.Duration
}

// QueueStats is a point-in-time snapshot of a RequestQueue.
type QueueStats struct {
	MaxConcurrent int    `json:"max_concurrent"`
	MaxQueueSize  int    `json:"max_queue_size"`
	CurrentActive int64  `json:"current_active"`
	CurrentQueued int64  `json:"current_queued"`
	TotalAccepted uint64 `json:"total_accepted"`
	TotalRejected uint64 `json:"total_rejected"`
	TotalTimedOut uint64 `json:"total_timed_out"`
}

// RequestQueue limits concurrent model calls and applies backpressure when
// the model runtime is saturated.
type RequestQueue struct {
	config RequestQueueConfig
	sem    *semaphore.Weighted
	logger *zap.Logger

	active   atomic.Int64
	queued   atomic.Int64
	accepted atomic.Uint64
	rejected atomic.Uint64
	timedOut atomic.Uint64
}

// NewRequestQueue creates a queue, filling zero config values with defaults.
func NewRequestQueue(config RequestQueueConfig, logger *zap.Logger) *RequestQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxConcurrentRequests <= 0 {
		config.MaxConcurrentRequests = runtime.NumCPU()
	}
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = DefaultMaxQueueSize
	}

	logger.Info("Request queue configured",
		zap.Int("max_concurrent", config.MaxConcurrentRequests),
		zap.Int("max_queue_size", config.MaxQueueSize),
		zap.Duration("request_timeout", config.RequestTimeout))

	return &RequestQueue{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrentRequests)),
		logger: logger,
	}
}

// Acquire blocks until a slot is free. The returned release func must be
// called exactly once; extra calls are ignored. On failure the error is
// ErrQueueFull, ErrRequestTimeout or the context's error.
func (q *RequestQueue) Acquire(ctx context.Context) (func(), error) {
	if q.sem.TryAcquire(1) {
		return q.admit(), nil
	}

	if q.queued.Add(1) > int64(q.config.MaxQueueSize) {
		q.queued.Add(-1)
		q.rejected.Add(1)
		q.logger.Debug("Rejecting request, queue full",
			zap.Int64("active", q.active.Load()),
			zap.Int("max_queue_size", q.config.MaxQueueSize))
		return nil, ErrQueueFull
	}
	defer q.queued.Add(-1)

	waitCtx := ctx
	if q.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, q.config.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := q.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.timedOut.Add(1)
		return nil, ErrRequestTimeout
	}
	RecordQueueWaitTime(time.Since(start).Seconds())

	return q.admit(), nil
}

func (q *RequestQueue) admit() func() {
	q.active.Add(1)
	q.accepted.Add(1)
	return sync.OnceFunc(func() {
		q.active.Add(-1)
		q.sem.Release(1)
	})
}

// Stats returns the current queue counters.
func (q *RequestQueue) Stats() QueueStats {
	return QueueStats{
		MaxConcurrent: q.config.MaxConcurrentRequests,
		MaxQueueSize:  q.config.MaxQueueSize,
		CurrentActive: q.active.Load(),
		CurrentQueued: q.queued.Load(),
		TotalAccepted: q.accepted.Load(),
		TotalRejected: q.rejected.Load(),
		TotalTimedOut: q.timedOut.Load(),
	}
}

// WriteQueueFullResponse writes a 503 with a Retry-After hint.
func WriteQueueFullResponse(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	writeJSON(w, nil, http.StatusServiceUnavailable, ErrorResponse{
		Error: "server is busy, please retry later",
	})
}

// WriteTimeoutResponse writes a 504 for requests that never got a slot.
func WriteTimeoutResponse(w http.ResponseWriter) {
	writeJSON(w, nil, http.StatusGatewayTimeout, ErrorResponse{
		Error: "timed out waiting for a generation slot",
	})
}
