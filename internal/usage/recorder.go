// Package usage records one UsageRecord per completed or abandoned request
// without ever applying backpressure to the request pipeline, generalizing
// ProxyMonitor's (internal/proxy/monitor/monitor.go) atomic counters and
// async fire-and-forget DB write from an unbounded
// "go func(){ db.Create(...) }()" per log line into a bounded, batched queue.
package usage

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/clads-dev/clads-gateway/internal/store/models"
)

const (
	defaultQueueCapacity = 4096
	batchSize            = 64
	batchInterval        = 500 * time.Millisecond
)

// Recorder accepts UsageRecords on a bounded channel and writes them to the
// database in batches on a background goroutine. When the channel is full,
// the oldest queued record is dropped and counted, never the new one — the
// hot path always succeeds in handing its record off.
type Recorder struct {
	db      *gorm.DB
	queue   chan models.UsageRecord
	dropped atomic.Int64
	total   atomic.Int64
	done    chan struct{}
}

// New starts a Recorder with the given queue capacity (0 uses the default)
// and launches its batching goroutine. Call Close to drain and stop it.
func New(db *gorm.DB, capacity int) *Recorder {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	r := &Recorder{
		db:    db,
		queue: make(chan models.UsageRecord, capacity),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues a usage record, stamping an ID/timestamp if unset.
// Non-blocking: if the queue is full, the oldest queued record is dropped to
// make room, and the drop counter (exposed via Stats) is incremented.
func (r *Recorder) Record(rec models.UsageRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.TotalTokens = rec.InputTokens + rec.OutputTokens

	r.total.Add(1)
	for {
		select {
		case r.queue <- rec:
			return
		default:
			select {
			case <-r.queue:
				r.dropped.Add(1)
			default:
			}
		}
	}
}

// Stats is a snapshot of the recorder's counters. /health reports only
// QueueDepth (as queue_depth); Dropped and Total are not part of that response.
type Stats struct {
	QueueDepth int
	Dropped    int64
	Total      int64
}

// Stats reports the current queue depth and cumulative totals.
func (r *Recorder) Stats() Stats {
	return Stats{
		QueueDepth: len(r.queue),
		Dropped:    r.dropped.Load(),
		Total:      r.total.Load(),
	}
}

// Close stops accepting new writes and flushes whatever remains queued.
func (r *Recorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)

	batch := make([]models.UsageRecord, 0, batchSize)
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.db.WithContext(context.Background()).Create(&batch).Error; err != nil {
			slog.Error("usage batch write failed", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
