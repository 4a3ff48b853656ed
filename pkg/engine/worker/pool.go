// Package worker provides an asynchronous worker pool that backfills session
// memory embeddings after capture.
//
// The pool decouples embedding generation from the capture hot path: capture
// persists the row and returns, and a worker embeds the content and writes
// the vector back when the embedding provider gets around to it.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/embeddings"
	"github.com/emberworks/chronicle/pkg/store"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is one pending embedding backfill.
type Job struct {
	// MemoryID identifies the session memory row to update.
	MemoryID uuid.UUID

	// Text is the content to embed.
	Text string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend holding the rows to backfill.
	Driver store.Driver

	// Embedder generates the vectors.
	Embedder embeddings.Embedder

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes embedding jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job
// being dropped. A dropped job leaves the row unembedded; retrieval simply
// skips it until a later re-capture or backfill.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("embedding job queued",
			zap.String("memory_id", job.MemoryID.String()),
		)
		return true
	default:
		p.logger.Error("embedding job not queued, queue full, job dropped",
			zap.String("memory_id", job.MemoryID.String()),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("embedding worker stopped", zap.Uint("worker_id", id))
}

// processJob embeds the job's text and writes the vector back to the row.
// Errors are logged, not returned; the capture that enqueued the job has
// long since completed.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if job.Text == "" {
		p.logger.Debug("skipping embedding for empty content",
			zap.String("memory_id", job.MemoryID.String()),
		)
		return
	}

	embedding, err := p.config.Embedder.Embed(ctx, job.Text)
	if err != nil {
		p.logger.Warn("failed to generate embedding",
			zap.String("memory_id", job.MemoryID.String()),
			zap.Error(err),
		)
		return
	}

	if err := p.config.Driver.SetSessionEmbedding(ctx, job.MemoryID, embedding); err != nil {
		p.logger.Warn("failed to store embedding",
			zap.String("memory_id", job.MemoryID.String()),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("stored embedding",
		zap.String("memory_id", job.MemoryID.String()),
		zap.Int("embedding_dim", len(embedding)),
	)
}
