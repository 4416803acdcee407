// Package migration implements the cancellable re-embedding protocol:
// when the embedding function changes, every stored document is
// re-embedded under the new function and the graph is rebuilt from
// scratch, in bounded batches, without blocking the caller. A stopped or
// failed migration is not resumed: the next Start begins again from the
// first document.
package migration

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/nvandessel/annstore/internal/embed"
	"github.com/nvandessel/annstore/internal/index"
	"github.com/nvandessel/annstore/internal/store"
)

// DefaultBatchSize is used when Controller is constructed with
// batchSize <= 0.
const DefaultBatchSize = 50

// State is the migration controller's lifecycle state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// ErrAlreadyRunning is returned by Start when a migration is already in
// progress; only one migration may run at a time.
var ErrAlreadyRunning = errors.New("migration: already running")

// Status reports migration progress, polled via Status while Start runs
// in the background.
type Status struct {
	Total           int
	Processed       int
	LastProcessedID string
	IsComplete      bool
	Error           string
}

// Controller drives a single migration at a time over an Indexer.
type Controller struct {
	mu        sync.Mutex
	indexer   *index.Indexer
	batchSize int
	state     State
	status    Status
	stopCh    chan struct{}
}

// New creates a Controller over ix with the given batch size.
func New(ix *index.Indexer, batchSize int) *Controller {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Controller{indexer: ix, batchSize: batchSize, state: StateIdle}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of migration progress.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start snapshots every document, resets the index, and re-embeds and
// re-inserts documents under target in batches of Controller's batch
// size, running in the background. Returns ErrAlreadyRunning if a
// migration is already in progress. The snapshot-then-reset is
// non-lazy: the index is emptied up front and refilled batch by batch
// rather than being swapped in atomically at the end (see DESIGN.md).
func (c *Controller) Start(ctx context.Context, target embed.Embedder) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.state = StateRunning
	c.status = Status{}
	stopCh := make(chan struct{})
	c.stopCh = stopCh
	c.mu.Unlock()

	go c.run(ctx, target, stopCh)
	return nil
}

// Stop requests cancellation. The running migration checks for
// cancellation only at batch boundaries; an in-flight embedding call is
// not aborted. No-op if no migration is running.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return
	}
	c.state = StateStopping
	close(c.stopCh)
}

func (c *Controller) run(ctx context.Context, target embed.Embedder, stopCh chan struct{}) {
	docs, err := c.indexer.GetAllDocuments(ctx)
	if err != nil {
		c.finishWithError(fmt.Errorf("migration: snapshotting documents: %w", err))
		return
	}

	c.mu.Lock()
	c.status.Total = len(docs)
	c.mu.Unlock()

	if err := c.indexer.ResetIndex(ctx); err != nil {
		c.finishWithError(fmt.Errorf("migration: resetting index: %w", err))
		return
	}

	for start := 0; start < len(docs); start += c.batchSize {
		select {
		case <-stopCh:
			c.mu.Lock()
			c.state = StateIdle
			c.mu.Unlock()
			return
		default:
		}

		end := min(start+c.batchSize, len(docs))
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Text
		}

		vecs, err := target.EmbedBatch(ctx, texts)
		if err != nil {
			c.finishWithError(fmt.Errorf("migration: embedding batch [%d:%d]: %w", start, end, err))
			return
		}

		reembedded := make([]store.Document, len(batch))
		for i, d := range batch {
			d.Embedding = vecs[i]
			reembedded[i] = d
		}

		if err := c.indexer.IndexDocuments(ctx, reembedded); err != nil {
			c.finishWithError(fmt.Errorf("migration: reindexing batch [%d:%d]: %w", start, end, err))
			return
		}

		c.mu.Lock()
		c.status.Processed = end
		c.status.LastProcessedID = batch[len(batch)-1].ID
		c.mu.Unlock()

		// Yield between batches so a concurrent Stop or Status poll gets
		// scheduled promptly instead of waiting behind a tight loop.
		runtime.Gosched()
	}

	c.indexer.SetEmbedder(target)

	c.mu.Lock()
	c.status.IsComplete = true
	c.state = StateIdle
	c.mu.Unlock()
}

func (c *Controller) finishWithError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Error = err.Error()
	c.state = StateIdle
}
