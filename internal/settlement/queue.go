package settlement

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrQueueClosed rejects submissions after the queue's context ended.
var ErrQueueClosed = errors.New("settlement queue closed")

// Queue fans transfers out to a fixed pool of settlement workers. A transfer
// that fails is logged and dropped; it never blocks other transfers.
type Queue struct {
	orch    *Orchestrator
	log     *zap.Logger
	tasks   chan Transfer
	workers int
}

// NewQueue creates a queue with the given worker count and buffer depth.
func NewQueue(orch *Orchestrator, log *zap.Logger, workers, depth int) *Queue {
	if workers <= 0 {
		workers = 2
	}
	if depth <= 0 {
		depth = 16
	}
	return &Queue{
		orch:    orch,
		log:     log,
		tasks:   make(chan Transfer, depth),
		workers: workers,
	}
}

// Submit enqueues a transfer for settlement, blocking while the buffer is
// full.
func (q *Queue) Submit(ctx context.Context, t Transfer) error {
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return ErrQueueClosed
	}
}

// Run processes submitted transfers until the context is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case t := <-q.tasks:
					if err := q.orch.Settle(ctx, t); err != nil {
						q.log.Error("settlement failed",
							zap.String("transfer_id", t.ID),
							zap.String("src_tx", t.SrcTxHash),
							zap.Error(err))
					}
				}
			}
		})
	}
	return g.Wait()
}
