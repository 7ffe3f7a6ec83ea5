package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of seeds crawled at once when
// WithConcurrency is not given.
const DefaultConcurrency = 4

// Factory builds the pipeline for one seed.
type Factory func(seed string) (*Pipeline, error)

// BatchProcessor handles concurrent processing of multiple seeds.
// It uses errgroup to manage goroutines and respect concurrency limits.
type BatchProcessor struct {
	// factory creates a new pipeline for each seed, so every seed gets its
	// own ledger, fetcher and site settings.
	factory Factory

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls every seed and returns one job per seed, in seed order.
// A failing seed does not stop the others; its error is kept in Job.Err.
// The returned error is non-nil only when ctx was cancelled before every
// seed had started.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*Job, error) {
	jobs := make([]*Job, len(seeds))
	err := bp.ProcessBatchWithCallback(ctx, seeds, func(job *Job, index int) {
		jobs[index] = job
	})
	return jobs, err
}

// ProcessBatchWithCallback crawls every seed and calls callback for each
// finished job. This is useful for streaming results.
//
// The callback is called from the goroutine that completed the job, so it
// must be safe for concurrent use. Seeds skipped because ctx was cancelled
// produce no callback.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(job *Job, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("crawling seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			job := bp.process(ctx, seed)
			callback(job, i)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)
	return err
}

// process runs the pipeline of one seed. Errors stay in the job so the
// other seeds continue.
func (bp *BatchProcessor) process(ctx context.Context, seed string) *Job {
	job := NewJob(seed)

	p, err := bp.factory(seed)
	if err != nil {
		bp.logger.Warn("invalid seed", "seed", seed, "error", err)
		job.Err = err
		return job
	}

	if err := p.Execute(ctx, job); err != nil {
		bp.logger.Warn("crawl failed", "seed", seed, "error", err)
		return job
	}

	bp.logger.Info("crawl completed", "seed", seed)
	return job
}
