package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/sitecrawl/internal/model"
)

// Job carries the state of one seed through the pipeline.
type Job struct {
	// Seed is the URL the crawl starts from, as given by the user.
	Seed string

	// Report is the crawl result. Nil until the crawl step ran.
	Report *model.CrawlReport

	// Diff compares Report with the previous stored run of the same seed.
	// Nil when there is no previous run or diffing is disabled.
	Diff *model.RunDiff

	// RunID is the database ID of the saved run.
	RunID string

	// Steps lists the steps that were performed, in order.
	Steps []string

	// Err is the error that ended the pipeline, if any.
	Err error
}

// NewJob creates a job for seed.
func NewJob(seed string) *Job {
	return &Job{Seed: seed}
}

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Do executes the pipeline step.
	// Returns an error if the step fails; the job keeps whatever the step
	// produced before failing.
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// Regular steps run in order and stop at the first error or cancellation.
// Final steps run afterwards in any case, with cancellation removed from
// the context.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// finalSteps always run after steps.
	finalSteps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:      make([]Step, 0),
		finalSteps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddFinalSteps appends steps that run after the regular steps even when
// one of them failed or the context was cancelled.
func (p *Pipeline) AddFinalSteps(steps ...Step) {
	p.finalSteps = append(p.finalSteps, steps...)
}

// Execute runs all pipeline steps for job.
// The returned error joins the error that stopped the regular steps with any
// final step errors. It is also stored in job.Err.
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	err := p.runSteps(ctx, job)

	finalCtx := context.WithoutCancel(ctx)
	for _, step := range p.finalSteps {
		if stepErr := p.runStep(finalCtx, step, job); stepErr != nil {
			err = errors.Join(err, stepErr)
		}
	}

	job.Err = err
	return err
}

func (p *Pipeline) runSteps(ctx context.Context, job *Job) error {
	var errs []error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"seed", job.Seed,
				"reason", err,
			)
			return errors.Join(append(errs, err)...)
		}

		if err := p.runStep(ctx, step, job); err != nil {
			if !p.continueOnError {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) runStep(ctx context.Context, step Step, job *Job) error {
	p.logger.Debug("executing step",
		"step", step.Name(),
		"seed", job.Seed,
	)

	job.Steps = append(job.Steps, step.Name())
	if err := step.Do(ctx, job); err != nil {
		level := slog.LevelError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			level = slog.LevelWarn
		}
		p.logger.Log(ctx, level, "step failed",
			"step", step.Name(),
			"seed", job.Seed,
			"error", err,
		)
		return err
	}

	p.logger.Debug("step completed",
		"step", step.Name(),
		"seed", job.Seed,
	)
	return nil
}

// StepCount returns the number of steps in the pipeline, final steps included.
func (p *Pipeline) StepCount() int {
	return len(p.steps) + len(p.finalSteps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, p.StepCount())
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finalSteps {
		names = append(names, step.Name())
	}
	return names
}
