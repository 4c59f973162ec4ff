// Package driver decides how test files are run: one explicit file with
// fail-fast semantics, or a set of discovered files where every file is
// attempted and every outcome is kept.
package driver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tkrun/packages/core/runner"
	"github.com/abdul-hamid-achik/tkrun/packages/discovery"
)

// DefaultConcurrency runs files one at a time.
const DefaultConcurrency = 1

type Driver struct {
	runner      *runner.Runner
	concurrency int
	logger      *zap.Logger
}

type Option func(*Driver)

// WithConcurrency bounds how many files run at once in directory mode.
func WithConcurrency(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func New(r *runner.Runner, opts ...Option) *Driver {
	d := &Driver{
		runner:      r,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunFile runs a single file. The first fatal error (load, parse,
// resolution, transport or cancellation) is returned; assertion failures
// are only visible in the verdict.
func (d *Driver) RunFile(ctx context.Context, path string) (*runner.FileVerdict, error) {
	tc, err := runner.LoadFile(path)
	if err != nil {
		return runner.FailedVerdict(path, runner.PhaseLoad, err), err
	}
	return d.runner.Run(ctx, tc)
}

// RunDir discovers the test files under root and runs them all.
func (d *Driver) RunDir(ctx context.Context, root string) (*Summary, error) {
	files, err := discovery.Find(root)
	if err != nil {
		return nil, err
	}
	return d.RunFiles(ctx, files), nil
}

// RunFiles runs every file, at most concurrency at a time. A failure in one
// file never stops the others; each file's verdict is in the summary in
// the order given.
func (d *Driver) RunFiles(ctx context.Context, paths []string) *Summary {
	start := time.Now()
	verdicts := make([]*runner.FileVerdict, len(paths))

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.concurrency)

	for i, path := range paths {
		wg.Add(1)
		sem <- struct{}{} // acquire semaphore

		go func(idx int, path string) {
			defer wg.Done()
			defer func() { <-sem }() // release semaphore

			verdicts[idx] = d.runOne(ctx, path)
		}(i, path)
	}

	wg.Wait()
	return Summarize(verdicts, time.Since(start))
}

func (d *Driver) runOne(ctx context.Context, path string) *runner.FileVerdict {
	verdict, err := d.RunFile(ctx, path)
	if err != nil {
		d.logger.Warn("test file did not complete",
			zap.String("file", path),
			zap.String("phase", string(runner.PhaseOf(err))),
			zap.Error(err))
	}
	if verdict == nil {
		// Run only returns no verdict for a context that already ran.
		verdict = runner.FailedVerdict(path, runner.PhaseOf(err), err)
	}
	return verdict
}
