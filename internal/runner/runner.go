package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner schedules and executes the registered background tasks. Start is
// non-blocking; the caller owns process lifecycle and calls Stop on shutdown.
type Runner struct {
	cron     *cron.Cron
	registry *TaskRegistry
	logger   *log.Logger
	wg       sync.WaitGroup
	started  atomic.Bool
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger overrides the logger.
func WithRunnerLogger(logger *log.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a new task runner.
func NewRunner(registry *TaskRegistry, opts ...RunnerOption) *Runner {
	r := &Runner{
		cron:     cron.New(cron.WithSeconds()),
		registry: registry,
		logger:   log.New(os.Stdout, "[RUNNER] ", log.LstdFlags),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Start schedules every registered task and fires each one once immediately.
// Calling Start twice is a no-op.
func (r *Runner) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return nil
	}

	for name, task := range r.registry.All() {
		task := task
		r.logger.Printf("registering task %s with schedule %s", name, task.Schedule())
		if _, err := r.cron.AddFunc(task.Schedule(), func() {
			r.executeTask(ctx, task)
		}); err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", name, err)
		}
		// First execution does not wait for the schedule to come around.
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.runTask(ctx, task)
		}()
	}

	r.cron.Start()
	r.logger.Println("task runner started")
	return nil
}

func (r *Runner) executeTask(ctx context.Context, task Task) {
	r.wg.Add(1)
	defer r.wg.Done()
	r.runTask(ctx, task)
}

func (r *Runner) runTask(ctx context.Context, task Task) {
	taskCtx, cancel := context.WithTimeout(ctx, task.Timeout())
	defer cancel()

	start := time.Now()
	err := task.Run(taskCtx)
	duration := time.Since(start)

	if err != nil {
		r.logger.Printf("task %s failed after %v: %v", task.Name(), duration, err)
	} else {
		r.logger.Printf("task %s completed in %v", task.Name(), duration)
	}
}

// Stop stops scheduling and waits for running executions to finish.
func (r *Runner) Stop() {
	if !r.started.Load() {
		return
	}
	r.logger.Println("stopping task runner...")
	ctx := r.cron.Stop()
	r.wg.Wait()
	<-ctx.Done()
	r.logger.Println("task runner stopped")
}
