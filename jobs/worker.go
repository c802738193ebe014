package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Job consumes one task type.
type Job interface {
	TaskType() string
	Handle(ctx context.Context, t *asynq.Task) error
}

// Schedule enqueues Task on the Cron spec, evaluated in UTC.
type Schedule struct {
	Cron     string
	Task     *asynq.Task
	MaxRetry int
}

// WorkerOptions configures NewWorker.
type WorkerOptions struct {
	Redis       asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Jobs        []Job
	Schedules   []Schedule
}

// Worker consumes catalog and expiration tasks and runs their schedules.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *slog.Logger
	types     []string
}

// NewWorker validates the job set and prepares the server. Nothing connects
// to Redis until Run.
func NewWorker(opts WorkerOptions) (*Worker, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux, types, err := buildMux(opts.Jobs, opts.Schedules)
	if err != nil {
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = len(types)
	}

	server := asynq.NewServer(opts.Redis, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{QueueDefault: 1},
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, t *asynq.Task, err error) {
			logger.Warn("task failed", slog.String("type", t.Type()), slog.Any("error", err))
		}),
	})

	w := &Worker{server: server, mux: mux, logger: logger, types: types}
	if len(opts.Schedules) == 0 {
		return w, nil
	}
	w.scheduler = asynq.NewScheduler(opts.Redis, &asynq.SchedulerOpts{Location: time.UTC})
	for _, s := range opts.Schedules {
		retries := s.MaxRetry
		if retries <= 0 {
			retries = 3
		}
		if _, err := w.scheduler.Register(s.Cron, s.Task, asynq.Queue(QueueDefault), asynq.MaxRetry(retries)); err != nil {
			return nil, fmt.Errorf("jobs: schedule %s %q: %w", s.Task.Type(), s.Cron, err)
		}
	}
	return w, nil
}

// buildMux routes every job by task type. A duplicate type, or a schedule for
// a type nobody consumes, is a wiring mistake.
func buildMux(jobs []Job, schedules []Schedule) (*asynq.ServeMux, []string, error) {
	mux := asynq.NewServeMux()
	seen := make(map[string]bool, len(jobs))
	types := make([]string, 0, len(jobs))
	for _, j := range jobs {
		if j == nil {
			return nil, nil, errors.New("jobs: nil job")
		}
		taskType := j.TaskType()
		if seen[taskType] {
			return nil, nil, fmt.Errorf("jobs: %s registered twice", taskType)
		}
		seen[taskType] = true
		types = append(types, taskType)
		mux.Handle(taskType, asynq.HandlerFunc(j.Handle))
	}
	for _, s := range schedules {
		if s.Task == nil || s.Cron == "" {
			return nil, nil, errors.New("jobs: schedule needs a cron spec and a task")
		}
		if !seen[s.Task.Type()] {
			return nil, nil, fmt.Errorf("jobs: %s is scheduled but has no job", s.Task.Type())
		}
	}
	if len(types) == 0 {
		return nil, nil, errors.New("jobs: no jobs to run")
	}
	return mux, types, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("jobs: worker not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("jobs: start scheduler: %w", err)
		}
		defer w.scheduler.Shutdown()
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start server: %w", err)
	}
	w.logger.Info("worker started", slog.Any("task_types", w.types))
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return ctx.Err()
}
