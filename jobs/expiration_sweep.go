package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gondolapp/gondolapp/internal/expiration"
	jobmetrics "github.com/gondolapp/gondolapp/internal/jobs"
)

// ExpirationSummarizer regrades stored items and counts them per level.
type ExpirationSummarizer interface {
	Summary(ctx context.Context) (map[expiration.AlertLevel]int, error)
}

// ExpirationSweepJob refreshes alert levels so list views and metrics agree.
type ExpirationSweepJob struct {
	Service ExpirationSummarizer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewExpirationSweepJob initialises the sweep handler.
func NewExpirationSweepJob(service ExpirationSummarizer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpirationSweepJob {
	return &ExpirationSweepJob{Service: service, Logger: logger, Metrics: metrics}
}

func (j *ExpirationSweepJob) TaskType() string { return TaskExpirationSweep }

// Handle executes one sweep.
func (j *ExpirationSweepJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("expiration sweep: handler not configured")
	}
	var payload ExpirationSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskExpirationSweep)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	counts, err := j.Service.Summary(ctx)
	if err != nil {
		logger.Error("expiration sweep failed", slog.Any("error", err))
		return err
	}
	attrs := make([]any, 0, len(expiration.Levels))
	for _, level := range expiration.Levels {
		j.Metrics.SetExpirations(string(level), counts[level])
		attrs = append(attrs, slog.Int(string(level), counts[level]))
	}
	logger.Info("completed expiration sweep", attrs...)
	return nil
}
