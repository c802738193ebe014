package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gondolapp/gondolapp/internal/integrity"
	jobmetrics "github.com/gondolapp/gondolapp/internal/jobs"
)

// IntegrityService is the part of integrity.Service the job drives.
type IntegrityService interface {
	Scan(ctx context.Context) (integrity.Report, error)
	Repair(ctx context.Context) (integrity.RepairResult, error)
}

// IntegrityScanJob reports local store inconsistencies and can repair them.
type IntegrityScanJob struct {
	Service IntegrityService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(service IntegrityService, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{Service: service, Logger: logger, Metrics: metrics}
}

// TaskType implements Job.
func (j *IntegrityScanJob) TaskType() string { return TaskIntegrityScan }

// Handle executes one scan, followed by a repair when requested.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	start := time.Now()
	tracker := j.Metrics.Track(TaskIntegrityScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger().With(slog.Bool("repair", payload.Repair))

	report, err := j.Service.Scan(ctx)
	if err != nil {
		logger.Error("integrity scan failed", slog.Any("error", err))
		return err
	}
	for kind, count := range report.Counts() {
		j.Metrics.SetIntegrityIssues(kind, count)
	}
	for _, dup := range report.DuplicateBarcodes {
		logger.Warn("duplicate barcode", slog.String("barcode", dup.Barcode), slog.Any("variant_ids", dup.VariantIDs))
	}

	if payload.Repair && !report.Clean() {
		result, err := j.Service.Repair(ctx)
		if err != nil {
			logger.Error("integrity repair failed", slog.Any("error", err))
			return err
		}
		after, err := j.Service.Scan(ctx)
		if err != nil {
			return err
		}
		for kind, count := range after.Counts() {
			j.Metrics.SetIntegrityIssues(kind, count)
		}
		logger.Info("integrity repair applied",
			slog.Int("orphan_variants", result.OrphanVariants),
			slog.Int("dangling_restock", result.DanglingRestock),
			slog.Int("dangling_expirations", result.DanglingExpirations),
		)
	}

	logger.Info("completed integrity scan",
		slog.Bool("clean", report.Clean()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
