package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityScan scans the local store and optionally repairs it.
	TaskIntegrityScan = "catalog:integrity_scan"
	// TaskExpirationSweep regrades expiration items and publishes counts.
	TaskExpirationSweep = "expiration:alert_sweep"
)

// IntegrityScanPayload controls one integrity run.
type IntegrityScanPayload struct {
	Repair bool `json:"repair"`
}

// NewIntegrityScanTask constructs an Asynq task for the integrity scan.
func NewIntegrityScanTask(repair bool) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityScanPayload{Repair: repair})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, body, asynq.Queue(QueueDefault)), nil
}

// ExpirationSweepPayload carries scheduling metadata.
type ExpirationSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewExpirationSweepTask constructs an Asynq task for the expiration sweep.
func NewExpirationSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ExpirationSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExpirationSweep, body, asynq.Queue(QueueDefault)), nil
}
