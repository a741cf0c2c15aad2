package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/enterprise-stock/internal/jobs"
	"github.com/odyssey-erp/enterprise-stock/internal/transfers"
)

const (
	// TaskTransitAudit scans shipped transfers that have not been received.
	TaskTransitAudit = "transfers:transit_audit"
	// TransitAuditCron runs the audit at the top of every hour.
	TransitAuditCron = "0 * * * *"
)

// TransitAuditPayload carries scheduling metadata.
type TransitAuditPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTransitAuditTask constructs an Asynq task for the transit audit.
func NewTransitAuditTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(TransitAuditPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTransitAudit, body, asynq.Queue(QueueDefault)), nil
}

// InTransitLister lists in-transit transfer lines older than a threshold.
type InTransitLister interface {
	ListInTransit(ctx context.Context, olderThan time.Duration) ([]transfers.InTransitLine, error)
}

// TransitAuditJob warns about material that has been in transit too long.
type TransitAuditJob struct {
	Transfers InTransitLister
	After     time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle executes the audit.
func (j *TransitAuditJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Transfers == nil {
		return errors.New("transit audit: handler not configured")
	}
	var payload TransitAuditPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskTransitAudit)
	defer func() { err = tracker.End(err) }()

	after := j.After
	if after <= 0 {
		after = 72 * time.Hour
	}
	logger := j.logger().With(slog.Duration("after", after))

	lines, err := j.Transfers.ListInTransit(ctx, after)
	if err != nil {
		logger.Error("transit audit failed", slog.Any("error", err))
		return err
	}
	overdue := make(map[int64]struct{})
	for _, line := range lines {
		overdue[line.TransferID] = struct{}{}
		attrs := []any{
			slog.String("code", line.Code),
			slog.Int64("item_id", line.ItemID),
			slog.Int64("material_id", line.MaterialID),
			slog.String("quantity", line.Quantity.String()),
			slog.Int64("origin_location_id", line.OriginLocationID),
			slog.Int64("destination_location_id", line.DestinationLocationID),
		}
		if line.ShippedAt != nil {
			attrs = append(attrs, slog.Time("shipped_at", *line.ShippedAt))
		}
		logger.Warn("material in transit beyond window", attrs...)
	}
	j.Metrics.SetOverdueTransfers(len(overdue))
	logger.Info("transit audit completed", slog.Int("transfers", len(overdue)), slog.Int("lines", len(lines)))
	return nil
}

func (j *TransitAuditJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
