package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/enterprise-stock/internal/jobs"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskWorkflowNotify delivers a committed workflow transition to its recipient.
	TaskWorkflowNotify = "workflow:notify"
)

// NewNotifyTask constructs an Asynq task carrying the transition event.
func NewNotifyTask(evt shared.TransitionEvent) (*asynq.Task, error) {
	if evt.Aggregate == "" || evt.ID <= 0 {
		return nil, errors.New("notify task: aggregate and id required")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWorkflowNotify, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NotifyHandler processes TaskWorkflowNotify tasks.
type NotifyHandler struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle decodes the event and records the delivery. Malformed payloads are
// never retried.
func (h *NotifyHandler) Handle(ctx context.Context, t *asynq.Task) (err error) {
	tracker := h.Metrics.Track(TaskWorkflowNotify)
	defer func() { err = tracker.End(err) }()

	var evt shared.TransitionEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return fmt.Errorf("decode notify payload: %w", asynq.SkipRetry)
	}
	if evt.RecipientID <= 0 {
		return fmt.Errorf("notify %s %d: no recipient: %w", evt.Aggregate, evt.ID, asynq.SkipRetry)
	}
	h.logger().Info("workflow notification",
		slog.Int64("recipient_id", evt.RecipientID),
		slog.String("aggregate", evt.Aggregate),
		slog.String("code", evt.Code),
		slog.String("operation", evt.Operation),
		slog.String("from", evt.From),
		slog.String("to", evt.To),
		slog.String("reason", evt.Reason),
	)
	return nil
}

func (h *NotifyHandler) logger() *slog.Logger {
	if h == nil || h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
