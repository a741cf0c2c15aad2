package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/enterprise-stock/jobs"
)

type stubEnqueuer struct{ tasks []*asynq.Task }

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector struct{}

func (stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Scheduled: 1}, nil
}

func (stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return []*asynq.TaskInfo{{ID: "s-1", Type: jobs.TaskTransitAudit, NextProcessAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}}, nil
}

func TestJobsCLITrigger(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq, inspector: stubInspector{}}
	var out bytes.Buffer

	require.NoError(t, c.Run(context.Background(), []string{"trigger", jobs.TaskTransitAudit}, &out))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, jobs.TaskTransitAudit, enq.tasks[0].Type())
	require.Contains(t, out.String(), "enqueued transfers:transit_audit id=t-1")

	require.ErrorContains(t, c.Run(context.Background(), []string{"trigger", "mail:send"}, &out), "unsupported job")
	require.Error(t, c.Run(context.Background(), nil, &out))
}

func TestJobsCLIStatsAndScheduled(t *testing.T) {
	c := &JobsCLI{client: &stubEnqueuer{}, inspector: stubInspector{}}

	var out bytes.Buffer
	require.NoError(t, c.Run(context.Background(), []string{"stats"}, &out))
	require.Contains(t, out.String(), "PENDING")
	require.Regexp(t, `default\s+2\s+0\s+1\s+0`, out.String())

	out.Reset()
	require.NoError(t, c.Run(context.Background(), []string{"scheduled"}, &out))
	require.Equal(t, "s-1\ttransfers:transit_audit\t2026-03-01T10:00:00Z\n", out.String())

	require.NoError(t, c.Close())
}
