package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/enterprise-stock/internal/jobs"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
	"github.com/odyssey-erp/enterprise-stock/internal/transfers"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestClientEnqueuesTransitionEvent(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := NewClientWith(enq)
	evt := shared.TransitionEvent{
		Aggregate: "request", ID: 7, Code: "RM-2026-0007", Operation: "approve",
		From: "SUBMITTED", To: "APPROVED", ActorID: 2, RecipientID: 1,
		At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	require.NoError(t, client.NotifyTransition(context.Background(), evt))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskWorkflowNotify, enq.tasks[0].Type())

	var decoded shared.TransitionEvent
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &decoded))
	require.Equal(t, evt, decoded)

	require.Error(t, client.NotifyTransition(context.Background(), shared.TransitionEvent{}))

	enq.err = errors.New("redis down")
	require.ErrorContains(t, client.NotifyTransition(context.Background(), evt), "redis down")
	require.NoError(t, client.Close())
}

func TestNotifyHandler(t *testing.T) {
	handler := &NotifyHandler{Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	task, err := NewNotifyTask(shared.TransitionEvent{Aggregate: "transfer", ID: 3, Operation: "ship", RecipientID: 9})
	require.NoError(t, err)
	require.NoError(t, handler.Handle(context.Background(), task))

	err = handler.Handle(context.Background(), asynq.NewTask(TaskWorkflowNotify, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	task, err = NewNotifyTask(shared.TransitionEvent{Aggregate: "transfer", ID: 3, Operation: "ship"})
	require.NoError(t, err)
	require.ErrorIs(t, handler.Handle(context.Background(), task), asynq.SkipRetry)
}

type fakeLister struct {
	lines []transfers.InTransitLine
	after time.Duration
	err   error
}

func (f *fakeLister) ListInTransit(_ context.Context, olderThan time.Duration) ([]transfers.InTransitLine, error) {
	f.after = olderThan
	return f.lines, f.err
}

func TestTransitAuditCountsOverdueTransfers(t *testing.T) {
	shipped := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lister := &fakeLister{lines: []transfers.InTransitLine{
		{TransferID: 1, Code: "TR-2026-0001", ItemID: 10, MaterialID: 100, Quantity: decimal.NewFromInt(4), ShippedAt: &shipped},
		{TransferID: 1, Code: "TR-2026-0001", ItemID: 11, MaterialID: 101, Quantity: decimal.NewFromInt(2), ShippedAt: &shipped},
		{TransferID: 2, Code: "TR-2026-0002", ItemID: 20, MaterialID: 100, Quantity: decimal.NewFromInt(1)},
	}}
	reg := prometheus.NewRegistry()
	job := &TransitAuditJob{Transfers: lister, After: 24 * time.Hour, Metrics: jobmetrics.NewMetrics(reg)}

	task, err := NewTransitAuditTask(shipped)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, lister.after)

	families, err := reg.Gather()
	require.NoError(t, err)
	var overdue float64
	for _, fam := range families {
		if fam.GetName() == "enterprise_transfers_overdue" {
			overdue = fam.GetMetric()[0].GetGauge().GetValue()
		}
	}
	require.Equal(t, 2.0, overdue)
}

func TestTransitAuditPropagatesListError(t *testing.T) {
	job := &TransitAuditJob{Transfers: &fakeLister{err: errors.New("db gone")}}
	task, err := NewTransitAuditTask(time.Now())
	require.NoError(t, err)
	require.ErrorContains(t, job.Handle(context.Background(), task), "db gone")

	var empty *TransitAuditJob
	require.Error(t, empty.Handle(context.Background(), task))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthEndpoint(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.MountRoutes(r)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rr
	}

	rr := serve(NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":3,"active":0,"retry":1}`, rr.Body.String())

	rr = serve(NewHandler(nil, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0}`, rr.Body.String())
}
