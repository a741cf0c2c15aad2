package requests

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/history"
	"github.com/odyssey-erp/enterprise-stock/internal/history/historytest"
	"github.com/odyssey-erp/enterprise-stock/internal/ledger"
	"github.com/odyssey-erp/enterprise-stock/internal/ledger/ledgertest"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type memoryRepo struct {
	txMu     sync.Mutex
	mu       sync.Mutex
	requests map[int64]Request
	nextID   int64
	nextItem int64
	seq      int
	ledger   *ledgertest.Store
	log      *historytest.Log
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{requests: make(map[int64]Request), ledger: ledgertest.New(), log: historytest.New()}
}

func cloneRequest(req Request) Request {
	req.Items = append([]Item(nil), req.Items...)
	return req
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.mu.Lock()
	saved := make(map[int64]Request, len(r.requests))
	for k, v := range r.requests {
		saved[k] = cloneRequest(v)
	}
	r.mu.Unlock()
	restoreLedger := r.ledger.Snapshot()
	restoreLog := r.log.Snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.mu.Lock()
		r.requests = saved
		r.mu.Unlock()
		restoreLedger()
		restoreLog()
		return err
	}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, fmt.Errorf("request %d: %w", id, shared.ErrNotFound)
	}
	return cloneRequest(req), nil
}

func (r *memoryRepo) List(_ context.Context, f ListFilters) ([]Request, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Request
	for id := int64(1); id <= r.nextID; id++ {
		req, ok := r.requests[id]
		if !ok || (f.Status != "" && req.Status != f.Status) {
			continue
		}
		out = append(out, cloneRequest(req))
	}
	return out, len(out), nil
}

type memoryTx struct{ repo *memoryRepo }

func (t *memoryTx) GetRequest(ctx context.Context, id int64) (Request, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) NextCode(_ context.Context, year int) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("RM-%04d-%04d", year, t.repo.seq), nil
}

func (t *memoryTx) InsertRequest(_ context.Context, req *Request) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.nextID++
	req.ID = t.repo.nextID
	for i := range req.Items {
		t.repo.nextItem++
		req.Items[i].ID = t.repo.nextItem
		req.Items[i].RequestID = req.ID
	}
	t.repo.requests[req.ID] = cloneRequest(*req)
	return nil
}

func (t *memoryTx) InsertItem(_ context.Context, item *Item) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.nextItem++
	item.ID = t.repo.nextItem
	req := t.repo.requests[item.RequestID]
	req.Items = append(req.Items, *item)
	t.repo.requests[item.RequestID] = req
	return nil
}

func (t *memoryTx) UpdateItem(_ context.Context, item Item) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	req := t.repo.requests[item.RequestID]
	for i := range req.Items {
		if req.Items[i].ID == item.ID {
			req.Items[i] = item
		}
	}
	return nil
}

func (t *memoryTx) DeleteItem(_ context.Context, requestID, itemID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	req := t.repo.requests[requestID]
	kept := make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	req.Items = kept
	t.repo.requests[requestID] = req
	return nil
}

func (t *memoryTx) UpdateRequest(_ context.Context, req Request, expectedVersion int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	stored, ok := t.repo.requests[req.ID]
	if !ok || stored.Version != expectedVersion {
		return fmt.Errorf("request %d: %w", req.ID, shared.ErrConcurrentModification)
	}
	req.Version = expectedVersion + 1
	req.Items = stored.Items
	t.repo.requests[req.ID] = req
	return nil
}

func (t *memoryTx) Ledger() ledger.TxStore   { return t.repo.ledger }
func (t *memoryTx) History() history.Writer { return t.repo.log }

type recordingNotifier struct {
	mu     sync.Mutex
	events []shared.TransitionEvent
}

func (n *recordingNotifier) NotifyTransition(_ context.Context, evt shared.TransitionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveTransition(_, operation, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, operation+":"+outcome)
}

const (
	mainStore  int64 = 10
	cement     int64 = 100
	rebar      int64 = 200
	engineerID int64 = 7
)

var (
	engineer   = shared.Actor{ID: engineerID, Role: "engineer"}
	supervisor = shared.Actor{ID: 2, Role: "supervisor"}
	storekeep  = shared.Actor{ID: 3, Role: "warehouse"}
)

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	notifier *recordingNotifier
	observer *recordingObserver
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gate := authz.NewStaticGate(map[string][]string{
		"engineer":   {shared.PermRequestCreate, shared.PermRequestView},
		"supervisor": {shared.PermRequestApprove, shared.PermRequestView},
		"warehouse":  {shared.PermRequestSeparate, shared.PermRequestDeliver, shared.PermRequestView},
	}, map[string]decimal.Decimal{"supervisor": d(10000)})
	repo := newMemoryRepo()
	notifier := &recordingNotifier{}
	observer := &recordingObserver{}
	svc := NewService(repo, repo.log, gate, Config{DefaultSourceLocationID: mainStore}, Deps{
		Notifier: notifier,
		Observer: observer,
	})
	return fixture{svc: svc, repo: repo, notifier: notifier, observer: observer}
}

func (f fixture) draft(t *testing.T, items ...ItemInput) Request {
	t.Helper()
	req, err := f.svc.Create(context.Background(), engineer, CreateInput{ContractID: 1, Items: items})
	require.NoError(t, err)
	return req
}

func (f fixture) approved(t *testing.T, qty ...int64) Request {
	t.Helper()
	ctx := context.Background()
	items := make([]ItemInput, len(qty))
	for i, q := range qty {
		items[i] = ItemInput{MaterialID: cement + int64(i)*100, RequestedQty: d(q), UnitPrice: d(10)}
	}
	req := f.draft(t, items...)
	_, err := f.svc.Submit(ctx, engineer, req.ID, VersionInput{})
	require.NoError(t, err)
	approve := QuantitiesInput{}
	for i, it := range req.Items {
		approve.Items = append(approve.Items, shared.ItemQty{ItemID: it.ID, Qty: d(qty[i])})
	}
	req, err = f.svc.Approve(ctx, supervisor, req.ID, approve)
	require.NoError(t, err)
	return req
}

func TestPartialApprovalThroughDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repo.ledger.Seed(mainStore, cement, d(50))

	req := f.draft(t,
		ItemInput{MaterialID: cement, RequestedQty: d(20), UnitPrice: d(10)},
		ItemInput{MaterialID: rebar, RequestedQty: d(5), UnitPrice: d(40)},
	)
	require.Equal(t, StatusDraft, req.Status)
	require.Equal(t, "RM-", req.Code[:3])
	require.True(t, req.TotalValue.Equal(d(400)))

	req, err := f.svc.Submit(ctx, engineer, req.ID, VersionInput{})
	require.NoError(t, err)

	cementItem, rebarItem := req.Items[0].ID, req.Items[1].ID
	req, err = f.svc.Approve(ctx, supervisor, req.ID, QuantitiesInput{Items: []shared.ItemQty{{ItemID: cementItem, Qty: d(15)}}})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, req.Status)
	require.True(t, req.Items[1].ApprovedQty.IsZero(), "omitted items are approved with zero")

	_, err = f.svc.StartSeparation(ctx, storekeep, req.ID, VersionInput{})
	require.NoError(t, err)
	req, err = f.svc.CompleteSeparation(ctx, storekeep, req.ID, QuantitiesInput{Items: []shared.ItemQty{{ItemID: cementItem, Qty: d(15)}}})
	require.NoError(t, err)
	require.Equal(t, StatusSeparating, req.Status)

	req, err = f.svc.Deliver(ctx, storekeep, req.ID, VersionInput{})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, req.Status)
	require.True(t, req.Items[0].DeliveredQty.Equal(d(15)))
	require.True(t, req.Items[1].DeliveredQty.IsZero())
	require.Equal(t, rebarItem, req.Items[1].ID)

	require.True(t, f.repo.ledger.Quantity(mainStore, cement).Equal(d(35)))
	movements := f.repo.ledger.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, ledger.KindRequestDelivery, movements[0].Kind)
	require.Equal(t, req.Code, movements[0].RefCode)

	entries, err := f.svc.History(ctx, req.ID)
	require.NoError(t, err)
	var path []string
	for _, e := range entries {
		path = append(path, e.FromStatus+">"+e.ToStatus)
	}
	require.Equal(t, []string{
		">DRAFT",
		"DRAFT>SUBMITTED",
		"SUBMITTED>APPROVED",
		"APPROVED>SEPARATING",
		"SEPARATING>SEPARATING",
		"SEPARATING>DELIVERED",
	}, path)

	var notified []string
	for _, evt := range f.notifier.events {
		require.Equal(t, engineerID, evt.RecipientID)
		notified = append(notified, evt.Operation)
	}
	require.Equal(t, []string{"approve", "deliver"}, notified)
}

func TestDeliverInsufficientStockLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repo.ledger.Seed(mainStore, cement, d(5))

	req := f.approved(t, 10)
	_, err := f.svc.StartSeparation(ctx, storekeep, req.ID, VersionInput{})
	require.NoError(t, err)
	before, err := f.svc.History(ctx, req.ID)
	require.NoError(t, err)

	_, err = f.svc.Deliver(ctx, storekeep, req.ID, VersionInput{})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, req.Items[0].ID, stockErr.ItemID)
	require.True(t, stockErr.Available.Equal(d(5)))
	require.True(t, stockErr.Requested.Equal(d(10)))

	got, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSeparating, got.Status)
	require.True(t, got.Items[0].DeliveredQty.IsZero())
	require.True(t, f.repo.ledger.Quantity(mainStore, cement).Equal(d(5)))
	require.Empty(t, f.repo.ledger.Movements())

	after, err := f.svc.History(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	require.Contains(t, f.observer.outcomes, "deliver:error")
}

func TestDeliverWithoutSeparationUsesApproved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repo.ledger.Seed(mainStore, cement, d(30))

	req := f.approved(t, 12)
	_, err := f.svc.StartSeparation(ctx, storekeep, req.ID, VersionInput{})
	require.NoError(t, err)
	req, err = f.svc.Deliver(ctx, storekeep, req.ID, VersionInput{})
	require.NoError(t, err)
	require.True(t, req.Items[0].SeparatedQty.Equal(d(12)))
	require.True(t, req.Items[0].DeliveredQty.Equal(d(12)))
	require.True(t, f.repo.ledger.Quantity(mainStore, cement).Equal(d(18)))
}

func TestTerminalStatesRejectEveryOperation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.draft(t, ItemInput{MaterialID: cement, RequestedQty: d(1), UnitPrice: d(1)})
	_, err := f.svc.Cancel(ctx, engineer, req.ID, ReasonInput{Reason: "duplicate"})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, engineer, req.ID, ReasonInput{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.Submit(ctx, engineer, req.ID, VersionInput{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.Approve(ctx, supervisor, req.ID, QuantitiesInput{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.Deliver(ctx, storekeep, req.ID, VersionInput{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	var transitionErr *shared.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, string(StatusCanceled), transitionErr.From)
}

func TestSubmitEmptyRequest(t *testing.T) {
	f := newFixture(t)
	req := f.draft(t)
	_, err := f.svc.Submit(context.Background(), engineer, req.ID, VersionInput{})
	require.ErrorIs(t, err, shared.ErrEmptyRequest)
}

func TestApproveRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.draft(t, ItemInput{MaterialID: cement, RequestedQty: d(20), UnitPrice: d(1000)})
	_, err := f.svc.Submit(ctx, engineer, req.ID, VersionInput{})
	require.NoError(t, err)
	itemID := req.Items[0].ID

	_, err = f.svc.Approve(ctx, storekeep, req.ID, QuantitiesInput{Items: []shared.ItemQty{{ItemID: itemID, Qty: d(1)}}})
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = f.svc.Approve(ctx, supervisor, req.ID, QuantitiesInput{Items: []shared.ItemQty{{ItemID: itemID, Qty: d(21)}}})
	var qtyErr *shared.QuantityError
	require.ErrorAs(t, err, &qtyErr)
	require.ErrorIs(t, err, shared.ErrQuantityExceedsRequested)
	require.Equal(t, itemID, qtyErr.ItemID)

	_, err = f.svc.Approve(ctx, supervisor, req.ID, QuantitiesInput{Items: []shared.ItemQty{{ItemID: 999, Qty: d(1)}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	// 11 x 1000 is above the supervisor ceiling of 10000
	_, err = f.svc.Approve(ctx, supervisor, req.ID, QuantitiesInput{Items: []shared.ItemQty{{ItemID: itemID, Qty: d(11)}}})
	require.ErrorIs(t, err, shared.ErrApprovalLimitExceeded)

	got, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, got.Status)
	require.True(t, got.Items[0].ApprovedQty.IsZero())

	got, err = f.svc.Approve(ctx, supervisor, req.ID, QuantitiesInput{Items: []shared.ItemQty{{ItemID: itemID, Qty: d(10)}}})
	require.NoError(t, err)
	require.Equal(t, supervisor.ID, *got.ApproverID)
}

func TestRejectRequiresReason(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.draft(t, ItemInput{MaterialID: cement, RequestedQty: d(2), UnitPrice: d(1)})
	_, err := f.svc.Submit(ctx, engineer, req.ID, VersionInput{})
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, supervisor, req.ID, ReasonInput{Reason: "   "})
	require.ErrorIs(t, err, shared.ErrReasonRequired)

	got, err := f.svc.Reject(ctx, supervisor, req.ID, ReasonInput{Reason: "over budget"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
	require.Equal(t, "over budget", got.RejectionReason)

	entries, err := f.svc.History(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "over budget", entries[len(entries)-1].Reason)
}

func TestCancelOnlyByRequester(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.draft(t, ItemInput{MaterialID: cement, RequestedQty: d(2), UnitPrice: d(1)})
	_, err := f.svc.Submit(ctx, engineer, req.ID, VersionInput{})
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, supervisor, req.ID, ReasonInput{})
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	got, err := f.svc.Cancel(ctx, engineer, req.ID, ReasonInput{})
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, got.Status)

	approvedReq := f.approved(t, 3)
	_, err = f.svc.Cancel(ctx, engineer, approvedReq.ID, ReasonInput{})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestSeparationQuantitiesOnlyGrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.approved(t, 20)
	itemID := req.Items[0].ID
	_, err := f.svc.StartSeparation(ctx, storekeep, req.ID, VersionInput{})
	require.NoError(t, err)

	_, err = f.svc.CompleteSeparation(ctx, storekeep, req.ID, QuantitiesInput{Items: []shared.ItemQty{{ItemID: itemID, Qty: d(8)}}})
	require.NoError(t, err)

	_, err = f.svc.CompleteSeparation(ctx, storekeep, req.ID, QuantitiesInput{Items: []shared.ItemQty{{ItemID: itemID, Qty: d(5)}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CompleteSeparation(ctx, storekeep, req.ID, QuantitiesInput{Items: []shared.ItemQty{{ItemID: itemID, Qty: d(21)}}})
	require.ErrorIs(t, err, shared.ErrQuantityExceedsApproved)

	got, err := f.svc.CompleteSeparation(ctx, storekeep, req.ID, QuantitiesInput{})
	require.NoError(t, err)
	require.True(t, got.Items[0].SeparatedQty.Equal(d(8)), "unlisted items keep their quantity")
}

func TestItemEditsOnlyInDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.draft(t, ItemInput{MaterialID: cement, RequestedQty: d(2), UnitPrice: d(5)})

	req, err := f.svc.AddItem(ctx, engineer, req.ID, ItemInput{MaterialID: rebar, RequestedQty: d(3), UnitPrice: d(10)}, &req.Version)
	require.NoError(t, err)
	require.Len(t, req.Items, 2)
	require.Equal(t, 2, req.Items[1].LineNo)
	require.True(t, req.TotalValue.Equal(d(40)))

	qty := d(4)
	req, err = f.svc.UpdateItem(ctx, engineer, req.ID, req.Items[0].ID, ItemUpdate{RequestedQty: &qty})
	require.NoError(t, err)
	require.True(t, req.TotalValue.Equal(d(50)))

	req, err = f.svc.RemoveItem(ctx, engineer, req.ID, req.Items[1].ID, nil)
	require.NoError(t, err)
	require.Len(t, req.Items, 1)

	_, err = f.svc.AddItem(ctx, supervisor, req.ID, ItemInput{MaterialID: rebar, RequestedQty: d(1)}, nil)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = f.svc.Submit(ctx, engineer, req.ID, VersionInput{})
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, engineer, req.ID, ItemInput{MaterialID: rebar, RequestedQty: d(1)}, nil)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestStaleVersionIsConcurrentModification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.draft(t, ItemInput{MaterialID: cement, RequestedQty: d(2), UnitPrice: d(5)})
	stale := req.Version

	_, err := f.svc.Submit(ctx, engineer, req.ID, VersionInput{ExpectedVersion: &stale})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, engineer, req.ID, ReasonInput{ExpectedVersion: &stale})
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
	require.True(t, IsRetryable(err))
}

func TestConcurrentApproveWithSameVersionCommitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.draft(t, ItemInput{MaterialID: cement, RequestedQty: d(4), UnitPrice: d(10)})
	req, err := f.svc.Submit(ctx, engineer, req.ID, VersionInput{})
	require.NoError(t, err)
	token := req.Version
	approve := QuantitiesInput{
		Items:           []shared.ItemQty{{ItemID: req.Items[0].ID, Qty: d(4)}},
		ExpectedVersion: &token,
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(ctx, supervisor, req.ID, approve)
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, shared.ErrConcurrentModification)
			failures++
		}
	}
	require.Equal(t, 1, failures)

	got, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, token+1, got.Version)

	entries, err := f.svc.History(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestConcurrentDeliveriesNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repo.ledger.Seed(mainStore, cement, d(15))

	var ids []int64
	for i := 0; i < 2; i++ {
		req := f.approved(t, 10)
		_, err := f.svc.StartSeparation(ctx, storekeep, req.ID, VersionInput{})
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = f.svc.Deliver(ctx, storekeep, id, VersionInput{})
		}(i, id)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, shared.ErrInsufficientStock)
			failures++
		}
	}
	require.Equal(t, 1, failures)
	require.True(t, f.repo.ledger.Quantity(mainStore, cement).Equal(d(5)))
}

func TestGetDetailIncludesHistory(t *testing.T) {
	f := newFixture(t)
	req := f.draft(t, ItemInput{MaterialID: cement, RequestedQty: d(1), UnitPrice: d(1)})
	detail, err := f.svc.GetDetail(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, req.Code, detail.Code)
	require.Len(t, detail.History, 1)

	_, err = f.svc.GetDetail(context.Background(), 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
