package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/history"
	"github.com/odyssey-erp/enterprise-stock/internal/ledger"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

const aggregate = "request"

// LocationChecker rejects unknown or inactive locations.
type LocationChecker interface {
	EnsureActive(ctx context.Context, id int64) error
}

// LedgerHook runs after movements are committed.
type LedgerHook interface {
	Committed(ctx context.Context, movements []ledger.Movement)
}

// Notifier delivers transition notifications to the requester.
type Notifier interface {
	NotifyTransition(ctx context.Context, evt shared.TransitionEvent) error
}

// TransitionObserver counts workflow outcomes.
type TransitionObserver interface {
	ObserveTransition(aggregate, operation, outcome string)
}

// Config groups service settings.
type Config struct {
	// DefaultSourceLocationID services deliveries of requests without a source location.
	DefaultSourceLocationID int64
}

// Deps groups optional collaborators.
type Deps struct {
	Locations LocationChecker
	Ledger    LedgerHook
	Notifier  Notifier
	Observer  TransitionObserver
	Logger    *slog.Logger
}

// Service coordinates the material request workflow.
type Service struct {
	repo      RepositoryPort
	history   history.Reader
	gate      authz.Gate
	cfg       Config
	locations LocationChecker
	ledger    LedgerHook
	notifier  Notifier
	observer  TransitionObserver
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, reader history.Reader, gate authz.Gate, cfg Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		history:   reader,
		gate:      gate,
		cfg:       cfg,
		locations: deps.Locations,
		ledger:    deps.Ledger,
		notifier:  deps.Notifier,
		observer:  deps.Observer,
		validate:  validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a DRAFT request owned by actor.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Request, error) {
	req, err := s.create(ctx, actor, input)
	s.finish(ctx, actor, "create", req, "", nil, err)
	return req, err
}

func (s *Service) create(ctx context.Context, actor shared.Actor, input CreateInput) (Request, error) {
	if err := authz.Require(ctx, s.gate, actor, shared.PermRequestCreate); err != nil {
		return Request{}, err
	}
	if err := s.validate.Struct(input); err != nil {
		return Request{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	if input.Priority == "" {
		input.Priority = PriorityNormal
	}
	if !input.Priority.Valid() {
		return Request{}, shared.Invalid("unknown priority %q", input.Priority)
	}
	for i, it := range input.Items {
		if err := validateItemInput(it); err != nil {
			return Request{}, fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	if input.SourceLocationID != nil && s.locations != nil {
		if err := s.locations.EnsureActive(ctx, *input.SourceLocationID); err != nil {
			return Request{}, err
		}
	}

	now := s.now()
	req := Request{
		ContractID:            input.ContractID,
		WorkFrontID:           input.WorkFrontID,
		ActivityID:            input.ActivityID,
		RequesterID:           actor.ID,
		Status:                StatusDraft,
		Priority:              input.Priority,
		SourceLocationID:      input.SourceLocationID,
		DestinationLocationID: input.DestinationLocationID,
		NeededDate:            input.NeededDate,
		Notes:                 strings.TrimSpace(input.Notes),
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
		Items:                 make([]Item, 0, len(input.Items)),
	}
	for i, it := range input.Items {
		req.Items = append(req.Items, Item{
			LineNo:       i + 1,
			MaterialID:   it.MaterialID,
			RequestedQty: it.RequestedQty,
			UnitPrice:    it.UnitPrice,
			Notes:        strings.TrimSpace(it.Notes),
		})
	}
	req.recomputeTotals()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextCode(ctx, now.Year())
		if err != nil {
			return err
		}
		req.Code = code
		if err := tx.InsertRequest(ctx, &req); err != nil {
			return err
		}
		return tx.History().Append(ctx, history.Entry{
			ParentType: history.ParentRequest,
			ParentID:   req.ID,
			ToStatus:   string(StatusDraft),
			ActorID:    actor.ID,
			At:         now,
		})
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// AddItem appends an item to a DRAFT request.
func (s *Service) AddItem(ctx context.Context, actor shared.Actor, id int64, input ItemInput, expectedVersion *int64) (Request, error) {
	if err := s.validate.Struct(input); err != nil {
		return Request{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	if err := validateItemInput(input); err != nil {
		return Request{}, err
	}
	return s.editItems(ctx, actor, id, expectedVersion, func(ctx context.Context, tx TxRepository, req *Request) error {
		next := 1
		for _, it := range req.Items {
			if it.LineNo >= next {
				next = it.LineNo + 1
			}
		}
		item := Item{
			RequestID:    req.ID,
			LineNo:       next,
			MaterialID:   input.MaterialID,
			RequestedQty: input.RequestedQty,
			UnitPrice:    input.UnitPrice,
			Notes:        strings.TrimSpace(input.Notes),
		}
		if err := tx.InsertItem(ctx, &item); err != nil {
			return err
		}
		req.Items = append(req.Items, item)
		return nil
	})
}

// UpdateItem edits a DRAFT item.
func (s *Service) UpdateItem(ctx context.Context, actor shared.Actor, id, itemID int64, input ItemUpdate) (Request, error) {
	if err := s.validate.Struct(input); err != nil {
		return Request{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	return s.editItems(ctx, actor, id, input.ExpectedVersion, func(ctx context.Context, tx TxRepository, req *Request) error {
		item, ok := req.item(itemID)
		if !ok {
			return fmt.Errorf("item %d: %w", itemID, shared.ErrNotFound)
		}
		if input.RequestedQty != nil {
			if !input.RequestedQty.IsPositive() {
				return shared.Invalid("item %d: requested quantity must be positive", itemID)
			}
			item.RequestedQty = *input.RequestedQty
		}
		if input.UnitPrice != nil {
			if input.UnitPrice.IsNegative() {
				return shared.Invalid("item %d: unit price must not be negative", itemID)
			}
			item.UnitPrice = *input.UnitPrice
		}
		if input.Notes != nil {
			item.Notes = strings.TrimSpace(*input.Notes)
		}
		return tx.UpdateItem(ctx, *item)
	})
}

// RemoveItem deletes a DRAFT item.
func (s *Service) RemoveItem(ctx context.Context, actor shared.Actor, id, itemID int64, expectedVersion *int64) (Request, error) {
	return s.editItems(ctx, actor, id, expectedVersion, func(ctx context.Context, tx TxRepository, req *Request) error {
		if _, ok := req.item(itemID); !ok {
			return fmt.Errorf("item %d: %w", itemID, shared.ErrNotFound)
		}
		if err := tx.DeleteItem(ctx, req.ID, itemID); err != nil {
			return err
		}
		kept := req.Items[:0]
		for _, it := range req.Items {
			if it.ID != itemID {
				kept = append(kept, it)
			}
		}
		req.Items = kept
		return nil
	})
}

// Submit moves DRAFT to SUBMITTED. A request without items fails with ErrEmptyRequest.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, id int64, input VersionInput) (Request, error) {
	return s.transition(ctx, actor, id, OpSubmit, input.ExpectedVersion, func(_ context.Context, _ TxRepository, req *Request, _ time.Time) (effect, error) {
		if len(req.Items) == 0 {
			return effect{}, fmt.Errorf("request %s: %w", req.Code, shared.ErrEmptyRequest)
		}
		return effect{}, nil
	})
}

// Approve moves SUBMITTED to APPROVED. Items not listed are approved with
// quantity 0, which is an implicit partial rejection.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64, input QuantitiesInput) (Request, error) {
	if err := s.validate.Struct(input); err != nil {
		return Request{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	return s.transition(ctx, actor, id, OpApprove, input.ExpectedVersion, func(ctx context.Context, _ TxRepository, req *Request, now time.Time) (effect, error) {
		if len(req.Items) == 0 {
			return effect{}, fmt.Errorf("request %s: %w", req.Code, shared.ErrEmptyRequest)
		}
		qty, err := shared.QuantityMap(input.Items, func(itemID int64) bool { _, ok := req.item(itemID); return ok })
		if err != nil {
			return effect{}, err
		}
		for i := range req.Items {
			it := &req.Items[i]
			approved := qty[it.ID]
			if approved.GreaterThan(it.RequestedQty) {
				return effect{}, &shared.QuantityError{ItemID: it.ID, Requested: approved, Limit: it.RequestedQty, Kind: shared.ErrQuantityExceedsRequested}
			}
			it.ApprovedQty = approved
		}
		if err := authz.CheckCeiling(ctx, s.gate, actor, req.approvedValue()); err != nil {
			return effect{}, err
		}
		req.ApproverID = &actor.ID
		req.ApprovedAt = &now
		return effect{items: true, notify: true}, nil
	})
}

// Reject moves SUBMITTED to REJECTED. A non-empty reason is required.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, input ReasonInput) (Request, error) {
	reason := strings.TrimSpace(input.Reason)
	return s.transition(ctx, actor, id, OpReject, input.ExpectedVersion, func(_ context.Context, _ TxRepository, req *Request, now time.Time) (effect, error) {
		if reason == "" {
			return effect{}, shared.ErrReasonRequired
		}
		req.RejectionReason = reason
		req.ApproverID = &actor.ID
		req.ApprovedAt = &now
		return effect{reason: reason, notify: true}, nil
	})
}

// StartSeparation marks that picking has begun. It has no ledger effect.
func (s *Service) StartSeparation(ctx context.Context, actor shared.Actor, id int64, input VersionInput) (Request, error) {
	return s.transition(ctx, actor, id, OpStartSeparation, input.ExpectedVersion, func(_ context.Context, _ TxRepository, req *Request, _ time.Time) (effect, error) {
		req.SeparatorID = &actor.ID
		return effect{}, nil
	})
}

// CompleteSeparation records separated quantities and keeps the request in
// SEPARATING. Unlisted items keep their previous quantity; quantities never decrease.
func (s *Service) CompleteSeparation(ctx context.Context, actor shared.Actor, id int64, input QuantitiesInput) (Request, error) {
	if err := s.validate.Struct(input); err != nil {
		return Request{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	return s.transition(ctx, actor, id, OpCompleteSeparation, input.ExpectedVersion, func(_ context.Context, _ TxRepository, req *Request, now time.Time) (effect, error) {
		qty, err := shared.QuantityMap(input.Items, func(itemID int64) bool { _, ok := req.item(itemID); return ok })
		if err != nil {
			return effect{}, err
		}
		for i := range req.Items {
			it := &req.Items[i]
			separated, listed := qty[it.ID]
			if !listed {
				continue
			}
			if separated.GreaterThan(it.ApprovedQty) {
				return effect{}, &shared.QuantityError{ItemID: it.ID, Requested: separated, Limit: it.ApprovedQty, Kind: shared.ErrQuantityExceedsApproved}
			}
			if separated.LessThan(it.SeparatedQty) {
				return effect{}, shared.Invalid("item %d: separated quantity cannot decrease from %s to %s", it.ID, it.SeparatedQty, separated)
			}
			it.SeparatedQty = separated
		}
		req.SeparatorID = &actor.ID
		req.SeparatedAt = &now
		return effect{items: true}, nil
	})
}

// Deliver moves SEPARATING to DELIVERED and debits the servicing location by
// the separated quantity, or the approved quantity when separation was never
// recorded. Either every item is debited or none is.
func (s *Service) Deliver(ctx context.Context, actor shared.Actor, id int64, input VersionInput) (Request, error) {
	return s.transition(ctx, actor, id, OpDeliver, input.ExpectedVersion, func(ctx context.Context, _ TxRepository, req *Request, now time.Time) (effect, error) {
		locationID := s.cfg.DefaultSourceLocationID
		if req.SourceLocationID != nil {
			locationID = *req.SourceLocationID
		}
		if locationID <= 0 {
			return effect{}, shared.Invalid("request %s has no source location", req.Code)
		}
		if s.locations != nil {
			if err := s.locations.EnsureActive(ctx, locationID); err != nil {
				return effect{}, err
			}
		}
		group := &ledger.Group{
			Kind:    ledger.KindRequestDelivery,
			RefType: aggregate,
			RefID:   req.ID,
			RefCode: req.Code,
			ActorID: actor.ID,
		}
		collapsed := req.SeparatedAt == nil
		for i := range req.Items {
			it := &req.Items[i]
			if collapsed {
				it.SeparatedQty = it.ApprovedQty
			}
			it.DeliveredQty = it.SeparatedQty
			group.Lines = append(group.Lines, ledger.Line{
				LocationID: locationID,
				MaterialID: it.MaterialID,
				ItemID:     it.ID,
				Delta:      it.DeliveredQty.Neg(),
			})
		}
		req.DeliveredBy = &actor.ID
		req.DeliveredAt = &now
		return effect{items: true, ledger: group, notify: true}, nil
	})
}

// Cancel moves DRAFT or SUBMITTED to CANCELED. Only the requester may cancel.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, input ReasonInput) (Request, error) {
	reason := strings.TrimSpace(input.Reason)
	return s.transition(ctx, actor, id, OpCancel, input.ExpectedVersion, func(_ context.Context, _ TxRepository, req *Request, _ time.Time) (effect, error) {
		if actor.ID != req.RequesterID {
			return effect{}, fmt.Errorf("%w: only the requester may cancel %s", shared.ErrUnauthorized, req.Code)
		}
		return effect{reason: reason, notify: true}, nil
	})
}

// Get returns a request with its items.
func (s *Service) Get(ctx context.Context, id int64) (Request, error) {
	return s.repo.Get(ctx, id)
}

// Detail is a request with its history.
type Detail struct {
	Request
	History []history.Entry `json:"history"`
}

// GetDetail loads the request and its history concurrently.
func (s *Service) GetDetail(ctx context.Context, id int64) (Detail, error) {
	var detail Detail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		req, err := s.repo.Get(gctx, id)
		detail.Request = req
		return err
	})
	g.Go(func() error {
		entries, err := s.History(gctx, id)
		detail.History = entries
		return err
	})
	if err := g.Wait(); err != nil {
		return Detail{}, err
	}
	return detail, nil
}

// History lists the transitions of a request in order.
func (s *Service) History(ctx context.Context, id int64) ([]history.Entry, error) {
	entries, err := s.history.List(ctx, history.ParentRequest, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}

// List returns a page of requests.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Request, shared.Pagination, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 || filters.Limit > 200 {
		filters.Limit = 20
	}
	filters.Search = strings.TrimSpace(filters.Search)
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// ListPendingApproval returns SUBMITTED requests.
func (s *Service) ListPendingApproval(ctx context.Context, page, limit int) ([]Request, shared.Pagination, error) {
	return s.List(ctx, ListFilters{Status: StatusSubmitted, Page: page, Limit: limit})
}

// effect is what an operation asks the transition runner to persist.
type effect struct {
	reason string
	items  bool
	ledger *ledger.Group
	notify bool
}

type applyFunc func(ctx context.Context, tx TxRepository, req *Request, now time.Time) (effect, error)

// transition runs one state-machine operation as a single atomic unit: re-read,
// version check, transition check, authorization, validation, ledger group,
// guarded header write and history append.
func (s *Service) transition(ctx context.Context, actor shared.Actor, id int64, op Operation, expectedVersion *int64, apply applyFunc) (Request, error) {
	r, ok := transitions[op]
	if !ok {
		return Request{}, fmt.Errorf("requests: unknown operation %q", op)
	}
	var (
		out       Request
		from      Status
		fx        effect
		movements []ledger.Movement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != req.Version {
			return fmt.Errorf("request %s: version %d, expected %d: %w", req.Code, req.Version, *expectedVersion, shared.ErrConcurrentModification)
		}
		if !r.allows(req.Status) {
			return &shared.TransitionError{Aggregate: aggregate, ID: req.ID, From: string(req.Status), Operation: string(op)}
		}
		if r.permission != "" {
			if err := authz.Require(ctx, s.gate, actor, r.permission); err != nil {
				return err
			}
		}
		from = req.Status
		now := s.now()
		fx, err = apply(ctx, tx, &req, now)
		if err != nil {
			return err
		}
		if fx.ledger != nil {
			movements, err = ledger.Apply(ctx, tx.Ledger(), *fx.ledger, now)
			if err != nil {
				return err
			}
		}
		if fx.items {
			for _, it := range req.Items {
				if err := tx.UpdateItem(ctx, it); err != nil {
					return err
				}
			}
		}
		req.Status = r.to
		req.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, req, req.Version); err != nil {
			return err
		}
		req.Version++
		if err := tx.History().Append(ctx, history.Entry{
			ParentType: history.ParentRequest,
			ParentID:   req.ID,
			FromStatus: string(from),
			ToStatus:   string(r.to),
			ActorID:    actor.ID,
			Reason:     fx.reason,
			At:         now,
		}); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		s.finish(ctx, actor, string(op), Request{ID: id}, "", nil, err)
		return Request{}, err
	}
	if s.ledger != nil {
		s.ledger.Committed(ctx, movements)
	}
	var notify *effect
	if fx.notify {
		notify = &fx
	}
	s.finish(ctx, actor, string(op), out, from, notify, nil)
	return out, nil
}

// editItems runs a DRAFT-only item edit guarded by the version token.
func (s *Service) editItems(ctx context.Context, actor shared.Actor, id int64, expectedVersion *int64, edit func(context.Context, TxRepository, *Request) error) (Request, error) {
	if err := authz.Require(ctx, s.gate, actor, shared.PermRequestCreate); err != nil {
		return Request{}, err
	}
	var out Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != req.Version {
			return fmt.Errorf("request %s: version %d, expected %d: %w", req.Code, req.Version, *expectedVersion, shared.ErrConcurrentModification)
		}
		if !req.Status.CanEditItems() {
			return fmt.Errorf("%w: request %s is %s", shared.ErrInvalidState, req.Code, req.Status)
		}
		if req.RequesterID != actor.ID {
			return fmt.Errorf("%w: only the requester may edit %s", shared.ErrUnauthorized, req.Code)
		}
		if err := edit(ctx, tx, &req); err != nil {
			return err
		}
		req.recomputeTotals()
		req.UpdatedAt = s.now()
		if err := tx.UpdateRequest(ctx, req, req.Version); err != nil {
			return err
		}
		req.Version++
		out = req
		return nil
	})
	if err != nil {
		s.logger.Debug("request item edit rejected", slog.Int64("request_id", id), slog.Any("error", err))
		return Request{}, err
	}
	return out, nil
}

// finish records the outcome of an operation after the transaction ended.
func (s *Service) finish(ctx context.Context, actor shared.Actor, op string, req Request, from Status, fx *effect, err error) {
	if err != nil {
		if s.observer != nil {
			s.observer.ObserveTransition(aggregate, op, "error")
		}
		s.logger.Debug("request operation rejected",
			slog.String("operation", op),
			slog.Int64("request_id", req.ID),
			slog.Int64("actor_id", actor.ID),
			slog.Any("error", err))
		return
	}
	if s.observer != nil {
		s.observer.ObserveTransition(aggregate, op, "success")
	}
	s.logger.Info("request transition committed",
		slog.String("operation", op),
		slog.Int64("request_id", req.ID),
		slog.String("code", req.Code),
		slog.String("from", string(from)),
		slog.String("to", string(req.Status)),
		slog.Int64("actor_id", actor.ID))
	if fx == nil || s.notifier == nil {
		return
	}
	evt := shared.TransitionEvent{
		Aggregate:   aggregate,
		ID:          req.ID,
		Code:        req.Code,
		Operation:   op,
		From:        string(from),
		To:          string(req.Status),
		ActorID:     actor.ID,
		RecipientID: req.RequesterID,
		Reason:      fx.reason,
		At:          req.UpdatedAt,
	}
	if err := s.notifier.NotifyTransition(ctx, evt); err != nil {
		s.logger.Warn("enqueue request notification", slog.String("code", req.Code), slog.Any("error", err))
	}
}

func validateItemInput(it ItemInput) error {
	if it.MaterialID <= 0 {
		return shared.Invalid("material required")
	}
	if !it.RequestedQty.IsPositive() {
		return shared.Invalid("material %d: requested quantity must be positive", it.MaterialID)
	}
	if it.UnitPrice.IsNegative() {
		return shared.Invalid("material %d: unit price must not be negative", it.MaterialID)
	}
	return nil
}

// IsRetryable reports whether the caller may re-fetch and retry after err.
func IsRetryable(err error) bool {
	return errors.Is(err, shared.ErrConcurrentModification)
}
