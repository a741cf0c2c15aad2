package transfers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/history"
	"github.com/odyssey-erp/enterprise-stock/internal/ledger"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

const aggregate = "transfer"

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

// Deps groups optional collaborators.
type Deps struct {
	Locations LocationChecker
	Ledger    LedgerHook
	Notifier  Notifier
	Observer  TransitionObserver
	Logger    *slog.Logger
}

// Service coordinates the stock transfer workflow.
type Service struct {
	repo      RepositoryPort
	history   history.Reader
	gate      authz.Gate
	locations LocationChecker
	ledger    LedgerHook
	notifier  Notifier
	observer  TransitionObserver
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, reader history.Reader, gate authz.Gate, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		history:   reader,
		gate:      gate,
		locations: deps.Locations,
		ledger:    deps.Ledger,
		notifier:  deps.Notifier,
		observer:  deps.Observer,
		validate:  validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a DRAFT transfer between two distinct active locations.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Transfer, error) {
	tr, err := s.create(ctx, actor, input)
	s.finish(ctx, actor, "create", tr, "", false, "", err)
	return tr, err
}

func (s *Service) create(ctx context.Context, actor shared.Actor, input CreateInput) (Transfer, error) {
	if err := authz.Require(ctx, s.gate, actor, shared.PermTransferCreate); err != nil {
		return Transfer{}, err
	}
	if err := s.validate.Struct(input); err != nil {
		return Transfer{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	if input.OriginLocationID == input.DestinationLocationID {
		return Transfer{}, fmt.Errorf("location %d: %w", input.OriginLocationID, shared.ErrSameLocation)
	}
	for i, it := range input.Items {
		if !it.RequestedQty.IsPositive() {
			return Transfer{}, shared.Invalid("item %d: requested quantity must be positive", i+1)
		}
	}
	if s.locations != nil {
		if err := s.locations.EnsureActive(ctx, input.OriginLocationID); err != nil {
			return Transfer{}, fmt.Errorf("origin: %w", err)
		}
		if err := s.locations.EnsureActive(ctx, input.DestinationLocationID); err != nil {
			return Transfer{}, fmt.Errorf("destination: %w", err)
		}
	}

	now := s.now()
	tr := Transfer{
		OriginLocationID:      input.OriginLocationID,
		DestinationLocationID: input.DestinationLocationID,
		RequesterID:           actor.ID,
		Status:                StatusDraft,
		Notes:                 strings.TrimSpace(input.Notes),
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
		Items:                 make([]Item, 0, len(input.Items)),
	}
	for i, it := range input.Items {
		tr.Items = append(tr.Items, Item{
			LineNo:       i + 1,
			MaterialID:   it.MaterialID,
			RequestedQty: it.RequestedQty,
			Notes:        strings.TrimSpace(it.Notes),
		})
	}
	tr.recomputeTotals()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextCode(ctx, now.Year())
		if err != nil {
			return err
		}
		tr.Code = code
		if err := tx.InsertTransfer(ctx, &tr); err != nil {
			return err
		}
		return tx.History().Append(ctx, history.Entry{
			ParentType: history.ParentTransfer,
			ParentID:   tr.ID,
			ToStatus:   string(StatusDraft),
			ActorID:    actor.ID,
			At:         now,
		})
	})
	if err != nil {
		return Transfer{}, err
	}
	return tr, nil
}

// AddItem appends an item to a DRAFT transfer.
func (s *Service) AddItem(ctx context.Context, actor shared.Actor, id int64, input ItemInput, expectedVersion *int64) (Transfer, error) {
	if err := s.validate.Struct(input); err != nil {
		return Transfer{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	if !input.RequestedQty.IsPositive() {
		return Transfer{}, shared.Invalid("material %d: requested quantity must be positive", input.MaterialID)
	}
	return s.editItems(ctx, actor, id, expectedVersion, func(ctx context.Context, tx TxRepository, tr *Transfer) error {
		next := 1
		for _, it := range tr.Items {
			if it.LineNo >= next {
				next = it.LineNo + 1
			}
		}
		item := Item{
			TransferID:   tr.ID,
			LineNo:       next,
			MaterialID:   input.MaterialID,
			RequestedQty: input.RequestedQty,
			Notes:        strings.TrimSpace(input.Notes),
		}
		if err := tx.InsertItem(ctx, &item); err != nil {
			return err
		}
		tr.Items = append(tr.Items, item)
		return nil
	})
}

// RemoveItem deletes a DRAFT item.
func (s *Service) RemoveItem(ctx context.Context, actor shared.Actor, id, itemID int64, expectedVersion *int64) (Transfer, error) {
	return s.editItems(ctx, actor, id, expectedVersion, func(ctx context.Context, tx TxRepository, tr *Transfer) error {
		if !tr.knows(itemID) {
			return fmt.Errorf("item %d: %w", itemID, shared.ErrNotFound)
		}
		if err := tx.DeleteItem(ctx, tr.ID, itemID); err != nil {
			return err
		}
		kept := tr.Items[:0]
		for _, it := range tr.Items {
			if it.ID != itemID {
				kept = append(kept, it)
			}
		}
		tr.Items = kept
		return nil
	})
}

// Approve moves DRAFT to APPROVED.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, id int64, input VersionInput) (Transfer, error) {
	return s.transition(ctx, actor, id, OpApprove, input.ExpectedVersion, func(_ context.Context, tr *Transfer, now time.Time) (effect, error) {
		if len(tr.Items) == 0 {
			return effect{}, fmt.Errorf("transfer %s: %w", tr.Code, shared.ErrEmptyRequest)
		}
		tr.ApproverID = &actor.ID
		tr.ApprovedAt = &now
		return effect{}, nil
	})
}

// Reject moves DRAFT to REJECTED. A non-empty reason is required.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, id int64, input ReasonInput) (Transfer, error) {
	reason := strings.TrimSpace(input.Reason)
	return s.transition(ctx, actor, id, OpReject, input.ExpectedVersion, func(_ context.Context, tr *Transfer, now time.Time) (effect, error) {
		if reason == "" {
			return effect{}, shared.ErrReasonRequired
		}
		tr.RejectionReason = reason
		tr.ApproverID = &actor.ID
		tr.ApprovedAt = &now
		return effect{reason: reason}, nil
	})
}

// Ship moves APPROVED to SHIPPED and debits the origin by the shipped
// quantities. Unlisted items ship nothing. If any line cannot be covered
// nothing ships.
func (s *Service) Ship(ctx context.Context, actor shared.Actor, id int64, input QuantitiesInput) (Transfer, error) {
	if err := s.validate.Struct(input); err != nil {
		return Transfer{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	return s.transition(ctx, actor, id, OpShip, input.ExpectedVersion, func(_ context.Context, tr *Transfer, now time.Time) (effect, error) {
		qty, err := shared.QuantityMap(input.Items, tr.knows)
		if err != nil {
			return effect{}, err
		}
		group := &ledger.Group{
			Kind:    ledger.KindTransferOut,
			RefType: aggregate,
			RefID:   tr.ID,
			RefCode: tr.Code,
			ActorID: actor.ID,
		}
		shipped := decimal.Zero
		for i := range tr.Items {
			it := &tr.Items[i]
			q := qty[it.ID]
			if q.GreaterThan(it.RequestedQty) {
				return effect{}, &shared.QuantityError{ItemID: it.ID, Requested: q, Limit: it.RequestedQty, Kind: shared.ErrQuantityExceedsRequested}
			}
			it.ShippedQty = q
			shipped = shipped.Add(q)
			group.Lines = append(group.Lines, ledger.Line{
				LocationID: tr.OriginLocationID,
				MaterialID: it.MaterialID,
				ItemID:     it.ID,
				Delta:      q.Neg(),
			})
		}
		if !shipped.IsPositive() {
			return effect{}, shared.Invalid("transfer %s: nothing to ship", tr.Code)
		}
		tr.ShipperID = &actor.ID
		tr.ShippedAt = &now
		return effect{reason: strings.TrimSpace(input.Notes), items: true, ledger: group}, nil
	})
}

// Receive moves SHIPPED to RECEIVED and credits the destination by the
// received quantities. Receiving less than was shipped is allowed; the
// difference is recorded as shrinkage and credited nowhere.
func (s *Service) Receive(ctx context.Context, actor shared.Actor, id int64, input QuantitiesInput) (Transfer, error) {
	if err := s.validate.Struct(input); err != nil {
		return Transfer{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	return s.transition(ctx, actor, id, OpReceive, input.ExpectedVersion, func(_ context.Context, tr *Transfer, now time.Time) (effect, error) {
		qty, err := shared.QuantityMap(input.Items, tr.knows)
		if err != nil {
			return effect{}, err
		}
		group := &ledger.Group{
			Kind:    ledger.KindTransferIn,
			RefType: aggregate,
			RefID:   tr.ID,
			RefCode: tr.Code,
			ActorID: actor.ID,
		}
		var shrinkage []string
		for i := range tr.Items {
			it := &tr.Items[i]
			q := qty[it.ID]
			if q.GreaterThan(it.ShippedQty) {
				return effect{}, &shared.QuantityError{ItemID: it.ID, Requested: q, Limit: it.ShippedQty, Kind: shared.ErrQuantityExceedsShipped}
			}
			it.ReceivedQty = q
			if lost := it.InTransit(); lost.IsPositive() {
				shrinkage = append(shrinkage, fmt.Sprintf("item %d material %d shipped %s received %s lost %s",
					it.ID, it.MaterialID, it.ShippedQty, it.ReceivedQty, lost))
			}
			group.Lines = append(group.Lines, ledger.Line{
				LocationID: tr.DestinationLocationID,
				MaterialID: it.MaterialID,
				ItemID:     it.ID,
				Delta:      q,
			})
		}
		tr.ReceiverID = &actor.ID
		tr.ReceivedAt = &now
		reason := strings.TrimSpace(input.Notes)
		if len(shrinkage) > 0 {
			note := "shrinkage: " + strings.Join(shrinkage, "; ")
			if reason == "" {
				reason = note
			} else {
				reason += " | " + note
			}
		}
		return effect{reason: reason, items: true, ledger: group}, nil
	})
}

// Cancel moves DRAFT or APPROVED to CANCELED.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64, input ReasonInput) (Transfer, error) {
	reason := strings.TrimSpace(input.Reason)
	return s.transition(ctx, actor, id, OpCancel, input.ExpectedVersion, func(_ context.Context, _ *Transfer, _ time.Time) (effect, error) {
		return effect{reason: reason}, nil
	})
}

// Get returns a transfer with its items.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.Get(ctx, id)
}

// GetByCode looks a transfer up by its TR-YYYY-NNNN code.
func (s *Service) GetByCode(ctx context.Context, code string) (Transfer, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Transfer{}, shared.Invalid("code is required")
	}
	items, _, err := s.repo.List(ctx, ListFilters{Code: code, Page: 1, Limit: 1})
	if err != nil {
		return Transfer{}, err
	}
	if len(items) == 0 {
		return Transfer{}, fmt.Errorf("transfer %s: %w", code, shared.ErrNotFound)
	}
	return items[0], nil
}

// Detail is a transfer with its history.
type Detail struct {
	Transfer
	History []history.Entry `json:"history"`
}

// GetDetail loads the transfer and its history concurrently.
func (s *Service) GetDetail(ctx context.Context, id int64) (Detail, error) {
	var detail Detail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tr, err := s.repo.Get(gctx, id)
		detail.Transfer = tr
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

// History lists the transitions of a transfer in order.
func (s *Service) History(ctx context.Context, id int64) ([]history.Entry, error) {
	entries, err := s.history.List(ctx, history.ParentTransfer, id)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}

// List returns a page of transfers.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Transfer, shared.Pagination, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.Limit < 1 || filters.Limit > 200 {
		filters.Limit = 20
	}
	filters.Code = strings.TrimSpace(filters.Code)
	filters.Search = strings.TrimSpace(filters.Search)
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// InTransitLine is material that left an origin and has not been received.
type InTransitLine struct {
	TransferID            int64           `json:"transferId"`
	Code                  string          `json:"code"`
	OriginLocationID      int64           `json:"originLocationId"`
	DestinationLocationID int64           `json:"destinationLocationId"`
	ShippedAt             *time.Time      `json:"shippedAt,omitempty"`
	ItemID                int64           `json:"itemId"`
	MaterialID            int64           `json:"materialId"`
	Quantity              decimal.Decimal `json:"quantity"`
}

// ListInTransit returns the in-transit lines of SHIPPED transfers shipped at
// least olderThan ago. A zero olderThan lists every shipped transfer.
func (s *Service) ListInTransit(ctx context.Context, olderThan time.Duration) ([]InTransitLine, error) {
	shipped, err := s.repo.ListShipped(ctx, s.now().Add(-olderThan))
	if err != nil {
		return nil, err
	}
	lines := []InTransitLine{}
	for _, tr := range shipped {
		for _, it := range tr.Items {
			qty := it.InTransit()
			if !qty.IsPositive() {
				continue
			}
			lines = append(lines, InTransitLine{
				TransferID:            tr.ID,
				Code:                  tr.Code,
				OriginLocationID:      tr.OriginLocationID,
				DestinationLocationID: tr.DestinationLocationID,
				ShippedAt:             tr.ShippedAt,
				ItemID:                it.ID,
				MaterialID:            it.MaterialID,
				Quantity:              qty,
			})
		}
	}
	return lines, nil
}

type effect struct {
	reason string
	items  bool
	ledger *ledger.Group
}

type applyFunc func(ctx context.Context, tr *Transfer, now time.Time) (effect, error)

// transition runs one state-machine operation inside a single transaction.
func (s *Service) transition(ctx context.Context, actor shared.Actor, id int64, op Operation, expectedVersion *int64, apply applyFunc) (Transfer, error) {
	r, ok := transitions[op]
	if !ok {
		return Transfer{}, fmt.Errorf("transfers: unknown operation %q", op)
	}
	var (
		out       Transfer
		from      Status
		fx        effect
		movements []ledger.Movement
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetTransfer(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != tr.Version {
			return fmt.Errorf("transfer %s: version %d, expected %d: %w", tr.Code, tr.Version, *expectedVersion, shared.ErrConcurrentModification)
		}
		if !r.allows(tr.Status) {
			return &shared.TransitionError{Aggregate: aggregate, ID: tr.ID, From: string(tr.Status), Operation: string(op)}
		}
		if err := authz.Require(ctx, s.gate, actor, r.permission); err != nil {
			return err
		}
		from = tr.Status
		now := s.now()
		if fx, err = apply(ctx, &tr, now); err != nil {
			return err
		}
		if fx.ledger != nil {
			if movements, err = ledger.Apply(ctx, tx.Ledger(), *fx.ledger, now); err != nil {
				return err
			}
		}
		if fx.items {
			for _, it := range tr.Items {
				if err := tx.UpdateItem(ctx, it); err != nil {
					return err
				}
			}
		}
		tr.Status = r.to
		tr.UpdatedAt = now
		if err := tx.UpdateTransfer(ctx, tr, tr.Version); err != nil {
			return err
		}
		tr.Version++
		if err := tx.History().Append(ctx, history.Entry{
			ParentType: history.ParentTransfer,
			ParentID:   tr.ID,
			FromStatus: string(from),
			ToStatus:   string(r.to),
			ActorID:    actor.ID,
			Reason:     fx.reason,
			At:         now,
		}); err != nil {
			return err
		}
		out = tr
		return nil
	})
	if err != nil {
		s.finish(ctx, actor, string(op), Transfer{ID: id}, "", false, "", err)
		return Transfer{}, err
	}
	if s.ledger != nil {
		s.ledger.Committed(ctx, movements)
	}
	s.finish(ctx, actor, string(op), out, from, true, fx.reason, nil)
	return out, nil
}

func (s *Service) editItems(ctx context.Context, actor shared.Actor, id int64, expectedVersion *int64, edit func(context.Context, TxRepository, *Transfer) error) (Transfer, error) {
	if err := authz.Require(ctx, s.gate, actor, shared.PermTransferCreate); err != nil {
		return Transfer{}, err
	}
	var out Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetTransfer(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != tr.Version {
			return fmt.Errorf("transfer %s: version %d, expected %d: %w", tr.Code, tr.Version, *expectedVersion, shared.ErrConcurrentModification)
		}
		if tr.Status != StatusDraft {
			return fmt.Errorf("%w: transfer %s is %s", shared.ErrInvalidState, tr.Code, tr.Status)
		}
		if tr.RequesterID != actor.ID {
			return fmt.Errorf("%w: only the requester may edit %s", shared.ErrUnauthorized, tr.Code)
		}
		if err := edit(ctx, tx, &tr); err != nil {
			return err
		}
		tr.recomputeTotals()
		tr.UpdatedAt = s.now()
		if err := tx.UpdateTransfer(ctx, tr, tr.Version); err != nil {
			return err
		}
		tr.Version++
		out = tr
		return nil
	})
	if err != nil {
		s.logger.Debug("transfer item edit rejected", slog.Int64("transfer_id", id), slog.Any("error", err))
		return Transfer{}, err
	}
	return out, nil
}

func (s *Service) finish(ctx context.Context, actor shared.Actor, op string, tr Transfer, from Status, notify bool, reason string, err error) {
	if err != nil {
		if s.observer != nil {
			s.observer.ObserveTransition(aggregate, op, "error")
		}
		s.logger.Debug("transfer operation rejected",
			slog.String("operation", op),
			slog.Int64("transfer_id", tr.ID),
			slog.Int64("actor_id", actor.ID),
			slog.Any("error", err))
		return
	}
	if s.observer != nil {
		s.observer.ObserveTransition(aggregate, op, "success")
	}
	s.logger.Info("transfer transition committed",
		slog.String("operation", op),
		slog.Int64("transfer_id", tr.ID),
		slog.String("code", tr.Code),
		slog.String("from", string(from)),
		slog.String("to", string(tr.Status)),
		slog.Int64("actor_id", actor.ID))
	if !notify || s.notifier == nil {
		return
	}
	evt := shared.TransitionEvent{
		Aggregate:   aggregate,
		ID:          tr.ID,
		Code:        tr.Code,
		Operation:   op,
		From:        string(from),
		To:          string(tr.Status),
		ActorID:     actor.ID,
		RecipientID: tr.RequesterID,
		Reason:      reason,
		At:          tr.UpdatedAt,
	}
	if err := s.notifier.NotifyTransition(ctx, evt); err != nil {
		s.logger.Warn("enqueue transfer notification", slog.String("code", tr.Code), slog.Any("error", err))
	}
}
