package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/platform/cache"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetBalance(ctx context.Context, locationID, materialID int64) (Balance, error)
	ListBalances(ctx context.Context, locationID int64) ([]Balance, error)
	ListMovements(ctx context.Context, filter StockCardFilter) ([]Movement, error)
}

// LocationChecker rejects unknown or inactive locations.
type LocationChecker interface {
	EnsureActive(ctx context.Context, id int64) error
}

// MovementObserver receives committed movements for metrics.
type MovementObserver interface {
	ObserveLedgerMovement(kind string)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes ledger reads, administrative adjustments and the post-commit
// hook shared by the workflows.
type Service struct {
	repo      RepositoryPort
	gate      authz.Gate
	locations LocationChecker
	cache     *cache.Versioned
	observer  MovementObserver
	audit     AuditPort
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Locations LocationChecker
	Cache     *cache.Versioned
	Observer  MovementObserver
	Audit     AuditPort
	Logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, gate authz.Gate, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		gate:      gate,
		locations: deps.Locations,
		cache:     deps.Cache,
		observer:  deps.Observer,
		audit:     deps.Audit,
		validate:  validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetBalance returns the on-hand quantity. A missing row is zero.
func (s *Service) GetBalance(ctx context.Context, locationID, materialID int64) (decimal.Decimal, error) {
	bal, err := s.repo.GetBalance(ctx, locationID, materialID)
	if errors.Is(err, ErrBalanceNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Quantity, nil
}

// Adjust applies an administrative delta and returns the new quantity.
func (s *Service) Adjust(ctx context.Context, actor shared.Actor, input AdjustInput) (decimal.Decimal, error) {
	if err := authz.Require(ctx, s.gate, actor, shared.PermStockAdjust); err != nil {
		return decimal.Zero, err
	}
	if err := s.validate.Struct(input); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	if input.Delta.IsZero() {
		return decimal.Zero, shared.Invalid("delta must be non zero")
	}
	if s.locations != nil {
		if err := s.locations.EnsureActive(ctx, input.LocationID); err != nil {
			return decimal.Zero, err
		}
	}

	var movements []Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		movements, err = Apply(ctx, tx, Group{
			Kind:    KindAdjustment,
			RefType: "adjustment",
			ActorID: actor.ID,
			Reason:  input.Reason,
			Lines:   []Line{{LocationID: input.LocationID, MaterialID: input.MaterialID, Delta: input.Delta}},
		}, s.now())
		return err
	})
	if err != nil {
		s.logger.Debug("ledger adjust rejected",
			slog.Int64("location_id", input.LocationID),
			slog.Int64("material_id", input.MaterialID),
			slog.Any("error", err))
		return decimal.Zero, err
	}
	s.Committed(ctx, movements)

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "stock:adjust",
			Entity:   "stock_balance",
			EntityID: fmt.Sprintf("%d:%d", input.LocationID, input.MaterialID),
			Meta: map[string]any{
				"delta":  input.Delta.String(),
				"reason": input.Reason,
			},
		}); err != nil {
			s.logger.Warn("audit stock adjust", slog.Any("error", err))
		}
	}
	return movements[0].Resulting, nil
}

// Committed runs the post-commit side effects for movements written inside a
// workflow transaction. It never fails the caller.
func (s *Service) Committed(ctx context.Context, movements []Movement) {
	if len(movements) == 0 {
		return
	}
	if s.observer != nil {
		for _, m := range movements {
			s.observer.ObserveLedgerMovement(string(m.Kind))
		}
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("stock cache bump", slog.Any("error", err))
	}
}

// ListBalances returns the stock position of a location, served from cache when available.
func (s *Service) ListBalances(ctx context.Context, locationID int64) ([]Balance, error) {
	if locationID <= 0 {
		return nil, shared.Invalid("location required")
	}
	key, err := s.cache.BuildKey(ctx, "position", strconv.FormatInt(locationID, 10))
	if err != nil {
		s.logger.Warn("stock cache key", slog.Any("error", err))
		return s.repo.ListBalances(ctx, locationID)
	}
	var balances []Balance
	err = s.cache.FetchJSON(ctx, key, &balances, func(ctx context.Context) (any, error) {
		return s.repo.ListBalances(ctx, locationID)
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// StockCard lists movements for one location and material.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]Movement, error) {
	if filter.LocationID <= 0 || filter.MaterialID <= 0 {
		return nil, shared.Invalid("location and material required")
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	return s.repo.ListMovements(ctx, filter)
}
