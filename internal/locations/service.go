package locations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/enterprise-stock/internal/authz"
	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service administers stock locations.
type Service struct {
	repo     Repository
	gate     authz.Gate
	audit    AuditPort
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo Repository, gate authz.Gate, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, gate: gate, audit: audit, validate: validator.New(), logger: logger}
}

// Get returns a location by id.
func (s *Service) Get(ctx context.Context, id int64) (Location, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of locations.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Location, shared.Pagination, error) {
	filters.normalize()
	if filters.Type != "" && !filters.Type.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("unknown location type %q", filters.Type)
	}
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

// EnsureActive fails with ErrValidation when the location is unknown or inactive.
func (s *Service) EnsureActive(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Invalid("location required")
	}
	loc, err := s.repo.Get(ctx, id)
	if err != nil {
		return shared.Invalid("location %d: %v", id, err)
	}
	if !loc.Active {
		return shared.Invalid("location %d (%s) is inactive", id, loc.Code)
	}
	return nil
}

// Create registers a new location.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Location, error) {
	if err := authz.Require(ctx, s.gate, actor, shared.PermLocationsManage); err != nil {
		return Location{}, err
	}
	input.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	input.Name = strings.TrimSpace(input.Name)
	if err := s.validate.Struct(input); err != nil {
		return Location{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	if !input.Type.Valid() {
		return Location{}, shared.Invalid("unknown location type %q", input.Type)
	}
	loc, err := s.repo.Create(ctx, Location{
		Code:          input.Code,
		Name:          input.Name,
		Description:   input.Description,
		Type:          input.Type,
		ContractID:    input.ContractID,
		WorkFrontID:   input.WorkFrontID,
		Address:       input.Address,
		ResponsibleID: input.ResponsibleID,
	})
	if err != nil {
		return Location{}, err
	}
	s.record(ctx, actor, "locations:create", loc)
	return loc, nil
}

// Update edits a location's descriptive fields.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (Location, error) {
	if err := authz.Require(ctx, s.gate, actor, shared.PermLocationsManage); err != nil {
		return Location{}, err
	}
	if err := s.validate.Struct(input); err != nil {
		return Location{}, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	loc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if input.Name != nil {
		loc.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		loc.Description = *input.Description
	}
	if input.Type != nil {
		if !input.Type.Valid() {
			return Location{}, shared.Invalid("unknown location type %q", *input.Type)
		}
		loc.Type = *input.Type
	}
	if input.Address != nil {
		loc.Address = *input.Address
	}
	if input.ResponsibleID != nil {
		loc.ResponsibleID = input.ResponsibleID
	}
	if err := s.repo.Update(ctx, loc); err != nil {
		return Location{}, err
	}
	s.record(ctx, actor, "locations:update", loc)
	return loc, nil
}

// Deactivate soft-disables a location. It is idempotent.
func (s *Service) Deactivate(ctx context.Context, actor shared.Actor, id int64) (Location, error) {
	if err := authz.Require(ctx, s.gate, actor, shared.PermLocationsManage); err != nil {
		return Location{}, err
	}
	loc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if !loc.Active {
		return loc, nil
	}
	loc.Active = false
	if err := s.repo.Update(ctx, loc); err != nil {
		return Location{}, err
	}
	s.record(ctx, actor, "locations:deactivate", loc)
	return loc, nil
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, loc Location) {
	s.logger.Info("location changed", slog.String("action", action), slog.Int64("location_id", loc.ID), slog.String("code", loc.Code))
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "stock_location",
		EntityID: strconv.FormatInt(loc.ID, 10),
		Meta:     map[string]any{"code": loc.Code, "type": string(loc.Type), "active": loc.Active},
	}); err != nil {
		s.logger.Warn("audit location change", slog.Any("error", err))
	}
}
