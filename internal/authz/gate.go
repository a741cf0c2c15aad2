// Package authz answers per-(role, action) authorization questions for the
// workflow core. Role tables live outside; this package only consumes them.
package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/enterprise-stock/internal/shared"
)

// Wildcard grants every action to a role.
const Wildcard = "*"

// Gate is the authorization collaborator consulted by every workflow operation.
type Gate interface {
	IsAllowed(ctx context.Context, role, action string) (bool, error)
	// CeilingFor returns the monetary approval ceiling for role. ok is false
	// when no ceiling applies.
	CeilingFor(ctx context.Context, role string) (ceiling decimal.Decimal, ok bool, err error)
}

// StaticGate serves decisions from in-memory grant and ceiling tables.
type StaticGate struct {
	grants   map[string]map[string]struct{}
	ceilings map[string]decimal.Decimal
}

// NewStaticGate builds a gate from role → permissions and role → ceiling maps.
func NewStaticGate(grants map[string][]string, ceilings map[string]decimal.Decimal) *StaticGate {
	g := &StaticGate{
		grants:   make(map[string]map[string]struct{}, len(grants)),
		ceilings: make(map[string]decimal.Decimal, len(ceilings)),
	}
	for role, perms := range grants {
		set := make(map[string]struct{}, len(perms))
		for _, p := range normalizePermissions(perms) {
			set[p] = struct{}{}
		}
		g.grants[normalizeRole(role)] = set
	}
	for role, amount := range ceilings {
		g.ceilings[normalizeRole(role)] = amount
	}
	return g
}

// IsAllowed implements Gate.
func (g *StaticGate) IsAllowed(_ context.Context, role, action string) (bool, error) {
	if g == nil {
		return false, nil
	}
	set, ok := g.grants[normalizeRole(role)]
	if !ok {
		return false, nil
	}
	if _, ok := set[Wildcard]; ok {
		return true, nil
	}
	_, ok = set[strings.ToLower(strings.TrimSpace(action))]
	return ok, nil
}

// CeilingFor implements Gate.
func (g *StaticGate) CeilingFor(_ context.Context, role string) (decimal.Decimal, bool, error) {
	if g == nil {
		return decimal.Zero, false, nil
	}
	amount, ok := g.ceilings[normalizeRole(role)]
	return amount, ok, nil
}

// Require returns shared.ErrUnauthorized unless gate allows actor to perform action.
func Require(ctx context.Context, gate Gate, actor shared.Actor, action string) error {
	if !actor.Valid() {
		return fmt.Errorf("%w: missing actor", shared.ErrUnauthorized)
	}
	if gate == nil {
		return fmt.Errorf("%w: no authorization gate", shared.ErrUnauthorized)
	}
	ok, err := gate.IsAllowed(ctx, actor.Role, action)
	if err != nil {
		return fmt.Errorf("authz: %s: %w", action, err)
	}
	if !ok {
		return fmt.Errorf("%w: role %s lacks %s", shared.ErrUnauthorized, actor.Role, action)
	}
	return nil
}

// CheckCeiling enforces the optional approval ceiling for actor.
func CheckCeiling(ctx context.Context, gate Gate, actor shared.Actor, amount decimal.Decimal) error {
	if gate == nil {
		return nil
	}
	ceiling, ok, err := gate.CeilingFor(ctx, actor.Role)
	if err != nil {
		return fmt.Errorf("authz: ceiling lookup: %w", err)
	}
	if ok && amount.GreaterThan(ceiling) {
		return &shared.ApprovalLimitError{Role: actor.Role, Ceiling: ceiling, Amount: amount}
	}
	return nil
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
