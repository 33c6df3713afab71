package authz

import (
	"context"
	"errors"

	"caseguard.org/internal/obs"
)

// Guard is the single choke point in front of case-data operations.
// Callers invoke Require before touching case content; the guard is the
// only component that turns a Decision into an error.
type Guard struct {
	engine *Engine
}

// NewGuard constructs the guard.
func NewGuard(engine *Engine) (*Guard, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	return &Guard{engine: engine}, nil
}

// Check runs the access decision and records decision metrics.
func (g *Guard) Check(ctx context.Context, userID, caseID string, capability Capability) Decision {
	d := g.engine.CanAccess(ctx, userID, caseID, capability)
	obs.ObserveDecision(string(d.GrantPath), d.Allowed)
	return d
}

// Require returns nil when access is allowed and ErrPermissionDenied
// otherwise. The denial carries no detail about why; diagnostics stay in
// the decision's Reason field on the metrics/log side.
func (g *Guard) Require(ctx context.Context, userID, caseID string, capability Capability) error {
	if d := g.Check(ctx, userID, caseID, capability); !d.Allowed {
		return ErrPermissionDenied
	}
	return nil
}
