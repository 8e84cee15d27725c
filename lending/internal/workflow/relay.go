package workflow

import (
	"fmt"

	"github.com/Astemirdum/club-lending/lending/internal/errs"
	"github.com/Astemirdum/club-lending/lending/internal/model"
)

func ResolveDepartmentDecision(dr model.DepartmentRequest) model.Decision {
	switch dr.Decision {
	case model.DecisionApproved, model.DecisionRejected:
		return dr.Decision
	}
	return model.DecisionPending
}

// decideRelay records a faculty decision on the relay record. A relay
// is consumed once; deciding it again is a conflict.
func decideRelay(dr *model.DepartmentRequest, action model.Action) (model.Decision, error) {
	if dr == nil {
		return "", fmt.Errorf("department request: %w", errs.ErrNotFound)
	}
	if ResolveDepartmentDecision(*dr) != model.DecisionPending {
		return "", fmt.Errorf("department request already %s: %w", dr.Decision, errs.ErrConflict)
	}
	switch action {
	case model.ActionApprove:
		return model.DecisionApproved, nil
	case model.ActionReject:
		return model.DecisionRejected, nil
	}
	return "", errs.ErrInvalidTransition
}

func statusForDecision(d model.Decision) model.Status {
	if d == model.DecisionApproved {
		return model.StatusDepartmentApproved
	}
	return model.StatusRejected
}
