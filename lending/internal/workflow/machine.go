package workflow

import (
	"fmt"
	"time"

	"github.com/Astemirdum/club-lending/lending/internal/errs"
	"github.com/Astemirdum/club-lending/lending/internal/model"
)

type transition struct {
	from   model.Status
	action model.Action
}

var transitions = map[transition]model.Status{
	{model.StatusProcessing, model.ActionApprove}:         model.StatusClubApproved,
	{model.StatusProcessing, model.ActionReject}:          model.StatusRejected,
	{model.StatusDepartmentPending, model.ActionApprove}:  model.StatusDepartmentApproved,
	{model.StatusDepartmentPending, model.ActionReject}:   model.StatusRejected,
	{model.StatusDepartmentApproved, model.ActionApprove}: model.StatusClubApproved,
	{model.StatusDepartmentApproved, model.ActionReject}:  model.StatusRejected,
	{model.StatusClubApproved, model.ActionReject}:        model.StatusRejected,
	{model.StatusClubApproved, model.ActionCollect}:       model.StatusCollected,
	{model.StatusCollected, model.ActionExpire}:           model.StatusOverdue,
}

// Subject is everything the state machine needs to know about a request.
type Subject struct {
	Transaction       model.Transaction
	OwnerClubID       string
	DepartmentRequest *model.DepartmentRequest
}

// Step is a validated transition. Expected is the status the write must
// still find; Decision is non-empty when the relay record is decided too.
type Step struct {
	Expected      model.Status
	To            model.Status
	Decision      model.Decision
	CheckCapacity bool
}

// Authorize decides whether actor may act on the subject in its current status.
func Authorize(actor model.Actor, s Subject, action model.Action) error {
	if action == model.ActionExpire || actor.Kind == model.ActorSystem {
		if action == model.ActionExpire && actor.Kind == model.ActorSystem {
			return nil
		}
		return errs.ErrForbidden
	}
	if s.Transaction.Status == model.StatusDepartmentPending {
		switch {
		case s.DepartmentRequest != nil && actor.IsFacultyOf(s.DepartmentRequest.DepartmentID):
			return nil
		case actor.IsClub(s.OwnerClubID):
			return errs.ErrNotYetEligible
		}
		return errs.ErrForbidden
	}
	if !actor.IsClub(s.OwnerClubID) {
		return errs.ErrForbidden
	}
	return nil
}

func Next(from model.Status, action model.Action) (model.Status, error) {
	to, ok := transitions[transition{from, action}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", errs.ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Apply validates action by actor against the subject and returns the step to persist.
func Apply(actor model.Actor, s Subject, action model.Action, now time.Time) (Step, error) {
	if err := Authorize(actor, s, action); err != nil {
		return Step{}, err
	}
	from := s.Transaction.Status
	to, err := Next(from, action)
	if err != nil {
		return Step{}, err
	}
	step := Step{Expected: from, To: to, CheckCapacity: to == model.StatusClubApproved}

	switch from {
	case model.StatusDepartmentPending:
		d, err := decideRelay(s.DepartmentRequest, action)
		if err != nil {
			return Step{}, err
		}
		step.Decision = d
		step.To = statusForDecision(d)
	case model.StatusCollected:
		if s.Transaction.EffectiveStatus(now) != model.StatusOverdue {
			return Step{}, fmt.Errorf("%w: due date has not elapsed", errs.ErrInvalidTransition)
		}
	}
	return step, nil
}

// CanAmend checks the message/due date side channel. It never changes status.
// The due date of an overdue request is frozen so lazy expiry cannot be undone.
func CanAmend(actor model.Actor, s Subject, a model.Amendment, now time.Time) error {
	if !actor.IsClub(s.OwnerClubID) {
		return errs.ErrForbidden
	}
	if s.Transaction.Status.IsTerminal() {
		return fmt.Errorf("%w: request is %s", errs.ErrInvalidTransition, s.Transaction.Status)
	}
	if a.Message == nil && a.DueDate == nil {
		return errs.Validation("nothing to amend")
	}
	if a.DueDate != nil && s.Transaction.EffectiveStatus(now) == model.StatusOverdue {
		return fmt.Errorf("%w: due date of an overdue request cannot change", errs.ErrInvalidTransition)
	}
	if a.DueDate != nil && a.DueDate.Before(s.Transaction.DateOfIssue) {
		return errs.Validation("due date is before date of issue")
	}
	return nil
}
