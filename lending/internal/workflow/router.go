package workflow

import (
	"time"

	"github.com/Astemirdum/club-lending/lending/internal/errs"
	"github.com/Astemirdum/club-lending/lending/internal/model"
)

type RouteInput struct {
	Actor        model.Actor
	Item         model.InventoryItem
	Availability model.Availability
	// Membership of the requesting student in the owning club, nil if none.
	Membership *model.Membership
	// Student is the requesting student's record, nil when unknown.
	Student *model.Student
	Request model.SubmitRequest
	Now     time.Time
	NewID   func() string
}

// Route decides the initial state of a new request. It returns the
// transaction to persist and, for students outside the owning club, the
// department relay record that must be stored with it.
func Route(in RouteInput) (model.Transaction, *model.DepartmentRequest, error) {
	if err := CheckRequester(in.Actor); err != nil {
		return model.Transaction{}, nil, err
	}
	if in.Actor.Kind == model.ActorClub && in.Actor.ID == in.Item.ClubID {
		return model.Transaction{}, nil, errs.Validation("club %s owns item %s", in.Item.ClubID, in.Item.ID)
	}
	member := in.Actor.Kind == model.ActorStudent && in.Membership != nil &&
		in.Membership.ClubID == in.Item.ClubID && in.Membership.StudentID == in.Actor.ID
	if !in.Item.IsPublic && !member {
		return model.Transaction{}, nil, errs.ErrForbidden
	}
	if in.Request.DueDate != nil && in.Request.DueDate.Before(in.Now.Truncate(24*time.Hour)) {
		return model.Transaction{}, nil, errs.Validation("due date is before date of issue")
	}
	if err := CheckCapacity(in.Availability, in.Request.Quantity); err != nil {
		return model.Transaction{}, nil, err
	}

	tx := model.Transaction{
		ID:          in.NewID(),
		InventoryID: in.Item.ID,
		Quantity:    in.Request.Quantity,
		DateOfIssue: in.Now,
		DueDate:     in.Request.DueDate,
		Status:      model.StatusProcessing,
		Message:     in.Request.Message,
		UpdatedAt:   in.Now,
	}
	borrower := in.Actor.ID
	if in.Actor.Kind == model.ActorClub {
		tx.ClubID = &borrower
		return tx, nil, nil
	}
	tx.StudentID = &borrower
	if member {
		return tx, nil, nil
	}

	if in.Student == nil || in.Student.DepartmentID == "" {
		return model.Transaction{}, nil, errs.ErrDepartmentUnknown
	}
	tx.Status = model.StatusDepartmentPending
	return tx, &model.DepartmentRequest{
		DepartmentID:  in.Student.DepartmentID,
		StudentID:     in.Actor.ID,
		TransactionID: tx.ID,
		Decision:      model.DecisionPending,
	}, nil
}

// CheckRequester rejects actors that may not submit borrow requests.
func CheckRequester(a model.Actor) error {
	switch a.Kind {
	case model.ActorClub, model.ActorStudent:
		if a.ID == "" {
			return errs.ErrUnauthorized
		}
		return nil
	case model.ActorFaculty:
		return errs.ErrRoleNotPermitted
	}
	return errs.ErrUnauthorized
}
