package model

import (
	"time"
)

type InventoryItem struct {
	ID       string  `json:"id" db:"id"`
	ClubID   string  `json:"clubId" db:"club_id"`
	Name     string  `json:"name" db:"name"`
	Quantity int     `json:"quantity" db:"quantity"`
	Cost     float64 `json:"cost" db:"cost"`
	IsPublic bool    `json:"isPublic" db:"is_public"`
}

// Availability is an item's owned quantity and the part of it held by
// approved requests that were not returned.
type Availability struct {
	Quantity int `json:"quantity"`
	Reserved int `json:"reserved"`
}

func (a Availability) Free() int {
	return a.Quantity - a.Reserved
}

type Role string

const (
	RoleNewMember  Role = "new member"
	RoleMember     Role = "member"
	RoleCoreMember Role = "core member"
	RoleCoLead     Role = "co-lead"
	RoleTeamLead   Role = "team lead"
)

var roleRank = map[Role]int{
	RoleNewMember:  1,
	RoleMember:     2,
	RoleCoreMember: 3,
	RoleCoLead:     4,
	RoleTeamLead:   5,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast compares roles along the club hierarchy.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other] && r.Valid()
}

type Membership struct {
	ID        int    `json:"id" db:"id"`
	ClubID    string `json:"clubId" db:"club_id"`
	StudentID string `json:"usn" db:"usn"`
	Role      Role   `json:"role" db:"role"`
}

type Student struct {
	USN          string `json:"usn" db:"usn"`
	DepartmentID string `json:"deptId" db:"dept_id"`
}

type Transaction struct {
	ID          string     `json:"id" db:"id"`
	StudentID   *string    `json:"studentId,omitempty" db:"student_id"`
	ClubID      *string    `json:"clubId,omitempty" db:"club_id"`
	InventoryID string     `json:"inventoryId" db:"inventory_id"`
	Quantity    int        `json:"quantity" db:"quantity"`
	DateOfIssue time.Time  `json:"dateOfIssue" db:"date_of_issue"`
	DueDate     *time.Time `json:"dueDate,omitempty" db:"due_date"`
	Status      Status     `json:"status" db:"status"`
	Message     string     `json:"message" db:"message"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

type BorrowerKind string

const (
	BorrowerStudent BorrowerKind = "student"
	BorrowerClub    BorrowerKind = "club"
)

// Borrower returns who the request was made for. ok is false when the
// record violates the one-borrower invariant.
func (t Transaction) Borrower() (kind BorrowerKind, id string, ok bool) {
	switch {
	case t.StudentID != nil && t.ClubID == nil:
		return BorrowerStudent, *t.StudentID, true
	case t.ClubID != nil && t.StudentID == nil:
		return BorrowerClub, *t.ClubID, true
	}
	return "", "", false
}

// EffectiveStatus applies lazy expiry: a collected request past its due date reads as overdue.
func (t Transaction) EffectiveStatus(now time.Time) Status {
	if t.Status == StatusCollected && t.DueDate != nil && t.DueDate.Before(now) {
		return StatusOverdue
	}
	return t.Status
}

type Decision string

const (
	DecisionPending  Decision = "PENDING"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

type DepartmentRequest struct {
	ID            int        `json:"id" db:"id"`
	DepartmentID  string     `json:"deptId" db:"dept_id"`
	StudentID     string     `json:"usn" db:"usn"`
	TransactionID string     `json:"transactionId" db:"transaction_id"`
	Decision      Decision   `json:"decision" db:"decision"`
	DecidedBy     *string    `json:"decidedBy,omitempty" db:"decided_by"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty" db:"decided_at"`
}

type TransactionDetails struct {
	Transaction       `json:",inline"`
	DepartmentRequest *DepartmentRequest `json:"departmentRequest,omitempty"`
}

type SubmitRequest struct {
	InventoryID string     `json:"inventoryId" validate:"required"`
	Quantity    int        `json:"quantity" validate:"required,gt=0"`
	DueDate     *time.Time `json:"dueDate"`
	Message     string     `json:"message" validate:"max=1024"`
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCollect Action = "collect"
	ActionExpire  Action = "expire"
)

type DecisionRequest struct {
	Decision Action `json:"decision" validate:"required,oneof=approve reject"`
}

type Amendment struct {
	Message *string    `json:"message" validate:"omitempty,max=1024"`
	DueDate *time.Time `json:"dueDate"`
}

type Filter struct {
	Status       Status
	ClubID       string
	StudentID    string
	InventoryID  string
	OwnerClubID  string
	DepartmentID string
	Page, Size   int
	// Now resolves lazy expiry when filtering by COLLECTED or OVERDUE.
	Now time.Time
}

type TransactionEvent struct {
	TransactionID string    `json:"transactionId"`
	From          Status    `json:"from,omitempty"`
	To            Status    `json:"to"`
	ActorKind     ActorKind `json:"actorKind"`
	ActorID       string    `json:"actorId"`
	Timestamp     time.Time `json:"timestamp"`
}
