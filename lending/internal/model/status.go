package model

import (
	"strconv"
	"strings"

	"github.com/Astemirdum/club-lending/lending/internal/errs"
)

type Status string

// Order matters: the index is the legacy numeric code.
const (
	StatusProcessing         Status = "PROCESSING"
	StatusDepartmentPending  Status = "DEPARTMENT_PENDING"
	StatusDepartmentApproved Status = "DEPARTMENT_APPROVED"
	StatusClubApproved       Status = "CLUB_APPROVED"
	StatusCollected          Status = "COLLECTED"
	StatusOverdue            Status = "OVERDUE"
	StatusRejected           Status = "REJECTED"
)

var statuses = []Status{
	StatusProcessing,
	StatusDepartmentPending,
	StatusDepartmentApproved,
	StatusClubApproved,
	StatusCollected,
	StatusOverdue,
	StatusRejected,
}

var legacyStatuses = map[string]Status{
	"pending":            StatusProcessing,
	"underconsideration": StatusDepartmentPending,
	"approved":           StatusClubApproved,
	"rejected":           StatusRejected,
}

func (s Status) Valid() bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusRejected
}

// Reserves reports whether a request in this status holds item quantity.
func (s Status) Reserves() bool {
	switch s {
	case StatusClubApproved, StatusCollected, StatusOverdue:
		return true
	}
	return false
}

// ReservingStatuses lists every status for which Reserves is true.
func ReservingStatuses() []Status {
	return []Status{StatusClubApproved, StatusCollected, StatusOverdue}
}

// ParseStatus accepts a canonical name (any case), a legacy string value
// or a legacy numeric code.
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(v)
	if s := Status(strings.ToUpper(v)); s.Valid() {
		return s, nil
	}
	return ParseLegacyStatus(v)
}

func ParseLegacyStatus(v string) (Status, error) {
	if s, ok := legacyStatuses[strings.ToLower(strings.TrimSpace(v))]; ok {
		return s, nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 && n < len(statuses) {
		return statuses[n], nil
	}
	return "", errs.Validation("unknown status %q", v)
}
