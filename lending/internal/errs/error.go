package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrCapacityExceeded  = errors.New("requested quantity exceeds availability")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrRoleNotPermitted  = errors.New("role is not permitted to borrow")
	ErrNotYetEligible    = errors.New("request is locked pending department review")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("request was modified concurrently")
	ErrNotFound          = errors.New("not found")
	ErrDepartmentUnknown = errors.New("student department is unknown")

	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", ErrValidation)
)

const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeRoleNotPermitted  = "ROLE_NOT_PERMITTED"
	CodeNotYetEligible    = "NOT_YET_ELIGIBLE"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeConflict          = "CONFLICT"
	CodeNotFound          = "NOT_FOUND"
	CodeDepartmentUnknown = "DEPARTMENT_UNKNOWN"
	CodeInternal          = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrValidation, CodeValidation},
	{ErrCapacityExceeded, CodeCapacityExceeded},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrForbidden, CodeForbidden},
	{ErrRoleNotPermitted, CodeRoleNotPermitted},
	{ErrNotYetEligible, CodeNotYetEligible},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrConflict, CodeConflict},
	{ErrNotFound, CodeNotFound},
	{ErrDepartmentUnknown, CodeDepartmentUnknown},
}

// Code returns the stable code of the first taxonomy error found in err's chain.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
