// Package service holds the error taxonomy and caller identity shared by the
// run lifecycle and catalog services.
package service

import "errors"

var (
	ErrBadID          = errors.New("malformed id")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrValidation     = errors.New("validation failed")
	ErrKindMismatch   = errors.New("experiment kind mismatch")
	ErrRunCompleted   = errors.New("run already finalized")
	ErrRoleAlreadySet = errors.New("role already set")
)

// Caller identifies the authenticated user invoking an operation.
type Caller struct {
	UserID string
	Role   string
}

func (c Caller) IsAdmin() bool {
	return c.Role == "admin"
}
