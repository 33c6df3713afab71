package authz

import "errors"

var (
	ErrNotFound               = errors.New("authz: not found")
	ErrConflict               = errors.New("authz: resource conflict")
	ErrInvalidInput           = errors.New("authz: invalid input")
	ErrInvalidRole            = errors.New("authz: role outside case-grant domain")
	ErrProtectedRole          = errors.New("authz: system role is immutable")
	ErrCapacityExceeded       = errors.New("authz: organization member capacity exceeded")
	ErrConcurrentModification = errors.New("authz: concurrent modification")
	ErrPermissionDenied       = errors.New("authz: not authorized")
)
