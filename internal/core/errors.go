package core

import "errors"

var (
	ErrUnknownMonth  = errors.New("unknown month")
	ErrUnknownPillar = errors.New("unknown pillar")
	ErrUnknownUnit   = errors.New("unknown unit")
	ErrUnknownField  = errors.New("unknown field")
	ErrInvalidBackup = errors.New("invalid backup document")

	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrMissingUserFields  = errors.New("name, login and password are required")
	ErrLastUser           = errors.New("the system must keep at least one user")
	ErrSelfDelete         = errors.New("the current user cannot delete itself")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotAuthenticated   = errors.New("not authenticated")
)
