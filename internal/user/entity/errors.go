package entity

import "errors"

// Domain errors shared by the user store, the user manager and the auth gate.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidUserInput   = errors.New("invalid user input")
)
