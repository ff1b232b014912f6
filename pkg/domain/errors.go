package domain

import "errors"

// Session errors
var (
	ErrSessionNotFound = errors.New("session not found")
)

// Table and order errors
var (
	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table already exists")
	ErrEmptyOrder    = errors.New("order has no items")
	ErrTooManyItems  = errors.New("order has too many items")
	ErrInvalidItem   = errors.New("invalid order item")
)

// Admin errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidOTP         = errors.New("invalid one-time code")
	ErrInvalidToken       = errors.New("invalid token")
)
