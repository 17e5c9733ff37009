package model

import "errors"

var (
	// ErrDataUnavailable means neither the primary nor the fallback provider returned usable data.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInsufficientData means a series is too short for the requested transform.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateInput means the baseline series has no movement.
	ErrDegenerateInput = errors.New("degenerate input: zero baseline variance")
	ErrUnknownCoin     = errors.New("unknown coin id")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrLengthMismatch  = errors.New("series length mismatch")
	ErrInvalidInput    = errors.New("invalid input")
)
