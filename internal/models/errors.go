package models

import "errors"

// Custom errors
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key violation")
	ErrInvalidID      = errors.New("invalid ID format")
	ErrUnorderedBars  = errors.New("price bars must have strictly increasing dates")
	ErrLengthMismatch = errors.New("prices and volumes must have the same length")
)
