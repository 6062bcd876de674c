package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrExpired: token past its expiry at evaluation time
// - ErrAlreadyUsed: single-use token already consumed
// - ErrInvalidState: entity in wrong state for requested transition
// - ErrContended: per-record lock not acquired within the bounded wait
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrContended    = errors.New("contended")
	ErrUnavailable  = errors.New("unavailable")
)
