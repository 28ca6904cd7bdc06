package monitor

import "errors"

// Check failures. Each one ends up as an error CheckRecord during a cycle.
var (
	ErrUnreachable   = errors.New("target unreachable")
	ErrPoolExhausted = errors.New("session pool busy")
	ErrPoolClosed    = errors.New("session pool closed")
	ErrRenderTimeout = errors.New("render timed out")
	ErrDetection     = errors.New("detection failed")
	ErrSessionBroken = errors.New("session unusable")
)

// Control surface failures, surfaced synchronously to callers.
var (
	ErrPersistence       = errors.New("persistence failure")
	ErrDuplicateTarget   = errors.New("target already monitored")
	ErrInvalidURL        = errors.New("invalid product url")
	ErrInvalidIdentifier = errors.New("product identifier not found in url")
	ErrNotOwner          = errors.New("target belongs to another owner")
	ErrNotFound          = errors.New("target not found")
	ErrInactive          = errors.New("target is not active")
	ErrCheckInProgress   = errors.New("check already in progress")
)
