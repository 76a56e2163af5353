package service

import "errors"

// Orchestrator-level errors. These are user-facing and never fatal.
var (
	ErrCapacityExceeded = errors.New("worker capacity exceeded")
	ErrAlreadyWatching  = errors.New("channel already being watched")
	ErrNotWatching      = errors.New("channel not being watched")
	ErrProtectedChannel = errors.New("primary channel cannot be removed")
	ErrNotReady         = errors.New("orchestrator not ready")
)

// ErrWorkerExhausted is returned by a worker that ran out of retries. It ends
// that worker only.
var ErrWorkerExhausted = errors.New("worker exhausted retries")
