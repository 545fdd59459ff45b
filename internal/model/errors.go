package model

import "errors"

var (
	// ErrCommandRequired is returned when a session creation request is missing the command.
	ErrCommandRequired = errors.New("command is required")

	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotRunning is returned when an operation requires a live process.
	ErrSessionNotRunning = errors.New("session is not running")

	// ErrSessionRunning is returned when restarting a session that is still alive.
	ErrSessionRunning = errors.New("session is already running")

	// ErrForbidden is returned when access to a resource is forbidden.
	ErrForbidden = errors.New("forbidden")

	// ErrConcurrencyLimit is returned when the maximum number of concurrent sessions is reached.
	ErrConcurrencyLimit = errors.New("concurrent session limit exceeded")
)
