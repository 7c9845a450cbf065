package server

import "errors"

// Server-specific errors
var (
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrUnauthorized         = errors.New("unauthorized")
)
