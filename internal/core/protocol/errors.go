package protocol

import (
	"errors"
	"time"
)

// Wire and transport errors
var (
	// Connection errors

	ErrConnectionClosed = errors.New("connection is closed")
	ErrDialFailed       = errors.New("dial failed")
	ErrListenFailed     = errors.New("listen failed")
	ErrPeerExists       = errors.New("peer already known")
	ErrPeerQueueFull    = errors.New("peer send queue is full")

	// Lifecycle errors

	ErrAlreadyRunning = errors.New("retranslator is already running")
	ErrNotRunning     = errors.New("retranslator is not running")

	// Framing errors

	ErrInvalidFrame     = errors.New("invalid frame")
	ErrFrameTooLarge    = errors.New("frame too large")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrInvalidHandshake = errors.New("invalid handshake")
	ErrNonASCII         = errors.New("string is not ASCII")
)

// ErrorCode represents a numeric error code for efficient error handling
type ErrorCode int

const (
	ErrorCodeSuccess ErrorCode = 0

	// Connection error codes (1000-1999)

	ErrorCodeConnectionClosed ErrorCode = 1001
	ErrorCodeDialFailed       ErrorCode = 1002
	ErrorCodeListenFailed     ErrorCode = 1003
	ErrorCodePeerExists       ErrorCode = 1004
	ErrorCodePeerQueueFull    ErrorCode = 1005

	// Lifecycle error codes (2000-2999)

	ErrorCodeAlreadyRunning ErrorCode = 2001
	ErrorCodeNotRunning     ErrorCode = 2002

	// Framing error codes (3000-3999)

	ErrorCodeInvalidFrame     ErrorCode = 3001
	ErrorCodeFrameTooLarge    ErrorCode = 3002
	ErrorCodePayloadTooLarge  ErrorCode = 3003
	ErrorCodeInvalidHandshake ErrorCode = 3004
	ErrorCodeNonASCII         ErrorCode = 3005

	ErrorCodeUnknownError ErrorCode = 9999
)

// Error represents a protocol-specific error with additional context
type Error struct {
	Code      ErrorCode
	Message   string
	Cause     error
	Timestamp int64
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewProtocolError creates a new protocol error
func NewProtocolError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now().Unix(),
	}
}

var errorCodeMap = map[error]ErrorCode{
	ErrConnectionClosed: ErrorCodeConnectionClosed,
	ErrDialFailed:       ErrorCodeDialFailed,
	ErrListenFailed:     ErrorCodeListenFailed,
	ErrPeerExists:       ErrorCodePeerExists,
	ErrPeerQueueFull:    ErrorCodePeerQueueFull,

	ErrAlreadyRunning: ErrorCodeAlreadyRunning,
	ErrNotRunning:     ErrorCodeNotRunning,

	ErrInvalidFrame:     ErrorCodeInvalidFrame,
	ErrFrameTooLarge:    ErrorCodeFrameTooLarge,
	ErrPayloadTooLarge:  ErrorCodePayloadTooLarge,
	ErrInvalidHandshake: ErrorCodeInvalidHandshake,
	ErrNonASCII:         ErrorCodeNonASCII,
}

// GetErrorCode returns the error code for a given error, looking through
// wrapped errors.
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ErrorCodeSuccess
	}

	var protocolErr *Error
	if errors.As(err, &protocolErr) {
		return protocolErr.Code
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return ErrorCodeUnknownError
}

// WrapError wraps a standard error into a ProtocolError
func WrapError(err error, message string) *Error {
	return NewProtocolError(GetErrorCode(err), message, err)
}
