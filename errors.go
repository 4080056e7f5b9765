package ftp

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrNotLoggedIn is matched by every StateError via errors.Is.
	ErrNotLoggedIn = errors.New("ftp: you need to log in before you can perform this operation")

	// ErrInvalidDirectory is returned when an empty or "." directory name is given.
	ErrInvalidDirectory = errors.New("ftp: a directory name wasn't provided")
)

// ProtocolError represents an FTP protocol error with full context of the
// command/response conversation: the server answered with an unexpected
// status code, or a reply payload was structurally malformed.
type ProtocolError struct {
	// Command is the FTP command that was sent (e.g., "STOR file.txt")
	Command string

	// Response is the server's message with the status code stripped
	// (e.g., "Permission denied"), or a description of the malformed payload.
	Response string

	// Code is the numeric FTP response code (e.g., 550). It is 0 when the
	// failure was detected locally and no reply code applies.
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// Is2xx returns true if the error code is in the 2xx range (success).
func (e *ProtocolError) Is2xx() bool {
	return e.Code >= 200 && e.Code < 300
}

// Is3xx returns true if the error code is in the 3xx range (intermediate).
func (e *ProtocolError) Is3xx() bool {
	return e.Code >= 300 && e.Code < 400
}

// Is4xx returns true if the error code is in the 4xx range (temporary failure).
func (e *ProtocolError) Is4xx() bool {
	return e.Code >= 400 && e.Code < 500
}

// Is5xx returns true if the error code is in the 5xx range (permanent failure).
func (e *ProtocolError) Is5xx() bool {
	return e.Code >= 500 && e.Code < 600
}

// IsTemporary returns true if the error is a temporary failure (4xx).
func (e *ProtocolError) IsTemporary() bool {
	return e.Is4xx()
}

// IsPermanent returns true if the error is a permanent failure (5xx).
func (e *ProtocolError) IsPermanent() bool {
	return e.Is5xx()
}

// ConnectionError is a transport-level failure: resolving the host, dialing
// the control or data connection, or reading/writing one of their sockets.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("ftp: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ftp: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StateError is returned when an operation that requires a logged-in session
// is invoked on a session that is not logged in.
type StateError struct {
	Op string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("ftp: %s: %v", e.Op, ErrNotLoggedIn)
}

func (e *StateError) Unwrap() error { return ErrNotLoggedIn }

// LocalIOError wraps a failure to open, read, write, seek or stat a local file.
type LocalIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("ftp: local %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }

// protocolError builds a ProtocolError from a reply.
func protocolError(command string, resp *Response) *ProtocolError {
	return &ProtocolError{
		Command:  command,
		Response: resp.Message,
		Code:     resp.Code,
	}
}

// joinErrors merges the non-nil errors in order. A single error is returned
// as is so callers can still type-assert it directly.
func joinErrors(errs ...error) error {
	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if merr == nil {
		return nil
	}
	if len(merr.Errors) == 1 {
		return merr.Errors[0]
	}
	return merr.ErrorOrNil()
}
