package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState rejects an operation the current state does not allow
	ErrInvalidState = errors.New("operation not valid in current session state")

	// ErrSessionActive rejects StartSession while a session is live
	ErrSessionActive = errors.New("a capture session is already active")

	// ErrBusy rejects a command while another one awaits its reply
	ErrBusy = errors.New("capture process is busy with another command")

	// ErrSessionClosed is returned to commands pending when the session ends
	ErrSessionClosed = errors.New("capture session closed")

	// ErrProtocolTimeout means no terminal status line arrived in time
	ErrProtocolTimeout = errors.New("capture process did not answer in time")
)

// StateError carries the state an operation was rejected in
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed while session is %s", e.Op, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// LaunchError means the capture process could not be brought to ready
type LaunchError struct {
	Message string
	Cause   error
}

func (e *LaunchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("launch capture process: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("launch capture process: %s", e.Message)
}

func (e *LaunchError) Unwrap() error {
	return e.Cause
}

// NavigationError reports a failed GOTO. The session stays usable.
type NavigationError struct {
	URL     string
	Message string
}

func (e *NavigationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("navigate to %s failed", e.URL)
	}
	return fmt.Sprintf("navigate to %s: %s", e.URL, e.Message)
}

// CaptureError reports a failed capture. The session returns to ready.
type CaptureError struct {
	Message string
	Cause   error
}

func (e *CaptureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("capture failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("capture failed: %s", e.Message)
}

func (e *CaptureError) Unwrap() error {
	return e.Cause
}
