// File: internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
)

// ErrCancelled is the distinct terminal outcome for a cancelled command. It
// must never be conflated with a failure: callers translate it to the
// Cancelled state, not Failed.
var ErrCancelled = errors.New("command cancelled")

// CancellationMarker is the literal chunk emitted when a turn ends due to
// cancellation. Downstream consumers key off this exact string.
const CancellationMarker = "Command cancelled"

// ErrorCode is a string type used for structured error reporting from tool
// execution. Using a custom type ensures only predefined constants appear
// where an ErrorCode is expected.
type ErrorCode string

const (
	// ErrCodeUnknownAction means the model requested an action outside the
	// closed action set.
	ErrCodeUnknownAction ErrorCode = "UNKNOWN_ACTION_TYPE"
	// ErrCodeInvalidParameters means required parameters were missing or
	// malformed. Raised before any OS interaction.
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	// ErrCodeInputFailure means the OS input layer rejected an injection.
	ErrCodeInputFailure ErrorCode = "INPUT_FAILURE"
	// ErrCodeCaptureFailure means the screenshot pipeline failed.
	ErrCodeCaptureFailure ErrorCode = "CAPTURE_FAILURE"
)

// ActionError is the structured failure for one tool action. The message is
// written for the model to read; the code is for logs and tests.
type ActionError struct {
	Code    ErrorCode
	Action  string
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

func (e *ActionError) Unwrap() error { return e.Err }

func newActionError(code ErrorCode, action string, message string, cause error) *ActionError {
	return &ActionError{Code: code, Action: action, Message: message, Err: cause}
}

// actionErrorCode extracts the structured code from err, or
// ErrCodeInputFailure when err is not an ActionError.
func actionErrorCode(err error) ErrorCode {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeInputFailure
}
