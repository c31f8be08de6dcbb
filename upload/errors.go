package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFile is returned before any network call for a zero byte file.
	ErrEmptyFile = errors.New("file is empty")

	// ErrNotRegularFile is returned for directories, devices and the like.
	ErrNotRegularFile = errors.New("not a regular file")

	// ErrMissingField marks a response lacking a field the protocol requires.
	ErrMissingField = errors.New("missing field in response")

	// ErrAllChunksFailed is returned when no chunk of a multipart upload
	// was accepted by the storage node.
	ErrAllChunksFailed = errors.New("all chunks failed")

	// ErrIncompleteUpload is returned when some chunks failed and partial
	// uploads are not allowed.
	ErrIncompleteUpload = errors.New("incomplete upload")

	// ErrUnexpectedStatus marks a response whose HTTP status is not a
	// success status for the phase.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrRemote marks a response carrying an application level error.
	ErrRemote = errors.New("remote error")
)

// Phase names used in errors and logs.
const (
	PhaseApply    = "apply"
	PhaseUpload   = "upload"
	PhaseInit     = "init"
	PhaseTransfer = "transfer"
	PhaseFinish   = "finish"
	PhaseCommit   = "commit"
)

// ProtocolError describes a failed call in enough detail to diagnose a
// signature mismatch: the phase, the HTTP status, the remote error code and
// the raw response body.
type ProtocolError struct {
	Phase      string
	StatusCode int
	Code       string
	Message    string
	Body       string
	Err        error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s: status %d", e.Phase, e.StatusCode)
	if e.Code != "" {
		msg += fmt.Sprintf(": %s", e.Code)
	}
	if e.Message != "" {
		msg += fmt.Sprintf(": %s", e.Message)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Body != "" {
		msg += fmt.Sprintf(" (body: %s)", e.Body)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
