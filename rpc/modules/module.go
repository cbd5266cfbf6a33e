package modules

import "fmt"

// QueryErrorKind classifies gateway failures.
type QueryErrorKind int

const (
	// InvalidAddress means the address argument did not parse; no state was read.
	InvalidAddress QueryErrorKind = iota + 1
	// SnapshotUnavailable means the version token names no retained state.
	SnapshotUnavailable
	// BackendFailure means the runtime failed while answering.
	BackendFailure
)

func (k QueryErrorKind) String() string {
	switch k {
	case InvalidAddress:
		return "invalid_address"
	case SnapshotUnavailable:
		return "snapshot_unavailable"
	case BackendFailure:
		return "backend_failure"
	default:
		return "unknown"
	}
}

// Wire codes and messages of gateway errors.
const (
	CodeInvalidAddress = 1
	CodeRuntimeError   = 2

	MessageInvalidAddress = "Invalid Ethereum address"
	MessageRuntimeError   = "Runtime API error"
)

// QueryError is returned by the username gateway. Code and Message are the
// JSON-RPC error fields; Data carries the backend detail for runtime errors.
type QueryError struct {
	Kind    QueryErrorKind
	Code    int
	Message string
	Data    string
	Err     error
}

func (e *QueryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Data != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Data)
	}
	return e.Message
}

func (e *QueryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func invalidAddressError(err error) *QueryError {
	return &QueryError{Kind: InvalidAddress, Code: CodeInvalidAddress, Message: MessageInvalidAddress, Err: err}
}

func runtimeError(kind QueryErrorKind, err error) *QueryError {
	return &QueryError{Kind: kind, Code: CodeRuntimeError, Message: MessageRuntimeError, Data: err.Error(), Err: err}
}
