package bigtrace

import (
	"fmt"

	"google.golang.org/grpc/codes"
)

// Code classifies a Status. It is grpc/codes.Code directly: the
// orchestrator/worker RPC surface is real gRPC (see package rpc), so
// reusing its status codes rather than inventing a parallel taxonomy means
// every Status converts to a *status.Status for free.
type Code = codes.Code

const (
	CodeOK              = codes.OK
	CodeNotFound        = codes.NotFound
	CodeAlreadyExists   = codes.AlreadyExists
	CodeInvalidArgument = codes.InvalidArgument
	// CodeInFlight has no dedicated gRPC code; codes.Aborted is the
	// closest standard meaning ("operation aborted, typically due to a
	// concurrency issue").
	CodeInFlight = codes.Aborted
	// CodeLoadFailure has no dedicated gRPC code either; codes.Internal
	// covers "processor failed to parse/ingest the trace bytes".
	CodeLoadFailure = codes.Internal
)

// Status is an orchestrator/worker-level precondition failure: NotFound,
// AlreadyExists, InvalidArgument, InFlight, or LoadFailure. It is distinct
// from a processor-level query error, which is never a Status — those are
// serialized inside a QueryResult's Err field, carried as an ordinary
// stream item rather than failing the RPC.
type Status struct {
	Code    Code
	Message string
}

func (s *Status) Error() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

// OK reports whether s represents success (nil is success).
func (s *Status) OK() bool {
	return s == nil || s.Code == CodeOK
}

func newStatus(code Code, format string, args ...any) *Status {
	return &Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Status {
	return newStatus(CodeNotFound, format, args...)
}

func AlreadyExists(format string, args ...any) *Status {
	return newStatus(CodeAlreadyExists, format, args...)
}

func InvalidArgument(format string, args ...any) *Status {
	return newStatus(CodeInvalidArgument, format, args...)
}

func InFlight(format string, args ...any) *Status {
	return newStatus(CodeInFlight, format, args...)
}

func LoadFailure(format string, args ...any) *Status {
	return newStatus(CodeLoadFailure, format, args...)
}

// FromError converts any error into a *Status, defaulting to
// codes.Unknown for errors that are not already a *Status.
func FromError(err error) *Status {
	if err == nil {
		return nil
	}
	if s, ok := err.(*Status); ok {
		return s
	}
	return &Status{Code: codes.Unknown, Message: err.Error()}
}
