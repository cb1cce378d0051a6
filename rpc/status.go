package rpc

import (
	"google.golang.org/grpc/status"

	"github.com/joeycumines/go-bigtrace/bigtrace"
)

// grpcError converts a *bigtrace.Status into the *status.Status-backed error
// grpc.ServiceDesc handlers are expected to return, nil for a nil Status.
func grpcError(s *bigtrace.Status) error {
	if s == nil {
		return nil
	}
	return status.Error(s.Code, s.Message)
}

// statusFromError converts any RPC-path error (a *status.Status error from a
// failed handler, a transport error from a dropped loop) into a
// *bigtrace.Status, so a client-side failure surfaces through exactly the
// same Status type a local, in-process call would have returned.
func statusFromError(err error) *bigtrace.Status {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	return &bigtrace.Status{Code: st.Code(), Message: st.Message()}
}
