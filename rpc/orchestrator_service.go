package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/bigtrace"
	"github.com/joeycumines/go-bigtrace/orchestrator"
)

// OrchestratorServiceName is the full service name the TracePool* RPCs are
// registered under.
const OrchestratorServiceName = "bigtrace.Orchestrator"

// OrchestratorServer is the server-side contract package rpc dispatches
// incoming orchestrator RPCs against.
type OrchestratorServer interface {
	TracePoolCreate(context.Context, *bigtrace.TracePoolCreateArgs) (*bigtrace.TracePoolCreateResponse, error)
	TracePoolSetTraces(context.Context, *bigtrace.TracePoolSetTracesArgs) (*bigtrace.TracePoolSetTracesResponse, error)
	TracePoolDestroy(context.Context, *bigtrace.TracePoolDestroyArgs) (*bigtrace.TracePoolDestroyResponse, error)
	TracePoolQuery(*bigtrace.TracePoolQueryArgs, Orchestrator_TracePoolQueryServer) error
}

// Orchestrator_TracePoolQueryServer is the server-streaming handle a
// OrchestratorServer implementation sends TracePoolQueryResponse items on.
type Orchestrator_TracePoolQueryServer interface {
	Send(*bigtrace.TracePoolQueryResponse) error
	grpc.ServerStream
}

type orchestratorTracePoolQueryServer struct{ grpc.ServerStream }

func (s *orchestratorTracePoolQueryServer) Send(m *bigtrace.TracePoolQueryResponse) error {
	return s.ServerStream.SendMsg(m)
}

func orchestratorTracePoolCreateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(bigtrace.TracePoolCreateArgs)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrchestratorServer).TracePoolCreate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OrchestratorServiceName + "/TracePoolCreate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrchestratorServer).TracePoolCreate(ctx, req.(*bigtrace.TracePoolCreateArgs))
	}
	return interceptor(ctx, in, info, handler)
}

func orchestratorTracePoolSetTracesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(bigtrace.TracePoolSetTracesArgs)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrchestratorServer).TracePoolSetTraces(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OrchestratorServiceName + "/TracePoolSetTraces"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrchestratorServer).TracePoolSetTraces(ctx, req.(*bigtrace.TracePoolSetTracesArgs))
	}
	return interceptor(ctx, in, info, handler)
}

func orchestratorTracePoolDestroyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(bigtrace.TracePoolDestroyArgs)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrchestratorServer).TracePoolDestroy(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OrchestratorServiceName + "/TracePoolDestroy"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrchestratorServer).TracePoolDestroy(ctx, req.(*bigtrace.TracePoolDestroyArgs))
	}
	return interceptor(ctx, in, info, handler)
}

func orchestratorTracePoolQueryHandler(srv any, stream grpc.ServerStream) error {
	m := new(bigtrace.TracePoolQueryArgs)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(OrchestratorServer).TracePoolQuery(m, &orchestratorTracePoolQueryServer{stream})
}

// OrchestratorServiceDesc is the grpc.ServiceDesc a Channel registers an
// OrchestratorServer implementation against.
var OrchestratorServiceDesc = grpc.ServiceDesc{
	ServiceName: OrchestratorServiceName,
	HandlerType: (*OrchestratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "TracePoolCreate", Handler: orchestratorTracePoolCreateHandler},
		{MethodName: "TracePoolSetTraces", Handler: orchestratorTracePoolSetTracesHandler},
		{MethodName: "TracePoolDestroy", Handler: orchestratorTracePoolDestroyHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "TracePoolQuery",
			Handler:       orchestratorTracePoolQueryHandler,
			ServerStreams: true,
		},
	},
	Metadata: "bigtrace/orchestrator.proto",
}

// RegisterOrchestratorServer registers srv against registrar (typically an
// *inprocgrpc.Channel).
func RegisterOrchestratorServer(registrar grpc.ServiceRegistrar, srv OrchestratorServer) {
	registrar.RegisterService(&OrchestratorServiceDesc, srv)
}

// orchestratorServer adapts an *orchestrator.Orchestrator to
// OrchestratorServer. The three bookkeeping RPCs delegate directly, since
// Orchestrator already makes them safe to call from any goroutine;
// TracePoolQuery spawns its response stream on runner and drains it the
// same way workerServer does.
type orchestratorServer struct {
	o      *orchestrator.Orchestrator
	runner async.TaskRunner
}

// NewOrchestratorServer returns an OrchestratorServer backed by o, spawning
// TracePoolQuery's response stream on runner.
func NewOrchestratorServer(o *orchestrator.Orchestrator, runner async.TaskRunner) OrchestratorServer {
	return &orchestratorServer{o: o, runner: runner}
}

func (s *orchestratorServer) TracePoolCreate(_ context.Context, args *bigtrace.TracePoolCreateArgs) (*bigtrace.TracePoolCreateResponse, error) {
	resp, st := s.o.TracePoolCreate(*args)
	if st != nil {
		return nil, grpcError(st)
	}
	return &resp, nil
}

func (s *orchestratorServer) TracePoolSetTraces(_ context.Context, args *bigtrace.TracePoolSetTracesArgs) (*bigtrace.TracePoolSetTracesResponse, error) {
	resp, st := s.o.TracePoolSetTraces(*args)
	if st != nil {
		return nil, grpcError(st)
	}
	return &resp, nil
}

func (s *orchestratorServer) TracePoolDestroy(_ context.Context, args *bigtrace.TracePoolDestroyArgs) (*bigtrace.TracePoolDestroyResponse, error) {
	resp, st := s.o.TracePoolDestroy(*args)
	if st != nil {
		return nil, grpcError(st)
	}
	return &resp, nil
}

func (s *orchestratorServer) TracePoolQuery(args *bigtrace.TracePoolQueryArgs, stream Orchestrator_TracePoolQueryServer) error {
	rsh, err := async.SpawnStream(s.runner, s.o.TracePoolQuery(*args))
	if err != nil {
		return err
	}
	defer rsh.Close()

	ctx := stream.Context()
	for {
		item, ok, err := rsh.Channel().Recv(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		item := item
		if err := stream.Send(&item); err != nil {
			return err
		}
	}
}

var _ OrchestratorServer = (*orchestratorServer)(nil)
