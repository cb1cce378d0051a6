package rpc

import (
	"google.golang.org/grpc"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/bigtrace"
	"github.com/joeycumines/go-bigtrace/worker"
)

// WorkerServiceName is the full service name SyncTraceState and QueryTrace
// are registered under.
const WorkerServiceName = "bigtrace.Worker"

// WorkerServer is the server-side contract package rpc dispatches incoming
// worker RPCs against, equivalent to what protoc-gen-go-grpc would produce
// from a bigtrace/worker.proto.
type WorkerServer interface {
	SyncTraceState(*bigtrace.SyncTraceStateArgs, Worker_SyncTraceStateServer) error
	QueryTrace(*bigtrace.QueryTraceArgs, Worker_QueryTraceServer) error
}

// Worker_SyncTraceStateServer is the server-streaming handle a WorkerServer
// implementation sends SyncTraceStateResponse items on.
type Worker_SyncTraceStateServer interface {
	Send(*bigtrace.SyncTraceStateResponse) error
	grpc.ServerStream
}

type workerSyncTraceStateServer struct{ grpc.ServerStream }

func (s *workerSyncTraceStateServer) Send(m *bigtrace.SyncTraceStateResponse) error {
	return s.ServerStream.SendMsg(m)
}

// Worker_QueryTraceServer is the server-streaming handle a WorkerServer
// implementation sends QueryTraceResponse items on.
type Worker_QueryTraceServer interface {
	Send(*bigtrace.QueryTraceResponse) error
	grpc.ServerStream
}

type workerQueryTraceServer struct{ grpc.ServerStream }

func (s *workerQueryTraceServer) Send(m *bigtrace.QueryTraceResponse) error {
	return s.ServerStream.SendMsg(m)
}

func workerSyncTraceStateHandler(srv any, stream grpc.ServerStream) error {
	m := new(bigtrace.SyncTraceStateArgs)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(WorkerServer).SyncTraceState(m, &workerSyncTraceStateServer{stream})
}

func workerQueryTraceHandler(srv any, stream grpc.ServerStream) error {
	m := new(bigtrace.QueryTraceArgs)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(WorkerServer).QueryTrace(m, &workerQueryTraceServer{stream})
}

// WorkerServiceDesc is the grpc.ServiceDesc a Channel registers a
// WorkerServer implementation against.
var WorkerServiceDesc = grpc.ServiceDesc{
	ServiceName: WorkerServiceName,
	HandlerType: (*WorkerServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SyncTraceState",
			Handler:       workerSyncTraceStateHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "QueryTrace",
			Handler:       workerQueryTraceHandler,
			ServerStreams: true,
		},
	},
	Metadata: "bigtrace/worker.proto",
}

// RegisterWorkerServer registers srv against registrar (typically an
// *inprocgrpc.Channel).
func RegisterWorkerServer(registrar grpc.ServiceRegistrar, srv WorkerServer) {
	registrar.RegisterService(&WorkerServiceDesc, srv)
}

// workerServer adapts a *worker.Worker to WorkerServer, forwarding each
// response stream by spawning it on runner and draining the resulting
// Channel exactly as the drainStream test helpers do — the handler
// goroutine inprocgrpc runs it on is exactly the "consumer goroutine that is
// not itself driving a poll loop" Channel.Recv documents itself for.
type workerServer struct {
	w      *worker.Worker
	runner async.TaskRunner
}

// NewWorkerServer returns a WorkerServer backed by w, spawning its response
// streams on runner.
func NewWorkerServer(w *worker.Worker, runner async.TaskRunner) WorkerServer {
	return &workerServer{w: w, runner: runner}
}

func (s *workerServer) SyncTraceState(args *bigtrace.SyncTraceStateArgs, stream Worker_SyncTraceStateServer) error {
	rsh, err := async.SpawnStream(s.runner, s.w.SyncTraceState(args.Traces))
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
		if err := stream.Send(&bigtrace.SyncTraceStateResponse{Trace: item.Trace, Status: item.Status}); err != nil {
			return err
		}
	}
}

func (s *workerServer) QueryTrace(args *bigtrace.QueryTraceArgs, stream Worker_QueryTraceServer) error {
	rsh, err := async.SpawnStream(s.runner, s.w.QueryTrace(args.Trace, args.SQLQuery))
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
		resp := &bigtrace.QueryTraceResponse{Trace: item.Trace, Status: item.Status}
		if item.Status == nil {
			resp.Result = bigtrace.EncodeQueryResult(item.Result)
		}
		if err := stream.Send(resp); err != nil {
			return err
		}
	}
}

var _ WorkerServer = (*workerServer)(nil)
