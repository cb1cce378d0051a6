package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/bigtrace"
	"github.com/joeycumines/go-bigtrace/orchestrator"
	"github.com/joeycumines/go-bigtrace/traceproc"
	"github.com/joeycumines/go-bigtrace/worker"
)

const (
	workerSyncTraceStateMethod = "/" + WorkerServiceName + "/SyncTraceState"
	workerQueryTraceMethod     = "/" + WorkerServiceName + "/QueryTrace"
)

// WorkerClient implements orchestrator.WorkerClient over a grpc.ClientConnInterface,
// so an Orchestrator can drive a remote (or simply separately-constructed,
// in-process) worker exactly as it drives a local *worker.Worker.
type WorkerClient struct {
	cc   grpc.ClientConnInterface
	pool traceproc.BlockingPool
}

// NewWorkerClient returns a WorkerClient dispatching through cc (typically
// an *inprocgrpc.Channel), running its blocking stream reads on pool.
func NewWorkerClient(cc grpc.ClientConnInterface, pool traceproc.BlockingPool) *WorkerClient {
	return &WorkerClient{cc: cc, pool: pool}
}

func (c *WorkerClient) SyncTraceState(traces []string) async.Stream[worker.SyncItem] {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.cc.NewStream(ctx, &grpc.StreamDesc{StreamName: "SyncTraceState", ServerStreams: true}, workerSyncTraceStateMethod)
	if err != nil {
		cancel()
		return async.StreamOf(worker.SyncItem{Status: statusFromError(err)})
	}
	if err := stream.SendMsg(&bigtrace.SyncTraceStateArgs{Traces: traces}); err != nil {
		cancel()
		return async.StreamOf(worker.SyncItem{Status: statusFromError(err)})
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return async.StreamOf(worker.SyncItem{Status: statusFromError(err)})
	}

	raw := newClientStreamReader[bigtrace.SyncTraceStateResponse](c.pool, stream, cancel)
	return async.MapStream(raw, func(r async.Result[bigtrace.SyncTraceStateResponse]) worker.SyncItem {
		if r.Err != nil {
			return worker.SyncItem{Status: statusFromError(r.Err)}
		}
		return worker.SyncItem{Trace: r.Value.Trace, Status: r.Value.Status}
	})
}

func (c *WorkerClient) QueryTrace(tracePath, sql string) async.Stream[worker.QueryItem] {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.cc.NewStream(ctx, &grpc.StreamDesc{StreamName: "QueryTrace", ServerStreams: true}, workerQueryTraceMethod)
	if err != nil {
		cancel()
		return async.StreamOf(worker.QueryItem{Trace: tracePath, Status: statusFromError(err)})
	}
	if err := stream.SendMsg(&bigtrace.QueryTraceArgs{Trace: tracePath, SQLQuery: sql}); err != nil {
		cancel()
		return async.StreamOf(worker.QueryItem{Trace: tracePath, Status: statusFromError(err)})
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return async.StreamOf(worker.QueryItem{Trace: tracePath, Status: statusFromError(err)})
	}

	raw := newClientStreamReader[bigtrace.QueryTraceResponse](c.pool, stream, cancel)
	return async.MapStream(raw, func(r async.Result[bigtrace.QueryTraceResponse]) worker.QueryItem {
		if r.Err != nil {
			return worker.QueryItem{Trace: tracePath, Status: statusFromError(r.Err)}
		}
		if r.Value.Status != nil {
			return worker.QueryItem{Trace: r.Value.Trace, Status: r.Value.Status}
		}
		result, decErr := bigtrace.DecodeQueryResult(r.Value.Result)
		if decErr != nil {
			return worker.QueryItem{Trace: r.Value.Trace, Status: bigtrace.LoadFailure("decode query result: %v", decErr)}
		}
		return worker.QueryItem{Trace: r.Value.Trace, Result: result}
	})
}

var _ orchestrator.WorkerClient = (*WorkerClient)(nil)
