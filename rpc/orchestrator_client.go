package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/bigtrace"
	"github.com/joeycumines/go-bigtrace/traceproc"
)

const (
	orchestratorTracePoolCreateMethod    = "/" + OrchestratorServiceName + "/TracePoolCreate"
	orchestratorTracePoolSetTracesMethod = "/" + OrchestratorServiceName + "/TracePoolSetTraces"
	orchestratorTracePoolDestroyMethod   = "/" + OrchestratorServiceName + "/TracePoolDestroy"
	orchestratorTracePoolQueryMethod     = "/" + OrchestratorServiceName + "/TracePoolQuery"
)

// OrchestratorClient is a thin wrapper around a grpc.ClientConnInterface
// (typically an *inprocgrpc.Channel) exposing the Orchestrator's RPC surface
// to callers outside the orchestrator process itself, the same role
// WorkerClient plays for the Worker service.
type OrchestratorClient struct {
	cc   grpc.ClientConnInterface
	pool traceproc.BlockingPool
}

// NewOrchestratorClient returns an OrchestratorClient dispatching through cc,
// running TracePoolQuery's blocking stream reads on pool.
func NewOrchestratorClient(cc grpc.ClientConnInterface, pool traceproc.BlockingPool) *OrchestratorClient {
	return &OrchestratorClient{cc: cc, pool: pool}
}

func (c *OrchestratorClient) TracePoolCreate(ctx context.Context, args bigtrace.TracePoolCreateArgs) (bigtrace.TracePoolCreateResponse, error) {
	resp := new(bigtrace.TracePoolCreateResponse)
	if err := c.cc.Invoke(ctx, orchestratorTracePoolCreateMethod, &args, resp); err != nil {
		return bigtrace.TracePoolCreateResponse{}, err
	}
	return *resp, nil
}

func (c *OrchestratorClient) TracePoolSetTraces(ctx context.Context, args bigtrace.TracePoolSetTracesArgs) (bigtrace.TracePoolSetTracesResponse, error) {
	resp := new(bigtrace.TracePoolSetTracesResponse)
	if err := c.cc.Invoke(ctx, orchestratorTracePoolSetTracesMethod, &args, resp); err != nil {
		return bigtrace.TracePoolSetTracesResponse{}, err
	}
	return *resp, nil
}

func (c *OrchestratorClient) TracePoolDestroy(ctx context.Context, args bigtrace.TracePoolDestroyArgs) (bigtrace.TracePoolDestroyResponse, error) {
	resp := new(bigtrace.TracePoolDestroyResponse)
	if err := c.cc.Invoke(ctx, orchestratorTracePoolDestroyMethod, &args, resp); err != nil {
		return bigtrace.TracePoolDestroyResponse{}, err
	}
	return *resp, nil
}

// TracePoolQuery streams query results for args. A failure establishing or
// sending on the stream surfaces as a single item carrying a non-nil Status,
// mirroring how orchestrator.Orchestrator.TracePoolQuery reports a failure
// that occurs before any worker response arrives.
func (c *OrchestratorClient) TracePoolQuery(ctx context.Context, args bigtrace.TracePoolQueryArgs) async.Stream[bigtrace.TracePoolQueryResponse] {
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := c.cc.NewStream(streamCtx, &grpc.StreamDesc{StreamName: "TracePoolQuery", ServerStreams: true}, orchestratorTracePoolQueryMethod)
	if err != nil {
		cancel()
		return async.StreamOf(bigtrace.TracePoolQueryResponse{Status: statusFromError(err)})
	}
	if err := stream.SendMsg(&args); err != nil {
		cancel()
		return async.StreamOf(bigtrace.TracePoolQueryResponse{Status: statusFromError(err)})
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return async.StreamOf(bigtrace.TracePoolQueryResponse{Status: statusFromError(err)})
	}

	raw := newClientStreamReader[bigtrace.TracePoolQueryResponse](c.pool, stream, cancel)
	return async.MapStream(raw, func(r async.Result[bigtrace.TracePoolQueryResponse]) bigtrace.TracePoolQueryResponse {
		if r.Err != nil {
			return bigtrace.TracePoolQueryResponse{Status: statusFromError(r.Err)}
		}
		return r.Value
	})
}
