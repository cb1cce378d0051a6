package bigtrace

// This file holds the logical message shapes exchanged between the
// orchestrator and worker RPCs. They carry no wire encoding requirement of
// their own; package rpc is what puts them on the (in-process)
// grpc.ServiceDesc wire via a hand-written Cloner, the same way a
// protoc-generated message would be put on a real wire.

// TracePoolCreateArgs requests creation of a new, empty trace pool.
type TracePoolCreateArgs struct {
	PoolName string
}

// TracePoolCreateResponse carries the assigned pool id.
type TracePoolCreateResponse struct {
	PoolID string
}

// TracePoolSetTracesArgs assigns the (one-shot) trace set of a pool.
type TracePoolSetTracesArgs struct {
	PoolID string
	Traces []string
}

type TracePoolSetTracesResponse struct{}

// TracePoolQueryArgs runs sql across every trace in a pool.
type TracePoolQueryArgs struct {
	PoolID   string
	SQLQuery string
}

// TracePoolQueryResponse is one item of a TracePoolQuery response stream.
type TracePoolQueryResponse struct {
	Trace  string
	Result []byte
	Status *Status
}

// TracePoolDestroyArgs tears down a pool.
type TracePoolDestroyArgs struct {
	PoolID string
}

type TracePoolDestroyResponse struct{}

// SyncTraceStateArgs tells a worker "the loaded-trace set should be
// exactly this".
type SyncTraceStateArgs struct {
	Traces []string
}

// SyncTraceStateResponse is one item of a SyncTraceState response stream,
// one per trace load outcome.
type SyncTraceStateResponse struct {
	Trace  string
	Status *Status
}

// QueryTraceArgs runs sql against one trace on a single worker.
type QueryTraceArgs struct {
	Trace    string
	SQLQuery string
}

// QueryTraceResponse is one item of a QueryTrace response stream.
type QueryTraceResponse struct {
	Trace  string
	Result []byte
	Status *Status
}
