// Package rpc puts the orchestrator/worker message contracts from package
// bigtrace onto the wire as real grpc.ServiceDesc/grpc.StreamDesc traffic,
// dispatched in-process via go-inprocgrpc. It supplies the three pieces
// inprocgrpc.Channel needs that a protoc-generated stub would otherwise
// provide: an inprocgrpc.Loop adapter over *eventloop.Loop, a Cloner that
// isolates messages by round-tripping them through encoding/gob instead of
// requiring proto.Message, and the service descriptors plus client/server
// glue connecting orchestrator.Orchestrator and worker.Worker to that
// transport.
package rpc
