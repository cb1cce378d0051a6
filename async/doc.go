// Package async provides the cooperative, poll-based concurrency primitives
// that the bigtrace query pipeline is built on: Future[T] and Stream[T],
// a readiness-signalling Channel[T], a handful of combinators for composing
// them, and a Spawner that drives a Future/Stream to completion on a
// caller-supplied TaskRunner.
//
// Nothing in this package blocks. A Future or Stream is polled with a
// PollContext; it either makes progress and returns a value, or it
// registers interest in one or more readiness handles and returns Pending.
// The caller (almost always the Spawner) is responsible for re-polling once
// the runner reports one of those handles ready. All but Channel's internal
// bookkeeping is single-threaded by convention: mutation of combinator and
// driver state happens only on the TaskRunner's own goroutine.
package async
