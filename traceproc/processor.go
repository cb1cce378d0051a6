package traceproc

// Processor is the opaque trace-processing engine a Wrapper serializes
// access to: parse trace bytes into it, then run SQL queries against it.
// Its internals (the SQL engine itself) are out of scope here — this
// package only specifies the contract Wrapper drives it through.
type Processor interface {
	// Parse feeds one chunk of trace bytes into the processor. Chunks must
	// be fed in order; Parse is never called concurrently with itself or
	// with any other Processor method on the same instance.
	Parse(chunk []byte) error
	// NotifyEndOfFile tells the processor every chunk has been fed.
	NotifyEndOfFile() error
	// ExecuteQuery compiles and begins executing sql, returning an
	// iterator over its result rows.
	ExecuteQuery(sql string) (QueryIterator, error)
	// Interrupt asks whatever query is currently executing to stop as
	// soon as it safely can. Best-effort: it may take an arbitrary amount
	// of time for the in-flight SerializeNext call to actually return.
	// Safe to call at any time, including when nothing is running.
	Interrupt()
	// RestoreInitialState discards any state queries have added (tables,
	// views, settings), returning the processor to the state it was in
	// right after the trace finished loading. Only invoked between queries
	// on a Stateless Wrapper.
	RestoreInitialState() error
}

// QueryIterator serializes the rows of one query's result set in batches.
type QueryIterator interface {
	// SerializeNext returns the next batch of result rows and whether
	// further batches remain. Each call may block.
	SerializeNext() (rows [][]byte, hasMore bool, err error)
}
