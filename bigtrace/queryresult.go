package bigtrace

import (
	"bytes"
	"encoding/gob"
	"errors"
)

// QueryResult is the processor-level outcome of executing one query: a
// sequence of raw row chunks on success, or an error describing why the
// query itself failed. This is never a Status/RPC-level failure — the
// wrapper always resolves its query stream as ordinary items, encoding a
// query failure inside the item's payload instead of failing the RPC call.
type QueryResult struct {
	Rows [][]byte
	Err  error
}

type wireQueryResult struct {
	Rows   [][]byte
	HasErr bool
	ErrMsg string
}

// EncodeQueryResult serializes r into the opaque "result bytes" carried by
// TracePoolQueryResponse/QueryTraceResponse. There is no requirement on
// wire encoding; gob is used here purely because it is a single-call round
// trip with no external schema to maintain.
func EncodeQueryResult(r QueryResult) []byte {
	w := wireQueryResult{Rows: r.Rows}
	if r.Err != nil {
		w.HasErr = true
		w.ErrMsg = r.Err.Error()
	}
	var buf bytes.Buffer
	// gob.Encode on these concrete, always-present field types cannot
	// fail.
	_ = gob.NewEncoder(&buf).Encode(w)
	return buf.Bytes()
}

// DecodeQueryResult is the inverse of EncodeQueryResult.
func DecodeQueryResult(data []byte) (QueryResult, error) {
	var w wireQueryResult
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return QueryResult{}, err
	}
	r := QueryResult{Rows: w.Rows}
	if w.HasErr {
		r.Err = errors.New(w.ErrMsg)
	}
	return r, nil
}
