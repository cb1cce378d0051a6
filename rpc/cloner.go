package rpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	inprocgrpc "github.com/joeycumines/go-inprocgrpc"
)

// Cloner isolates messages crossing the in-process channel by round-tripping
// them through encoding/gob, the same codec bigtrace.EncodeQueryResult uses
// for the serialized result payload those messages carry. inprocgrpc's
// default ProtoCloner requires proto.Message; the bigtrace message structs
// are plain Go structs with no .proto definitions behind them, so CopyFunc
// (which derives Clone from Copy via reflection) is given a gob-based Copy
// instead.
var Cloner = inprocgrpc.CopyFunc(gobCopy)

func gobCopy(out, in any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(in); err != nil {
		return fmt.Errorf("rpc: gob encode: %w", err)
	}
	if err := gob.NewDecoder(&buf).Decode(out); err != nil {
		return fmt.Errorf("rpc: gob decode: %w", err)
	}
	return nil
}
