package bigtraceenv

import (
	"github.com/joeycumines/go-bigtrace/async"
)

// Environment is the file/trace source collaborator: it turns a trace path
// into a stream of chunks, or a single error item if the path cannot be
// opened at all.
type Environment interface {
	ReadFile(path string) async.Stream[async.Result[[]byte]]
}
