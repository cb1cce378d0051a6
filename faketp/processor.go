// Package faketp provides a minimal in-memory traceproc.Processor for
// tests: no real SQL engine, just enough controllable behaviour (canned
// rows, injectable errors, an interruptible artificial delay) to exercise
// Wrapper's sequencing, single-flight, statefulness, and cancellation
// logic.
package faketp

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-bigtrace/traceproc"
)

// ErrInterrupted is returned by SerializeNext once Interrupt has been
// called.
var ErrInterrupted = errors.New("faketp: interrupted")

// Processor is a controllable fake. Zero value is not usable; use New.
type Processor struct {
	mu        sync.Mutex
	chunks    [][]byte
	eofCalled bool

	ParseErr        error
	EOFErr          error
	ExecuteQueryErr error
	RestoreErr      error

	// Rows is the full result set ExecuteQuery will serve, split into
	// batches of BatchSize by SerializeNext.
	Rows      [][]byte
	BatchSize int
	// StepDelay, if set, makes each SerializeNext call sleep in small
	// increments before returning, checking for Interrupt between each
	// one, to exercise cancellation.
	StepDelay time.Duration

	interrupted  atomic.Bool
	restoreCalls atomic.Int32
	executeCalls atomic.Int32
}

// New returns a Processor with no rows and a batch size of 1.
func New() *Processor {
	return &Processor{BatchSize: 1}
}

func (p *Processor) Parse(chunk []byte) error {
	if p.ParseErr != nil {
		return p.ParseErr
	}
	cp := append([]byte(nil), chunk...)
	p.mu.Lock()
	p.chunks = append(p.chunks, cp)
	p.mu.Unlock()
	return nil
}

func (p *Processor) NotifyEndOfFile() error {
	p.mu.Lock()
	p.eofCalled = true
	p.mu.Unlock()
	return p.EOFErr
}

// Chunks returns every chunk handed to Parse, in order.
func (p *Processor) Chunks() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.chunks...)
}

// EndOfFileNotified reports whether NotifyEndOfFile has been called.
func (p *Processor) EndOfFileNotified() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eofCalled
}

func (p *Processor) ExecuteQuery(sql string) (traceproc.QueryIterator, error) {
	p.executeCalls.Add(1)
	if p.ExecuteQueryErr != nil {
		return nil, p.ExecuteQueryErr
	}
	p.interrupted.Store(false)
	batch := p.BatchSize
	if batch < 1 {
		batch = 1
	}
	return &iterator{p: p, rows: p.Rows, batchSize: batch}, nil
}

func (p *Processor) Interrupt() {
	p.interrupted.Store(true)
}

func (p *Processor) RestoreInitialState() error {
	p.restoreCalls.Add(1)
	return p.RestoreErr
}

// RestoreCalls reports how many times RestoreInitialState has run.
func (p *Processor) RestoreCalls() int32 { return p.restoreCalls.Load() }

// ExecuteCalls reports how many times ExecuteQuery has run.
func (p *Processor) ExecuteCalls() int32 { return p.executeCalls.Load() }

type iterator struct {
	p         *Processor
	rows      [][]byte
	batchSize int
}

func (it *iterator) SerializeNext() ([][]byte, bool, error) {
	if it.p.StepDelay > 0 {
		const tick = time.Millisecond
		for waited := time.Duration(0); waited < it.p.StepDelay; waited += tick {
			if it.p.interrupted.Load() {
				return nil, false, ErrInterrupted
			}
			time.Sleep(tick)
		}
	}
	if it.p.interrupted.Load() {
		return nil, false, ErrInterrupted
	}
	n := it.batchSize
	if n > len(it.rows) {
		n = len(it.rows)
	}
	batch := it.rows[:n]
	it.rows = it.rows[n:]
	return batch, len(it.rows) > 0, nil
}
