package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/brepseq/pkg/sequence"
)

// EvalTimeout is the default hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

// Fatal evaluation failures.
var (
	ErrEvalTimeout = errors.New("evaluation timed out")
	ErrSuperseded  = errors.New("evaluation superseded by a newer one")
)

type outcome struct {
	script *sequence.Script
	errs   []EvalError
	err    error
}

// begin opens a new generation and returns it with the limit in force.
func (e *Engine) begin() (uint64, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	return e.generation, e.timeout
}

func (e *Engine) stale(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen != e.generation
}

// await blocks until generation gen reports on ch or limit passes. An
// abandoned interpreter goroutine keeps running; ch must be buffered so
// its late send does not block.
func (e *Engine) await(ch <-chan outcome, gen uint64, limit time.Duration) (*sequence.Script, []EvalError, error) {
	ctx, cancel := context.WithTimeout(context.Background(), limit)
	defer cancel()

	select {
	case o := <-ch:
		if e.stale(gen) {
			return nil, nil, ErrSuperseded
		}
		return o.script, o.errs, o.err
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("%w after %s", ErrEvalTimeout, limit)
	}
}
