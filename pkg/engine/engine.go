// Package engine evaluates Lisp source into a construction script.
// It wraps zygomys in a sandboxed environment whose builtins append one
// script step per call.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/brepseq/pkg/sequence"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal warning about the produced script.
type EvalWarning struct {
	Line    int
	Col     int
	Message string
	Step    string
}

// EvalResult bundles the full output of an evaluation.
type EvalResult struct {
	Script   *sequence.Script
	Errors   []EvalError
	Warnings []EvalWarning
}

// Engine wraps the zygomys interpreter.
// Each call to Evaluate creates a fresh sandboxed environment. A call that
// starts while another is in flight supersedes it: the older call returns
// ErrSuperseded. Callers evaluating independent sources in parallel use
// one Engine each.
type Engine struct {
	mu         sync.Mutex
	generation uint64
	timeout    time.Duration
}

// NewEngine creates a new Engine with the default timeout.
func NewEngine() *Engine {
	return &Engine{timeout: EvalTimeout}
}

// SetTimeout changes the hard limit for one evaluation. Non-positive
// values restore EvalTimeout.
func (e *Engine) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = EvalTimeout
	}
	e.mu.Lock()
	e.timeout = d
	e.mu.Unlock()
}

// Evaluate takes Lisp source code and produces a script.
//
// Return semantics:
//   - On success: returns script + nil errors + nil error
//   - On parse/eval failure: returns nil script + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*sequence.Script, []EvalError, error) {
	gen, limit := e.begin()
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		sc, evalErrs, err := e.evaluate(source)
		ch <- outcome{script: sc, errs: evalErrs, err: err}
	}()

	return e.await(ch, gen, limit)
}

// Check evaluates source and validates the resulting script. Blocking
// validation findings are reported as errors, advisory ones as warnings.
func (e *Engine) Check(source string) (*EvalResult, error) {
	sc, evalErrs, err := e.Evaluate(source)
	if err != nil {
		return nil, err
	}
	res := &EvalResult{Script: sc, Errors: evalErrs}
	if sc == nil {
		return res, nil
	}
	for _, f := range sequence.Validate(sc) {
		msg := f.Message
		if f.Index >= 0 {
			msg = fmt.Sprintf("step %d (%s): %s", f.Index, f.Step, f.Message)
		}
		if f.Severity == sequence.SeverityWarning {
			res.Warnings = append(res.Warnings, EvalWarning{Message: msg, Step: f.Step})
			continue
		}
		res.Errors = append(res.Errors, EvalError{Message: msg})
	}
	return res, nil
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*sequence.Script, []EvalError, error) {
	// Empty source is a valid program that produces an empty script.
	if strings.TrimSpace(source) == "" {
		return &sequence.Script{}, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	sc := &sequence.Script{}
	registerBuiltins(env, sc)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return sc, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, p := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := p.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
