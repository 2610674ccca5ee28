// Package script provides the Lisp scripting engine for stratum.
// It wraps zygomys in a sandboxed environment and produces a Drawing
// from user source code, so parametric excavation layouts can be
// scripted instead of drawn by hand.
package script

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/geomech/stratum/pkg/dwg"
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

// Engine wraps the zygomys interpreter for drawing scripts.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	mu         sync.Mutex
	generation uint64
}

// NewEngine creates a new Engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate takes Lisp source code and produces a new Drawing.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
//
// Return semantics:
//   - On success: returns drawing + nil errors + nil error
//   - On parse/eval failure: returns nil drawing + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*dwg.Drawing, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		d, evalErrs, err := e.evaluate(source)
		ch <- evalResult{drawing: d, errors: evalErrs, err: err}
	}()

	return waitWithTimeout(ch, gen, &e.mu, &e.generation)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*dwg.Drawing, []EvalError, error) {
	// Empty source is a valid program that produces an empty drawing.
	if strings.TrimSpace(source) == "" {
		return dwg.New(), nil, nil
	}

	// Create a fresh sandboxed zygomys environment.
	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := &builder{}
	registerBuiltins(env, b)

	// Load and compile the preprocessed source into bytecode.
	err := env.LoadString(preprocessSource(source))
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	// Execute the compiled bytecode. Builtins append entities to the
	// builder as they run.
	_, err = env.Run()
	if err != nil {
		return nil, parseZygomysError(err), nil
	}

	if len(b.entities) == 0 {
		return dwg.New(), nil, nil
	}

	d, err := dwg.FromEntities(b.entities)
	if err != nil {
		// Every scripted entity was rejected by validation.
		var parseErr *dwg.ParseError
		if errors.As(err, &parseErr) {
			evalErrs := make([]EvalError, 0, len(parseErr.Reasons))
			for _, reason := range parseErr.Reasons {
				evalErrs = append(evalErrs, EvalError{Message: reason})
			}
			return nil, evalErrs, nil
		}
		return nil, nil, err
	}
	return d, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// Try to extract line numbers from the error message.
	// zygomys formats parse errors as "Error on line N: <details>\n"
	if m := linePattern.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		detail := strings.TrimSpace(m[2])
		return []EvalError{{
			Line:    line,
			Col:     0,
			Message: detail,
		}}
	}

	if m := linePatternShort.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		detail := strings.TrimSpace(m[2])
		return []EvalError{{
			Line:    line,
			Col:     0,
			Message: detail,
		}}
	}

	// Fallback: no line info available.
	return []EvalError{{
		Line:    0,
		Col:     0,
		Message: strings.TrimSpace(msg),
	}}
}
