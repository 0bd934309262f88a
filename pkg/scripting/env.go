package scripting

import (
	"errors"
	"fmt"

	"go.starlark.net/starlark"
)

// Predeclared names available to every mission chunk. These must be known at
// chunk compile time, so the set is fixed here.
var predeclaredNames = map[string]bool{
	"misn":   true,
	"player": true,
	"mem":    true,
}

// ErrNoEntry is returned by Call when the chunk does not define the requested
// entry point.
var ErrNoEntry = errors.New("entry point not defined")

// ErrClosed is returned when an operation is attempted on a freed environment.
var ErrClosed = errors.New("environment already freed")

// Chunk is a loaded-but-not-executed scripting unit. It is compiled once at
// catalog build time and re-executed per environment.
type Chunk struct {
	program  *starlark.Program
	filename string
}

// Filename returns the source file the chunk was compiled from.
func (c *Chunk) Filename() string {
	return c.filename
}

// CompileChunk compiles scripting source into a reusable chunk.
func CompileChunk(filename, src string) (*Chunk, error) {
	_, program, err := starlark.SourceProgram(filename, src, func(name string) bool {
		return predeclaredNames[name]
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", filename, err)
	}
	return &Chunk{program: program, filename: filename}, nil
}

// Env is a scripting environment bound 1:1 to a single mission instance. It
// owns a persistent "mem" table and the globals produced by executing the
// mission chunk. An Env must be freed exactly once with Close.
type Env struct {
	name    string
	thread  *starlark.Thread
	globals starlark.StringDict
	mem     *starlark.Dict
	extra   starlark.StringDict
	steps   uint64
	closed  bool
}

// NewEnv allocates a fresh environment. The extra dict supplies the "misn"
// and "player" predeclared values; the "mem" table is created here and owned
// by the environment.
func NewEnv(name string, extra starlark.StringDict, maxSteps uint64) *Env {
	e := &Env{
		name:  name,
		mem:   starlark.NewDict(8),
		extra: extra,
		steps: maxSteps,
	}
	e.thread = e.newThread()
	return e
}

func (e *Env) newThread() *starlark.Thread {
	t := &starlark.Thread{
		Name: e.name,
		Print: func(_ *starlark.Thread, msg string) {
			// Mission scripts have no console; print is a no-op.
		},
	}
	if e.steps > 0 {
		t.SetMaxExecutionSteps(e.steps)
	}
	return t
}

// predeclared assembles the predeclared dict for chunk execution.
func (e *Env) predeclared() starlark.StringDict {
	d := starlark.StringDict{"mem": e.mem}
	for k, v := range e.extra {
		d[k] = v
	}
	return d
}

// LoadChunk executes the chunk in this environment, defining its entry
// points. Safe to call once per environment.
func (e *Env) LoadChunk(chunk *Chunk) error {
	if e.closed {
		return ErrClosed
	}
	globals, err := chunk.program.Init(e.thread, e.predeclared())
	if err != nil {
		return fmt.Errorf("init %s: %w", chunk.filename, err)
	}
	e.globals = globals
	return nil
}

// HasEntry reports whether the chunk defined a callable with the given name.
func (e *Env) HasEntry(name string) bool {
	if e.closed || e.globals == nil {
		return false
	}
	v, ok := e.globals[name]
	if !ok {
		return false
	}
	_, callable := v.(starlark.Callable)
	return callable
}

// Call invokes a named entry point with the given arguments. Returns
// ErrNoEntry if the chunk never defined it.
func (e *Env) Call(name string, args ...starlark.Value) (starlark.Value, error) {
	if e.closed {
		return nil, ErrClosed
	}
	v, ok := e.globals[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNoEntry)
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s is not callable", name)
	}
	// A fresh thread per call resets the step budget; mission state lives in
	// mem and globals, not on the thread.
	thread := e.newThread()
	result, err := starlark.Call(thread, fn, starlark.Tuple(args), nil)
	if err != nil {
		// Wrap, don't flatten: callers match sentinel errors through the
		// chain, and Backtrace recovers the script stack for logging.
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return result, nil
}

// Backtrace returns the script backtrace buried in err, or err's message if
// the error did not come out of the interpreter.
func Backtrace(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}

// Mem returns the persistent memory table.
func (e *Env) Mem() *starlark.Dict {
	return e.mem
}

// Closed reports whether the environment has been freed.
func (e *Env) Closed() bool {
	return e.closed
}

// Close frees the environment. Further calls error with ErrClosed; closing
// twice is a no-op.
func (e *Env) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.globals = nil
	e.mem = nil
	e.extra = nil
	e.thread = nil
}
