// Package conditional compiles small boolean-expression fragments into
// reusable predicates, evaluated in a single shared environment that is kept
// separate from the per-mission gameplay environments.
package conditional

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/starlark"

	"github.com/starlance/starlance/pkg/telemetry"
)

// ErrNotBoolean is returned when a predicate produced a non-boolean result.
var ErrNotBoolean = errors.New("conditional did not return a boolean")

// predName is the synthetic function name used for statement fragments.
const predName = "__pred__"

// maxSteps bounds a single predicate run. Conditionals are cheap by
// definition; anything hitting this is broken content.
const maxSteps = 100000

// Predicate is a compiled, reusable boolean predicate.
type Predicate struct {
	fn  starlark.Callable
	src string
}

// Source returns the original fragment the predicate was compiled from.
func (p *Predicate) Source() string {
	return p.src
}

// Evaluator owns the shared conditional environment. The environment is
// loaded once and reused for every predicate; its values are frozen so no
// predicate run can leave residual state behind.
type Evaluator struct {
	env    starlark.StringDict
	logger *telemetry.Logger
}

// NewEvaluator builds an evaluator around the given read-only environment.
// Every value in env is frozen.
func NewEvaluator(env starlark.StringDict, logger *telemetry.Logger) *Evaluator {
	if env == nil {
		env = starlark.StringDict{}
	}
	for _, v := range env {
		v.Freeze()
	}
	return &Evaluator{
		env:    env,
		logger: logger.NewComponentLogger("conditional"),
	}
}

// Bind merges additional values into the environment, freezing them.
// Intended for late wiring during startup: everything must be bound before
// the first Compile, since compiled predicates resolve names eagerly.
func (ev *Evaluator) Bind(extra starlark.StringDict) {
	for name, v := range extra {
		v.Freeze()
		ev.env[name] = v
	}
}

// Compile turns a fragment into a reusable predicate. Bare expressions are
// accepted as-is (the value of the expression is the result); fragments that
// contain an explicit return are wrapped into a function body.
func (ev *Evaluator) Compile(expr string) (*Predicate, error) {
	var (
		fn  starlark.Value
		err error
	)
	if containsReturn(expr) {
		fn, err = ev.compileStatement(expr)
	} else {
		fn, err = starlark.ExprFunc("conditional", expr, ev.env)
	}
	if err != nil {
		ev.logFragment(expr, err)
		return nil, fmt.Errorf("compile conditional: %w", err)
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("compile conditional: not callable")
	}
	return &Predicate{fn: callable, src: expr}, nil
}

// compileStatement wraps a statement fragment into a function definition and
// executes the definition once in a throwaway globals dict.
func (ev *Evaluator) compileStatement(expr string) (starlark.Value, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "def %s():\n", predName)
	for _, line := range strings.Split(expr, "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteByte('\n')
	}

	thread := ev.newThread()
	globals, err := starlark.ExecFile(thread, "conditional", b.String(), ev.env)
	if err != nil {
		return nil, err
	}
	fn, ok := globals[predName]
	if !ok {
		return nil, fmt.Errorf("internal: wrapper function missing")
	}
	return fn, nil
}

// Check is a one-shot compile-and-run for ad-hoc conditionals. The result
// must be exactly a boolean; anything else is an error, never a coercion.
func (ev *Evaluator) Check(expr string) (bool, error) {
	p, err := ev.Compile(expr)
	if err != nil {
		return false, err
	}
	return ev.CheckCompiled(p)
}

// CheckCompiled runs a previously compiled predicate.
func (ev *Evaluator) CheckCompiled(p *Predicate) (bool, error) {
	thread := ev.newThread()
	result, err := starlark.Call(thread, p.fn, nil, nil)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			ev.logFragment(p.src, errors.New(evalErr.Backtrace()))
		} else {
			ev.logFragment(p.src, err)
		}
		return false, fmt.Errorf("run conditional: %w", err)
	}
	b, ok := result.(starlark.Bool)
	if !ok {
		ev.logger.Warnf("conditional returned %s, expected bool", result.Type())
		return false, fmt.Errorf("%w: got %s", ErrNotBoolean, result.Type())
	}
	return bool(b), nil
}

// newThread returns a fresh bounded thread. Fresh per run so a failed
// predicate can never leave state visible to the next caller.
func (ev *Evaluator) newThread() *starlark.Thread {
	t := &starlark.Thread{Name: "conditional"}
	t.SetMaxExecutionSteps(maxSteps)
	return t
}

// logFragment logs a failing fragment with line numbers, the way content
// authors expect to see interpreter diagnostics.
func (ev *Evaluator) logFragment(expr string, cause error) {
	var b strings.Builder
	for i, line := range strings.Split(expr, "\n") {
		fmt.Fprintf(&b, "%03d: %s\n", i+1, line)
	}
	ev.logger.WithError(cause).Errorf("conditional failed:\n%s", b.String())
}

// containsReturn reports whether the fragment already carries an explicit
// return statement (as opposed to the word appearing inside a string, which
// this deliberately does not try to detect; content that trips it can use a
// bare expression instead).
func containsReturn(expr string) bool {
	for _, line := range strings.Split(expr, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "return" || strings.HasPrefix(trimmed, "return ") {
			return true
		}
	}
	return false
}
