// Package scripting wraps the embedded Starlark interpreter behind the four
// operations the mission engine relies on: load a compiled chunk, call a
// named entry point, persist the opaque mem table, and restore it.
//
// Each mission owns exactly one Env; the engine never shares environments
// between missions. The only shared interpreter state is the conditional
// evaluator in package conditional, which is read-only by contract.
package scripting
