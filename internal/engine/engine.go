// Package engine describes the bundler engine the façade drives: the component
// that resolves entries and requires, runs transforms per file and concatenates
// the result. The façade only depends on this contract; concat provides a small
// reference implementation.
package engine

import (
	"context"
	"io"

	"github.com/bundle-hub/bundle-hub/internal/events"
	"github.com/bundle-hub/bundle-hub/internal/transform"
)

// RequireOptions are resolution hints for a require. An empty Target resolves
// the name as given.
type RequireOptions struct {
	Target string
}

// BundleOptions control the output of one bundle.
type BundleOptions struct {
	// Exports, when set, assigns the entry modules to globalThis[Exports].
	Exports string
	// Debug appends a sourceURL comment to every module.
	Debug bool
}

// Result is one bundle. Errors is keyed by file; a non-empty table means the
// bundle is partial.
type Result struct {
	Text   string
	Errors map[string]error
}

// OK reports whether no file failed.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Engine is what the façade needs from a bundler engine.
type Engine interface {
	Register(key string, fn transform.Func) error
	AddEntry(spec string) error
	Require(spec string, opts RequireOptions) error
	Alias(name, spec string) error
	Ignore(specs ...string) error
	Bundle(ctx context.Context, opts BundleOptions) Result

	// Errors returns the per-file error table of the last bundle.
	Errors() map[string]error
	// Watches returns the active watch handles keyed by file.
	Watches() map[string]io.Closer
	// TrackWatch records a handle the watch collaborator opened for a file.
	TrackWatch(file string, handle io.Closer)
	// Untrack forgets a handle without closing it.
	Untrack(file string)

	On(name string, fn events.Listener) func()
	Emit(ev events.Event)
}

// Operation is one call into the engine. When Mutates is set the bundle
// content may change and the façade drops its memoized bundle afterwards.
type Operation struct {
	Name    string
	Mutates bool
	Run     func(Engine) error
}

// AddEntryOp adds an entry module.
func AddEntryOp(spec string) Operation {
	return Operation{
		Name:    "addEntry",
		Mutates: true,
		Run:     func(e Engine) error { return e.AddEntry(spec) },
	}
}

// RequireOp makes a module requirable by name.
func RequireOp(spec string, opts RequireOptions) Operation {
	return Operation{
		Name:    "require",
		Mutates: true,
		Run:     func(e Engine) error { return e.Require(spec, opts) },
	}
}

// AliasOp registers an alternate name for a module.
func AliasOp(name, spec string) Operation {
	return Operation{
		Name:    "alias",
		Mutates: true,
		Run:     func(e Engine) error { return e.Alias(name, spec) },
	}
}

// IgnoreOp replaces a module with an empty one.
func IgnoreOp(specs ...string) Operation {
	specs = append([]string(nil), specs...)
	return Operation{
		Name:    "ignore",
		Mutates: true,
		Run:     func(e Engine) error { return e.Ignore(specs...) },
	}
}

// RegisterOp installs a transform. It mutates: the output changes with it.
func RegisterOp(key string, fn transform.Func) Operation {
	return Operation{
		Name:    "register",
		Mutates: true,
		Run:     func(e Engine) error { return e.Register(key, fn) },
	}
}
