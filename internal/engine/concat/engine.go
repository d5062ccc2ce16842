// Package concat is the reference bundler engine: it reads every entry and
// require in registration order, runs the registered transforms and wraps each
// file into a small CommonJS module table. It does not follow require() calls
// inside the files; dependencies must be listed explicitly.
package concat

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/bundle-hub/bundle-hub/internal/engine"
	"github.com/bundle-hub/bundle-hub/internal/events"
	"github.com/bundle-hub/bundle-hub/internal/transform"
)

var _ engine.Engine = (*Engine)(nil)

// Options configures a concat engine.
type Options struct {
	// Root resolves relative specifiers and root-relative require targets.
	Root string
	// Fs defaults to the OS filesystem.
	Fs     afero.Fs
	Logger *logrus.Logger
}

type module struct {
	id   string
	file string
}

// Engine implements engine.Engine.
type Engine struct {
	root     string
	fs       afero.Fs
	logger   *logrus.Logger
	registry *transform.Registry
	emitter  *events.Emitter

	mu       sync.Mutex
	entries  []module
	requires []module
	aliases  map[string]string
	ignored  map[string]struct{}
	errors   map[string]error

	watchMu sync.Mutex
	watches map[string]io.Closer
}

// New builds an engine rooted at opts.Root (default: working directory).
func New(opts Options) (*Engine, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if _, ok := fs.(*afero.OsFs); ok {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root: %w", err)
		}
		root = abs
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Engine{
		root:     root,
		fs:       fs,
		logger:   logger,
		registry: transform.NewRegistry(),
		emitter:  events.NewEmitter(),
		aliases:  make(map[string]string),
		ignored:  make(map[string]struct{}),
		errors:   make(map[string]error),
		watches:  make(map[string]io.Closer),
	}, nil
}

func (e *Engine) Register(key string, fn transform.Func) error {
	return e.registry.Register(key, fn)
}

// AddEntry appends an entry module. Entries resolving to an already listed file
// are ignored so the first registration keeps its position.
func (e *Engine) AddEntry(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return fmt.Errorf("entry specifier required")
	}
	file := e.resolve(spec, "")

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.entries {
		if existing.file == file {
			return nil
		}
	}
	e.entries = append(e.entries, module{id: e.moduleID(file), file: file})
	return nil
}

// Require exposes spec to require() calls in the bundle under its own name.
func (e *Engine) Require(spec string, opts engine.RequireOptions) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return fmt.Errorf("require specifier required")
	}
	file := e.resolve(spec, opts.Target)

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.requires {
		if existing.id == spec {
			e.requires[i].file = file
			return nil
		}
	}
	e.requires = append(e.requires, module{id: spec, file: file})
	return nil
}

func (e *Engine) Alias(name, spec string) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(spec) == "" {
		return fmt.Errorf("alias requires name and specifier")
	}
	e.mu.Lock()
	e.aliases[name] = spec
	e.mu.Unlock()
	return nil
}

// Ignore drops specifiers from the bundle; require() of an ignored name yields
// an empty exports object.
func (e *Engine) Ignore(specs ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, spec := range specs {
		if spec = strings.TrimSpace(spec); spec != "" {
			e.ignored[spec] = struct{}{}
		}
	}
	return nil
}

func (e *Engine) Errors() map[string]error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyErrors(e.errors)
}

func (e *Engine) Watches() map[string]io.Closer {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	out := make(map[string]io.Closer, len(e.watches))
	for file, handle := range e.watches {
		out[file] = handle
	}
	return out
}

func (e *Engine) TrackWatch(file string, handle io.Closer) {
	if handle == nil {
		return
	}
	e.watchMu.Lock()
	e.watches[file] = handle
	e.watchMu.Unlock()
}

func (e *Engine) Untrack(file string) {
	e.watchMu.Lock()
	delete(e.watches, file)
	e.watchMu.Unlock()
}

func (e *Engine) On(name string, fn events.Listener) func() {
	return e.emitter.On(name, fn)
}

func (e *Engine) Emit(ev events.Event) {
	e.emitter.Emit(ev)
}

// Bundle reads and transforms every module. Per-file failures are recorded in
// the result's error table; the remaining modules are still emitted.
func (e *Engine) Bundle(ctx context.Context, opts engine.BundleOptions) engine.Result {
	started := time.Now()
	p := e.snapshot()
	errs := make(map[string]error)

	if err := ctx.Err(); err != nil {
		errs["bundle"] = err
		e.storeErrors(errs)
		return engine.Result{Errors: errs}
	}

	var out strings.Builder
	out.WriteString(preamble)
	writeAliases(&out, p.aliases)
	writeIgnored(&out, p.ignored)

	modules := append(append([]module(nil), p.requires...), p.entries...)
	for _, mod := range modules {
		if p.isIgnored(mod) {
			continue
		}
		wrapped, err := e.buildModule(mod, opts)
		if err != nil {
			errs[mod.file] = err
			continue
		}
		out.WriteString(wrapped)
	}

	for _, entry := range p.entries {
		if p.isIgnored(entry) {
			continue
		}
		fmt.Fprintf(&out, "__require(%s);\n", quote(entry.id))
	}
	if opts.Exports != "" && len(p.entries) > 0 {
		fmt.Fprintf(&out, "globalThis[%s] = __require(%s);\n", quote(opts.Exports), quote(p.entries[0].id))
	}
	out.WriteString(epilogue)

	text := out.String()
	if post, ok := e.registry.Lookup(transform.HookPost); ok {
		filtered, err := post(text, "")
		if err != nil {
			errs[transform.HookPost] = e.syntaxError(transform.HookPost, err)
		} else {
			text = filtered
		}
	}

	e.storeErrors(errs)
	e.logger.WithFields(logrus.Fields{
		"action":      "bundle",
		"modules":     len(modules),
		"errors":      len(errs),
		"duration_ms": time.Since(started).Milliseconds(),
	}).Debug("bundle built")
	e.emitter.Emit(events.Event{Name: events.Bundle})

	return engine.Result{Text: text, Errors: copyErrors(errs)}
}

func (e *Engine) buildModule(mod module, opts engine.BundleOptions) (string, error) {
	raw, err := afero.ReadFile(e.fs, mod.file)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", mod.id, err)
	}
	e.emitter.Emit(events.Event{Name: events.File, File: mod.file})

	body := string(raw)
	if pre, ok := e.registry.Lookup(transform.HookPre); ok {
		if body, err = pre(body, mod.file); err != nil {
			return "", e.syntaxError(mod.file, err)
		}
	}
	if fn, ok := e.registry.ForFile(mod.file); ok {
		if body, err = fn(body, mod.file); err != nil {
			return "", e.syntaxError(mod.file, err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "__modules[%s] = function (module, exports, require) {\n", quote(mod.id))
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	if opts.Debug {
		fmt.Fprintf(&b, "//# sourceURL=%s\n", mod.id)
	}
	b.WriteString("};\n")
	wrapped := b.String()

	if content, ok := e.registry.Lookup(transform.HookContent); ok {
		if wrapped, err = content(wrapped, mod.id); err != nil {
			return "", e.syntaxError(mod.file, err)
		}
	}
	return wrapped, nil
}

func (e *Engine) syntaxError(file string, err error) error {
	se := &transform.SyntaxError{File: file, Err: err}
	e.emitter.Emit(events.Event{Name: events.SyntaxError, File: file, Err: se})
	return se
}

func (e *Engine) storeErrors(errs map[string]error) {
	e.mu.Lock()
	e.errors = copyErrors(errs)
	e.mu.Unlock()
}

// resolve maps a specifier to a file path below root. A target overrides the
// specifier and is interpreted relative to root.
func (e *Engine) resolve(spec, target string) string {
	if target != "" {
		return e.findFile(filepath.Join(e.root, filepath.FromSlash(strings.TrimPrefix(target, "/"))))
	}
	if filepath.IsAbs(spec) {
		return e.findFile(filepath.Clean(spec))
	}
	return e.findFile(filepath.Join(e.root, filepath.FromSlash(spec)))
}

func (e *Engine) findFile(candidate string) string {
	for _, p := range []string{candidate, candidate + ".js", filepath.Join(candidate, "index.js")} {
		if info, err := e.fs.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return candidate
}

func (e *Engine) moduleID(file string) string {
	rel, err := filepath.Rel(e.root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(file)
	}
	return "./" + path.Clean(filepath.ToSlash(rel))
}

type plan struct {
	entries  []module
	requires []module
	aliases  map[string]string
	ignored  map[string]struct{}
}

func (p plan) isIgnored(mod module) bool {
	if _, ok := p.ignored[mod.id]; ok {
		return true
	}
	_, ok := p.ignored[mod.file]
	return ok
}

func (e *Engine) snapshot() plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := plan{
		entries:  append([]module(nil), e.entries...),
		requires: append([]module(nil), e.requires...),
		aliases:  make(map[string]string, len(e.aliases)),
		ignored:  make(map[string]struct{}, len(e.ignored)),
	}
	for k, v := range e.aliases {
		p.aliases[k] = v
	}
	for k := range e.ignored {
		p.ignored[k] = struct{}{}
	}
	return p
}

func copyErrors(in map[string]error) map[string]error {
	out := make(map[string]error, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

