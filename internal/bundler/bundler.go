package bundler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/bundle-hub/bundle-hub/internal/compile"
	"github.com/bundle-hub/bundle-hub/internal/engine"
	"github.com/bundle-hub/bundle-hub/internal/events"
	"github.com/bundle-hub/bundle-hub/internal/transform"
	"github.com/bundle-hub/bundle-hub/internal/watch"
)

// Bundler owns one engine and memoizes its bundle.
type Bundler struct {
	engine  engine.Engine
	name    string
	mount   string
	exports string
	debug   bool
	logger  *logrus.Logger
	now     func() time.Time

	compileCache *compile.Cache
	watcher      *watch.Watcher

	group singleflight.Group

	mu       sync.Mutex
	cached   *engine.Result
	gen      uint64
	modified time.Time
	ok       bool
	bundled  bool
}

// New configures eng from opts and returns its façade. Entries given here are
// placed ahead of opts.Entry. The engine must not be shared with another
// Bundler.
func New(eng engine.Engine, opts Options, entries ...string) (*Bundler, error) {
	if eng == nil {
		return nil, errors.New("engine required")
	}
	mount := strings.TrimSpace(opts.Mount)
	if mount == "" {
		mount = DefaultMount
	}
	if !strings.HasPrefix(mount, "/") {
		return nil, fmt.Errorf("mount %q must start with /", mount)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	b := &Bundler{
		engine:  eng,
		name:    opts.Name,
		mount:   mount,
		exports: opts.Exports,
		debug:   opts.Debug,
		logger:  logger,
		now:     now,
	}

	if err := b.registerBuiltins(opts); err != nil {
		return nil, err
	}

	if opts.Watch != nil {
		if err := b.armWatch(*opts.Watch); err != nil {
			return nil, fmt.Errorf("watch: %w", err)
		}
	}

	if err := b.configure(opts, entries); err != nil {
		_ = b.End()
		return nil, err
	}

	b.modified = now()
	b.fields().WithField("mount", mount).Debug("bundler ready")
	return b, nil
}

// BundleOnce builds a Bundler, bundles once and releases it.
func BundleOnce(ctx context.Context, eng engine.Engine, opts Options, entries ...string) (engine.Result, error) {
	opts.Watch = nil
	b, err := New(eng, opts, entries...)
	if err != nil {
		return engine.Result{}, err
	}
	defer b.End()
	return b.Bundle(ctx), nil
}

func (b *Bundler) registerBuiltins(opts Options) error {
	compiler := opts.Compiler
	if compiler == nil {
		compiler = compile.NewESBuild()
	}
	cc, err := compile.New(compile.Options{
		Root:     opts.CacheDir,
		Base:     opts.Base,
		Fs:       opts.Fs,
		Compiler: compiler,
		Logger:   b.logger,
	})
	if err != nil {
		return fmt.Errorf("compile cache: %w", err)
	}
	b.compileCache = cc

	for _, ext := range compile.Extensions {
		if err := b.Register(ext, cc.Transform); err != nil {
			return err
		}
	}
	return b.Register(".json", transform.JSON)
}

func (b *Bundler) armWatch(opts WatchOptions) error {
	wopts := watch.Options{
		OnChange: func(file string) {
			b.Invalidate()
			b.engine.Emit(events.Event{Name: events.Update, File: file})
		},
		Debounce: opts.Debounce,
		Logger:   b.logger,
	}
	if opts.Eager {
		wopts.OnSettle = func() { b.Bundle(context.Background()) }
	}
	w, err := watch.Arm(b.engine, wopts)
	if err != nil {
		return err
	}
	b.watcher = w
	return nil
}

func (b *Bundler) configure(opts Options, entries []string) error {
	if opts.Filter != nil {
		filter := opts.Filter
		if err := b.Register(transform.HookPost, func(body, _ string) (string, error) {
			return filter(body), nil
		}); err != nil {
			return err
		}
	}
	if opts.ContentFilter != nil {
		filter := opts.ContentFilter
		if err := b.Register(transform.HookContent, func(body, target string) (string, error) {
			return filter(target, body), nil
		}); err != nil {
			return err
		}
	}

	if err := b.Ignore(opts.Ignore...); err != nil {
		return err
	}
	for _, op := range RequireOperations(opts.Require) {
		if err := b.Do(op); err != nil {
			return err
		}
	}
	for _, entry := range MergeEntries(entries, opts.Entry) {
		if err := b.AddEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

// On subscribes to the engine's events. Subscribing never invalidates.
func (b *Bundler) On(name string, fn events.Listener) func() {
	return b.engine.On(name, fn)
}

// Emit forwards ev to the engine's listeners.
func (b *Bundler) Emit(ev events.Event) {
	b.engine.Emit(ev)
}

// Name returns the configured bundle name.
func (b *Bundler) Name() string {
	return b.name
}

// Mount returns the path the middleware serves.
func (b *Bundler) Mount() string {
	return b.mount
}

// CompileCache exposes the compile cache backing the built-in transforms.
func (b *Bundler) CompileCache() *compile.Cache {
	return b.compileCache
}

// End closes every watch handle and stops the watcher. Calling it again is a
// no-op.
func (b *Bundler) End() error {
	var errs []error
	for file, h := range b.engine.Watches() {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close watch %s: %w", file, err))
		}
		b.engine.Untrack(file)
	}
	if b.watcher != nil {
		if err := b.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bundler) fields() *logrus.Entry {
	return b.logger.WithFields(logrus.Fields{"bundle": b.name})
}
