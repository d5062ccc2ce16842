package bundler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/bundle-hub/bundle-hub/internal/engine"
	"github.com/bundle-hub/bundle-hub/internal/events"
	"github.com/bundle-hub/bundle-hub/internal/transform"
)

// fakeEngine records every call and counts bundles.
type fakeEngine struct {
	*events.Emitter

	mu       sync.Mutex
	calls    []string
	targets  map[string]string
	keys     []string
	watches  map[string]io.Closer
	failNext error

	bundles atomic.Int32
	gate    chan struct{}
	text    string
	errs    map[string]error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		Emitter: events.NewEmitter(),
		targets: make(map[string]string),
		watches: make(map[string]io.Closer),
		text:    "bundle",
	}
}

func (f *fakeEngine) record(format string, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeEngine) Register(key string, fn transform.Func) error {
	if fn == nil {
		return errors.New("nil transform")
	}
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) AddEntry(spec string) error {
	return f.record("entry %s", spec)
}

func (f *fakeEngine) Require(spec string, opts engine.RequireOptions) error {
	f.mu.Lock()
	f.targets[spec] = opts.Target
	f.mu.Unlock()
	return f.record("require %s", spec)
}

func (f *fakeEngine) Alias(name, spec string) error {
	return f.record("alias %s=%s", name, spec)
}

func (f *fakeEngine) Ignore(specs ...string) error {
	if len(specs) == 0 {
		return nil
	}
	return f.record("ignore %v", specs)
}

func (f *fakeEngine) Bundle(ctx context.Context, opts engine.BundleOptions) engine.Result {
	n := f.bundles.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Result{Text: fmt.Sprintf("%s#%d", f.text, n), Errors: f.errs}
}

func (f *fakeEngine) Errors() map[string]error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs
}

func (f *fakeEngine) Watches() map[string]io.Closer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]io.Closer, len(f.watches))
	for k, v := range f.watches {
		out[k] = v
	}
	return out
}

func (f *fakeEngine) TrackWatch(file string, handle io.Closer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watches[file] = handle
}

func (f *fakeEngine) Untrack(file string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watches, file)
}

func (f *fakeEngine) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type countingCloser struct{ closed atomic.Int32 }

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}
