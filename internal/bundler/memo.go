package bundler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bundle-hub/bundle-hub/internal/engine"
)

// Bundle returns the memoized bundle, computing it first if the configuration
// changed since the last computation. Concurrent callers share one
// computation. The first computation keeps the construction time as the
// modification time; later ones advance it.
func (b *Bundler) Bundle(ctx context.Context) engine.Result {
	if res, ok := b.cachedResult(); ok {
		return res
	}

	v, _, _ := b.group.Do("bundle", func() (interface{}, error) {
		b.mu.Lock()
		if b.cached != nil {
			res := *b.cached
			b.mu.Unlock()
			return res, nil
		}
		gen := b.gen
		b.mu.Unlock()

		// The computation is shared by every waiting caller, so one caller
		// going away must not cancel it.
		started := time.Now()
		res := b.engine.Bundle(context.WithoutCancel(ctx), engine.BundleOptions{Exports: b.exports, Debug: b.debug})

		b.mu.Lock()
		b.ok = res.OK()
		if b.bundled {
			b.modified = b.now()
		}
		b.bundled = true
		// An invalidation that raced this computation wins: the result is
		// returned but not kept.
		if b.gen == gen {
			b.cached = &res
		}
		modified := b.modified
		b.mu.Unlock()

		entry := b.fields().WithFields(logrus.Fields{
			"action":      "bundle",
			"ok":          res.OK(),
			"errors":      len(res.Errors),
			"bytes":       len(res.Text),
			"modified":    modified,
			"duration_ms": time.Since(started).Milliseconds(),
		})
		if res.OK() {
			entry.Debug("bundle computed")
		} else {
			entry.Warn("bundle computed with errors")
		}
		return res, nil
	})
	return v.(engine.Result)
}

// Invalidate drops the memoized bundle. Repeated calls before the next read
// still cause a single recomputation.
func (b *Bundler) Invalidate() {
	b.mu.Lock()
	b.cached = nil
	b.gen++
	b.mu.Unlock()
}

// Modified is the time the current bundle was produced, or the construction
// time before the first recomputation.
func (b *Bundler) Modified() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modified
}

// OK reports whether the last computed bundle had no errors. It is false until
// the first bundle.
func (b *Bundler) OK() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ok
}

// Cached reports whether a memoized bundle is available.
func (b *Bundler) Cached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cached != nil
}

// Errors returns the engine's error table from the last bundle.
func (b *Bundler) Errors() map[string]error {
	return b.engine.Errors()
}

func (b *Bundler) cachedResult() (engine.Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cached == nil {
		return engine.Result{}, false
	}
	return *b.cached, true
}
