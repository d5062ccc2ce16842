package bundler

import (
	"fmt"

	"github.com/bundle-hub/bundle-hub/internal/engine"
	"github.com/bundle-hub/bundle-hub/internal/transform"
)

// Do runs op against the engine. A mutating operation drops the memoized
// bundle even when it fails.
func (b *Bundler) Do(op engine.Operation) error {
	if op.Run == nil {
		return fmt.Errorf("operation %s: nothing to run", op.Name)
	}
	err := op.Run(b.engine)
	if op.Mutates {
		b.Invalidate()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op.Name, err)
	}
	return nil
}

func (b *Bundler) AddEntry(spec string) error {
	return b.Do(engine.AddEntryOp(spec))
}

func (b *Bundler) Require(spec string, opts engine.RequireOptions) error {
	return b.Do(engine.RequireOp(spec, opts))
}

func (b *Bundler) Alias(name, spec string) error {
	return b.Do(engine.AliasOp(name, spec))
}

func (b *Bundler) Ignore(specs ...string) error {
	return b.Do(engine.IgnoreOp(specs...))
}

func (b *Bundler) Register(key string, fn transform.Func) error {
	return b.Do(engine.RegisterOp(key, fn))
}
