package transform

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Lifecycle hook keys.
const (
	HookPre     = "pre"
	HookPost    = "post"
	HookContent = "content"
)

// Func converts one body into output text. file is the source path for
// extension transforms and HookPre, the module target for HookContent and
// empty for HookPost.
type Func func(body, file string) (string, error)

// SyntaxError reports a transform failure for a single file.
type SyntaxError struct {
	File string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Registry maps extension or hook keys to transforms.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register associates fn with key, replacing any earlier registration.
func (r *Registry) Register(key string, fn Func) error {
	normalized := NormalizeKey(key)
	if normalized == "" {
		return fmt.Errorf("transform key required")
	}
	if fn == nil {
		return fmt.Errorf("transform %s: nil func", normalized)
	}

	r.mu.Lock()
	r.funcs[normalized] = fn
	r.mu.Unlock()
	return nil
}

// Lookup returns the transform registered for key.
func (r *Registry) Lookup(key string) (Func, bool) {
	normalized := NormalizeKey(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[normalized]
	return fn, ok
}

// ForFile returns the extension transform matching file, if any.
func (r *Registry) ForFile(file string) (Func, bool) {
	ext := filepath.Ext(file)
	if ext == "" {
		return nil, false
	}
	return r.Lookup(ext)
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.funcs))
	for key := range r.funcs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeKey lower-cases a key and adds the leading dot extensions need.
// Hook names are returned unchanged.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	switch key {
	case "", HookPre, HookPost, HookContent:
		return key
	}
	if !strings.HasPrefix(key, ".") {
		key = "." + key
	}
	return key
}
