package bundler

import (
	"path/filepath"
	"strings"

	"github.com/bundle-hub/bundle-hub/internal/engine"
)

// dependencyDir is where bare package names are looked up.
const dependencyDir = "/node_modules/"

// dependencyEntry is the file a bare package name resolves to.
const dependencyEntry = "/index.js"

// IDFromPath turns Windows separators into slashes.
func IDFromPath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// IsBare reports whether id is a package name rather than a file path: it does
// not start with "." or "/" and is not absolute on this platform.
func IsBare(id string) bool {
	if strings.HasPrefix(id, ".") || strings.HasPrefix(id, "/") {
		return false
	}
	return !filepath.IsAbs(id)
}

// RequireOptionsFor returns the resolution hint for id.
func RequireOptionsFor(id string) engine.RequireOptions {
	if !IsBare(id) {
		return engine.RequireOptions{}
	}
	return engine.RequireOptions{Target: dependencyDir + id + dependencyEntry}
}

// MergeEntries puts supplied entries ahead of the ones already configured.
func MergeEntries(supplied []string, existing Entries) Entries {
	out := make(Entries, 0, len(supplied)+len(existing))
	out = append(out, supplied...)
	out = append(out, existing...)
	return out
}

// RequireOperations expands r into engine operations: a require per list item
// and, for each alias, a require of the value plus the alias itself.
func RequireOperations(r Requires) []engine.Operation {
	ops := make([]engine.Operation, 0, len(r.List)+2*len(r.Aliases))
	for _, spec := range r.List {
		id := IDFromPath(spec)
		ops = append(ops, engine.RequireOp(id, RequireOptionsFor(id)))
	}
	for _, name := range r.AliasNames() {
		id := IDFromPath(r.Aliases[name])
		ops = append(ops,
			engine.RequireOp(id, RequireOptionsFor(id)),
			engine.AliasOp(name, id),
		)
	}
	return ops
}
