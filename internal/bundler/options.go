package bundler

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/bundle-hub/bundle-hub/internal/compile"
)

// DefaultMount is the path the middleware serves when Options.Mount is empty.
const DefaultMount = "/bundle.js"

// Options configures a Bundler.
type Options struct {
	// Name labels the bundle in logs and diagnostics.
	Name    string
	Entry   Entries
	Require Requires
	Ignore  []string
	Mount   string

	// Filter rewrites the concatenated bundle.
	Filter func(bundle string) string
	// ContentFilter rewrites each wrapped module; target is its module id.
	ContentFilter func(target, body string) string

	Exports string
	Debug   bool

	// Watch arms the filesystem watcher when non-nil.
	Watch *WatchOptions

	// CacheDir is the compile cache root, compile.DefaultRoot when empty.
	CacheDir string
	// Base is the directory cached paths are made relative to.
	Base string
	// Compiler defaults to esbuild.
	Compiler compile.Compiler
	Fs       afero.Fs

	Logger *logrus.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// WatchOptions configures the watch collaborator.
type WatchOptions struct {
	// Eager rebundles once changes settle instead of waiting for the next read.
	Eager    bool
	Debounce time.Duration
}

// Entries is an ordered list of entry specifiers. It decodes from a single
// string or a list.
type Entries []string

// Requires lists modules to expose to require(). List entries are exposed
// under their own name; each Aliases key becomes an alias for its value.
// It decodes from a string, a list or a table.
type Requires struct {
	List    []string
	Aliases map[string]string
}

// IsZero reports whether no require was configured.
func (r Requires) IsZero() bool {
	return len(r.List) == 0 && len(r.Aliases) == 0
}

// AliasNames returns the alias keys in sorted order.
func (r Requires) AliasNames() []string {
	names := make([]string, 0, len(r.Aliases))
	for name := range r.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	entriesType  = reflect.TypeOf(Entries(nil))
	requiresType = reflect.TypeOf(Requires{})
)

// DecodeHook lets mapstructure (and so viper) decode Entries and Requires from
// their string, list and table forms.
func DecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		switch to {
		case entriesType:
			return ParseEntries(data)
		case requiresType:
			return ParseRequires(data)
		default:
			return data, nil
		}
	}
}

// ParseEntries accepts a string, a list of strings or Entries.
func ParseEntries(data interface{}) (Entries, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case Entries:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return Entries{v}, nil
	case []string:
		return Entries(append([]string(nil), v...)), nil
	case []interface{}:
		out := make(Entries, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("entry[%d]: expected string, got %T", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("entry: unsupported type %T", data)
	}
}

// ParseRequires accepts a string, a list of strings, a string table or Requires.
func ParseRequires(data interface{}) (Requires, error) {
	switch v := data.(type) {
	case nil:
		return Requires{}, nil
	case Requires:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return Requires{}, nil
		}
		return Requires{List: []string{v}}, nil
	case []string:
		return Requires{List: append([]string(nil), v...)}, nil
	case []interface{}:
		entries, err := ParseEntries(v)
		if err != nil {
			return Requires{}, fmt.Errorf("require: %w", err)
		}
		return Requires{List: entries}, nil
	case map[string]string:
		aliases := make(map[string]string, len(v))
		for k, val := range v {
			aliases[k] = val
		}
		return Requires{Aliases: aliases}, nil
	case map[string]interface{}:
		aliases := make(map[string]string, len(v))
		for k, item := range v {
			s, ok := item.(string)
			if !ok {
				return Requires{}, fmt.Errorf("require.%s: expected string, got %T", k, item)
			}
			aliases[k] = s
		}
		return Requires{Aliases: aliases}, nil
	default:
		return Requires{}, fmt.Errorf("require: unsupported type %T", data)
	}
}
