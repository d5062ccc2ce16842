package compile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.trai.ch/zerr"

	"github.com/bundle-hub/bundle-hub/internal/cache"
)

// formatVersion changes whenever the on-disk layout of cached files changes.
const formatVersion = "1"

const headerPrefix = "// bundle-hub:"

// externalDir holds sources that live outside the base directory.
const externalDir = "__external__"

// DefaultRoot is the cache root used when none is configured.
const DefaultRoot = ".bundle-cache"

// Options configures a Cache.
type Options struct {
	// Root is the cache directory; defaults to DefaultRoot.
	Root string
	// Base is the directory source paths are made relative to; defaults to ".".
	Base     string
	Fs       afero.Fs
	Compiler Compiler
	Logger   *logrus.Logger
}

// Entry describes where one source file is cached.
type Entry struct {
	SourcePath    string
	CachePath     string
	MapPath       string
	SourceModTime time.Time
	CacheModTime  time.Time
}

// Stats counts lookups since construction.
type Stats struct {
	Hits   int64
	Misses int64
}

// Cache memoizes compiler output on disk.
type Cache struct {
	fs          afero.Fs
	store       cache.Store
	base        string
	compiler    Compiler
	logger      *logrus.Logger
	fingerprint string
	now         func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a Cache and creates its root directory.
func New(opts Options) (*Cache, error) {
	if opts.Compiler == nil {
		return nil, errors.New("compiler required")
	}
	root := opts.Root
	if root == "" {
		root = DefaultRoot
	}
	base := opts.Base
	if base == "" {
		base = "."
	}
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if _, ok := fsys.(*afero.OsFs); ok {
		abs, err := filepath.Abs(base)
		if err != nil {
			return nil, fmt.Errorf("resolve base: %w", err)
		}
		base = abs
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	store, err := cache.NewStoreFs(fsys, root)
	if err != nil {
		return nil, err
	}

	return &Cache{
		fs:          fsys,
		store:       store,
		base:        base,
		compiler:    opts.Compiler,
		logger:      logger,
		fingerprint: Fingerprint(opts.Compiler.Name()),
		now:         time.Now,
	}, nil
}

// Fingerprint identifies the cache format and compiler that produced a file.
func Fingerprint(compilerName string) string {
	h := xxhash.New()
	_, _ = h.WriteString(formatVersion)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(compilerName)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Root returns the absolute cache root.
func (c *Cache) Root() string {
	return c.store.Root()
}

// Stats returns hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Locators derives the cache and map locations for a source file.
func (c *Cache) Locators(file string) (code cache.Locator, sourceMap cache.Locator) {
	rel := c.relative(file)
	if ext := filepath.Ext(rel); ext != "" {
		rel = strings.TrimSuffix(rel, ext)
	}
	return cache.Locator{Path: rel + ".js"}, cache.Locator{Path: rel + ".map"}
}

func (c *Cache) relative(file string) string {
	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(c.base, file)
	}
	rel, err := filepath.Rel(c.base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return externalDir + "/" + strings.TrimPrefix(filepath.ToSlash(filepath.Clean(abs)), "/")
	}
	return filepath.ToSlash(rel)
}

// Transform is a transform.Func: it returns cached output when fresh and
// compiles otherwise. Compiler failures are returned; failures to persist a
// fresh compile are logged and ignored.
func (c *Cache) Transform(body, file string) (string, error) {
	ctx := context.Background()
	codeLoc, mapLoc := c.Locators(file)

	if code, ok := c.lookup(ctx, file, codeLoc); ok {
		c.hits.Add(1)
		c.logger.WithFields(logrus.Fields{"action": "compile_cache", "file": file}).Debug("cache hit")
		return code, nil
	}
	c.misses.Add(1)

	started := time.Now()
	out, err := c.compiler.Compile(body, file)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "compile failed"), "file", file)
	}
	c.logger.WithFields(logrus.Fields{
		"action":      "compile",
		"file":        file,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Debug("compiled")

	c.persist(ctx, file, codeLoc, mapLoc, out)
	return out.Code, nil
}

// Lookup reports the cache entry for file and whether it is fresh.
func (c *Cache) Lookup(file string) (Entry, bool) {
	codeLoc, mapLoc := c.Locators(file)
	entry := Entry{SourcePath: file}
	if cached, err := c.store.Stat(context.Background(), codeLoc); err == nil {
		entry.CachePath = cached.FilePath
		entry.CacheModTime = cached.ModTime
	}
	if mapped, err := c.store.Stat(context.Background(), mapLoc); err == nil {
		entry.MapPath = mapped.FilePath
	}
	if info, err := c.fs.Stat(file); err == nil {
		entry.SourceModTime = info.ModTime()
	}
	_, fresh := c.lookup(context.Background(), file, codeLoc)
	return entry, fresh
}

// lookup returns the cached code when it is strictly newer than the source
// and carries the current fingerprint. Any stat or read failure is a miss.
func (c *Cache) lookup(ctx context.Context, file string, codeLoc cache.Locator) (string, bool) {
	source, err := c.fs.Stat(file)
	if err != nil {
		return "", false
	}
	cached, err := c.store.Get(ctx, codeLoc)
	if err != nil {
		return "", false
	}
	defer cached.Reader.Close()

	if !cached.Entry.ModTime.After(source.ModTime()) {
		return "", false
	}

	raw, err := io.ReadAll(cached.Reader)
	if err != nil {
		return "", false
	}
	header, code, found := strings.Cut(string(raw), "\n")
	if !found || header != headerPrefix+c.fingerprint {
		return "", false
	}
	return code, true
}

func (c *Cache) persist(ctx context.Context, file string, codeLoc, mapLoc cache.Locator, out Output) {
	modTime := c.now()
	if info, err := c.fs.Stat(file); err == nil && !modTime.After(info.ModTime()) {
		modTime = info.ModTime().Add(time.Millisecond)
	}

	// The map is written first so a fresh .js always has its map beside it.
	if out.Map != "" {
		if _, err := c.store.Put(ctx, mapLoc, strings.NewReader(out.Map), cache.PutOptions{ModTime: modTime}); err != nil {
			c.warnPersist(file, mapLoc, err)
		}
	}
	body := headerPrefix + c.fingerprint + "\n" + out.Code
	if _, err := c.store.Put(ctx, codeLoc, strings.NewReader(body), cache.PutOptions{ModTime: modTime}); err != nil {
		c.warnPersist(file, codeLoc, err)
	}
}

func (c *Cache) warnPersist(file string, loc cache.Locator, err error) {
	c.logger.WithError(err).WithFields(logrus.Fields{
		"action": "compile_cache_write",
		"file":   file,
		"cache":  loc.Path,
	}).Warn("cache write failed")
}
