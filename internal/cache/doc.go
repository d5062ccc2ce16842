// Package cache defines the disk-backed store the compile cache writes through.
// Keys are slash-separated paths relative to the cache root, so the store
// mirrors the source tree below that root. The store exposes read/write
// primitives with safe semantics (temp file + rename) and surfaces file info
// (size, modtime) for the compile cache to implement its staleness check.
package cache
