// Package bundler is the façade around a bundler engine. It normalizes entry
// and require options into engine operations, drops the memoized bundle
// whenever an operation mutates the engine's configuration, recomputes the
// bundle lazily on the next read, and serves it as HTTP middleware with a
// Last-Modified header. Watches armed for a Bundler are released by End.
package bundler
