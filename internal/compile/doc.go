// Package compile provides the persistent compile cache wrapped around
// compiled-language transforms. Compiled output is mirrored below a cache root
// (source tree shape preserved, source extension replaced by .js, source map
// beside it as .map) and reused while the cached file is strictly newer than
// its source and was written by the same compiler fingerprint.
package compile
