// Package server hosts the Fiber HTTP service that serves every configured
// bundle. It builds one engine + Bundler per [[Bundle]] section, mounts each
// Bundler's middleware on a shared app, attaches request-id and recover
// middlewares, and answers unknown paths with a JSON 404. Diagnostics routes
// live in the routes subpackage and read from the same BundleRegistry.
package server
