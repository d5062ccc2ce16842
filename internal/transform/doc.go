// Package transform holds the per-extension and per-hook source transforms the
// engine applies while bundling. Keys are either file extensions (".ts",
// ".json") or one of the lifecycle hooks: HookPre runs on each file body before
// the extension transform, HookContent runs on each wrapped module and HookPost
// runs once on the concatenated bundle. Registering a key twice replaces the
// earlier function.
package transform
