package concat

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const preamble = `(function () {
var __modules = {};
var __cache = {};
var __aliases = {};
var __ignored = {};
function __require(name) {
  if (Object.prototype.hasOwnProperty.call(__aliases, name)) name = __aliases[name];
  if (__ignored[name]) return {};
  if (__cache[name]) return __cache[name].exports;
  var factory = __modules[name];
  if (!factory) throw new Error("Cannot find module '" + name + "'");
  var module = { exports: {} };
  __cache[name] = module;
  factory.call(module.exports, module, module.exports, __require);
  return module.exports;
}
`

const epilogue = "})();\n"

func writeAliases(b *strings.Builder, aliases map[string]string) {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "__aliases[%s] = %s;\n", quote(name), quote(aliases[name]))
	}
}

func writeIgnored(b *strings.Builder, ignored map[string]struct{}) {
	names := make([]string, 0, len(ignored))
	for name := range ignored {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "__ignored[%s] = true;\n", quote(name))
	}
}

// quote renders s as a JavaScript string literal.
func quote(s string) string {
	raw, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(raw)
}
