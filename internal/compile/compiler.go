package compile

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

//go:generate mockgen -source=compiler.go -destination=mocks/mock_compiler.go -package=mocks

// Output is the result of compiling one source file.
type Output struct {
	Code string
	Map  string
}

// Compiler turns one source file into JavaScript plus a source map.
type Compiler interface {
	// Name identifies the compiler and its settings. It is part of the cache
	// fingerprint, so changing it invalidates every cached file.
	Name() string
	Compile(source, file string) (Output, error)
}

// Extensions lists the source extensions ESBuild compiles.
var Extensions = []string{".ts", ".tsx", ".jsx"}

// ESBuild compiles TypeScript and JSX through esbuild's transform API.
type ESBuild struct {
	Target api.Target
}

// NewESBuild returns an ES2017 CommonJS compiler.
func NewESBuild() ESBuild {
	return ESBuild{Target: api.ES2017}
}

func (c ESBuild) Name() string {
	return fmt.Sprintf("esbuild:cjs:%d", c.Target)
}

func (c ESBuild) Compile(source, file string) (Output, error) {
	loader, ok := loaderFor(file)
	if !ok {
		return Output{}, fmt.Errorf("no loader for %s", filepath.Ext(file))
	}

	res := api.Transform(source, api.TransformOptions{
		Loader:     loader,
		Sourcefile: file,
		Sourcemap:  api.SourceMapExternal,
		Format:     api.FormatCommonJS,
		Target:     c.Target,
	})
	if len(res.Errors) > 0 {
		return Output{}, &Error{Messages: res.Errors}
	}
	return Output{Code: string(res.Code), Map: string(res.Map)}, nil
}

func loaderFor(file string) (api.Loader, bool) {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".ts":
		return api.LoaderTS, true
	case ".tsx":
		return api.LoaderTSX, true
	case ".jsx":
		return api.LoaderJSX, true
	default:
		return api.LoaderNone, false
	}
}

// Error carries esbuild diagnostics.
type Error struct {
	Messages []api.Message
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Messages))
	for _, msg := range e.Messages {
		if loc := msg.Location; loc != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", loc.File, loc.Line, loc.Column, msg.Text))
			continue
		}
		parts = append(parts, msg.Text)
	}
	return strings.Join(parts, "; ")
}
