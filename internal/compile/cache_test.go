package compile_test

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/bundle-hub/bundle-hub/internal/compile"
	"github.com/bundle-hub/bundle-hub/internal/compile/mocks"
)

const source = "const answer: number = 42;\n"

func newCache(t *testing.T, fs afero.Fs, compiler compile.Compiler) *compile.Cache {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c, err := compile.New(compile.Options{
		Root:     "/cache",
		Base:     "/app",
		Fs:       fs,
		Compiler: compiler,
		Logger:   logger,
	})
	require.NoError(t, err)
	return c
}

func writeSource(t *testing.T, fs afero.Fs, name, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
}

func mockCompiler(t *testing.T, name string) *mocks.MockCompiler {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCompiler(ctrl)
	m.EXPECT().Name().Return(name).AnyTimes()
	return m
}

func TestTransformCachesCompiledOutput(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSource(t, fs, "/app/src/main.ts", source)

	compiler := mockCompiler(t, "fake")
	compiler.EXPECT().
		Compile(source, "/app/src/main.ts").
		Return(compile.Output{Code: "var answer = 42;\n", Map: `{"version":3}`}, nil).
		Times(1)

	c := newCache(t, fs, compiler)

	first, err := c.Transform(source, "/app/src/main.ts")
	require.NoError(t, err)
	second, err := c.Transform(source, "/app/src/main.ts")
	require.NoError(t, err)

	require.Equal(t, "var answer = 42;\n", first)
	require.Equal(t, first, second)
	require.Equal(t, compile.Stats{Hits: 1, Misses: 1}, c.Stats())

	code, err := afero.ReadFile(fs, "/cache/src/main.js")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(code), "var answer = 42;\n"))
	sourceMap, err := afero.ReadFile(fs, "/cache/src/main.map")
	require.NoError(t, err)
	require.Equal(t, `{"version":3}`, string(sourceMap))
}

func TestTransformRecompilesOnceAfterTouch(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSource(t, fs, "/app/main.ts", source)

	compiler := mockCompiler(t, "fake")
	compiler.EXPECT().
		Compile(gomock.Any(), "/app/main.ts").
		Return(compile.Output{Code: "compiled"}, nil).
		Times(2)

	c := newCache(t, fs, compiler)
	_, err := c.Transform(source, "/app/main.ts")
	require.NoError(t, err)

	entry, fresh := c.Lookup("/app/main.ts")
	require.True(t, fresh)
	touched := entry.CacheModTime.Add(time.Second)
	require.NoError(t, fs.Chtimes("/app/main.ts", touched, touched))

	_, fresh = c.Lookup("/app/main.ts")
	require.False(t, fresh)

	for i := 0; i < 3; i++ {
		out, err := c.Transform(source, "/app/main.ts")
		require.NoError(t, err)
		require.Equal(t, "compiled", out)
	}
	require.Equal(t, compile.Stats{Hits: 2, Misses: 2}, c.Stats())
}

func TestTransformTreatsEqualTimestampsAsStale(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSource(t, fs, "/app/main.ts", source)

	compiler := mockCompiler(t, "fake")
	compiler.EXPECT().Compile(gomock.Any(), gomock.Any()).Return(compile.Output{Code: "x"}, nil).Times(1)

	c := newCache(t, fs, compiler)
	_, err := c.Transform(source, "/app/main.ts")
	require.NoError(t, err)

	entry, _ := c.Lookup("/app/main.ts")
	require.NoError(t, fs.Chtimes("/app/main.ts", entry.CacheModTime, entry.CacheModTime))

	_, fresh := c.Lookup("/app/main.ts")
	require.False(t, fresh)
}

func TestTransformRejectsForeignFingerprint(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSource(t, fs, "/app/main.ts", source)

	old := mockCompiler(t, "compiler-v1")
	old.EXPECT().Compile(gomock.Any(), gomock.Any()).Return(compile.Output{Code: "old"}, nil).Times(1)
	_, err := newCache(t, fs, old).Transform(source, "/app/main.ts")
	require.NoError(t, err)

	upgraded := mockCompiler(t, "compiler-v2")
	upgraded.EXPECT().Compile(gomock.Any(), gomock.Any()).Return(compile.Output{Code: "new"}, nil).Times(1)
	out, err := newCache(t, fs, upgraded).Transform(source, "/app/main.ts")
	require.NoError(t, err)
	require.Equal(t, "new", out)
}

func TestTransformReturnsCompileErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSource(t, fs, "/app/bad.ts", "const = ;")

	cause := errors.New("unexpected token")
	compiler := mockCompiler(t, "fake")
	compiler.EXPECT().Compile(gomock.Any(), gomock.Any()).Return(compile.Output{}, cause)

	c := newCache(t, fs, compiler)
	out, err := c.Transform("const = ;", "/app/bad.ts")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected token")
	require.Empty(t, out)

	_, statErr := fs.Stat("/cache/bad.js")
	require.True(t, os.IsNotExist(statErr))
}

type renameFailFs struct {
	afero.Fs
}

func (renameFailFs) Rename(string, string) error {
	return errors.New("disk full")
}

func TestTransformToleratesWriteFailures(t *testing.T) {
	fs := renameFailFs{Fs: afero.NewMemMapFs()}
	writeSource(t, fs, "/app/main.ts", source)

	compiler := mockCompiler(t, "fake")
	compiler.EXPECT().Compile(gomock.Any(), gomock.Any()).Return(compile.Output{Code: "ok", Map: "{}"}, nil).Times(2)

	c := newCache(t, fs, compiler)
	for i := 0; i < 2; i++ {
		out, err := c.Transform(source, "/app/main.ts")
		require.NoError(t, err)
		require.Equal(t, "ok", out)
	}
	require.Equal(t, compile.Stats{Misses: 2}, c.Stats())
}

func TestLocatorsMirrorSourceTree(t *testing.T) {
	c := newCache(t, afero.NewMemMapFs(), mockCompiler(t, "fake"))

	code, sourceMap := c.Locators("/app/src/views/list.tsx")
	require.Equal(t, "src/views/list.js", code.Path)
	require.Equal(t, "src/views/list.map", sourceMap.Path)

	code, _ = c.Locators("lib/util.ts")
	require.Equal(t, "lib/util.js", code.Path)

	code, _ = c.Locators("/elsewhere/widget.jsx")
	require.Equal(t, "__external__/elsewhere/widget.js", code.Path)
}

func TestFingerprintDependsOnCompiler(t *testing.T) {
	require.Equal(t, compile.Fingerprint("a"), compile.Fingerprint("a"))
	require.NotEqual(t, compile.Fingerprint("a"), compile.Fingerprint("b"))
	require.Len(t, compile.Fingerprint("a"), 16)
}

func TestNewRequiresCompiler(t *testing.T) {
	_, err := compile.New(compile.Options{Fs: afero.NewMemMapFs()})
	require.Error(t, err)
}
