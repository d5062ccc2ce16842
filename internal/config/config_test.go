package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bundle-hub/bundle-hub/internal/bundler"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(fixture("valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.ListenPort != 5100 {
		t.Fatalf("ListenPort 应当被解析, got %d", cfg.Global.ListenPort)
	}
	if !filepath.IsAbs(cfg.Global.CacheDir) || !filepath.IsAbs(cfg.Global.Root) {
		t.Fatalf("CacheDir/Root 应转换为绝对路径: %+v", cfg.Global)
	}
	if len(cfg.Bundles) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(cfg.Bundles))
	}

	app := cfg.Bundles[0]
	if len(app.Entry) != 2 || app.Entry[0] != "./src/main.ts" {
		t.Fatalf("Entry 解析错误: %v", app.Entry)
	}
	if app.Require.Aliases["short"] != "long-package-name" {
		t.Fatalf("Require 别名解析错误: %+v", app.Require)
	}
	if app.Debounce.DurationValue() != 250*time.Millisecond {
		t.Fatalf("Debounce 解析错误: %v", app.Debounce.DurationValue())
	}
	if app.Root != cfg.Global.Root {
		t.Fatalf("Bundle Root 应继承全局 Root")
	}

	vendor := cfg.Bundles[1]
	if vendor.Mount != bundler.DefaultMount {
		t.Fatalf("未设置 Mount 时应使用默认值, got %s", vendor.Mount)
	}
	if !vendor.Watch {
		t.Fatalf("Eager 应隐含 Watch")
	}
	if vendor.Debounce.DurationValue() != 100*time.Millisecond {
		t.Fatalf("Debounce 应回退全局默认值")
	}
	if len(vendor.Require.List) != 2 {
		t.Fatalf("Require 列表解析错误: %+v", vendor.Require)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvCacheDir, dir)

	cfg, err := Load(fixture("valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if !cfg.Global.Debug {
		t.Fatalf("%s 应打开 Debug", EnvDebug)
	}
	if cfg.Global.CacheDir != dir {
		t.Fatalf("%s 应覆盖 CacheDir, got %s", EnvCacheDir, cfg.Global.CacheDir)
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateMount(t *testing.T) {
	testCases := []struct {
		name      string
		mount     string
		shouldErr bool
	}{
		{"default", "/bundle.js", false},
		{"nested", "/static/app.js", false},
		{"relative", "bundle.js", true},
		{"reserved", "/-/bundles", true},
		{"query", "/app.js?v=1", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Bundles[0].Mount = tc.mount
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for mount %q", tc.mount)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for mount %q: %v", tc.mount, err)
			}
		})
	}
}

func TestValidateRejectsDuplicateMounts(t *testing.T) {
	cfg := validConfig()
	cfg.Bundles = append(cfg.Bundles, BundleConfig{Name: "other", Mount: "/bundle.js", Entry: bundler.Entries{"x.js"}})
	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Bundle[other].Mount" {
		t.Fatalf("重复 Mount 应返回 FieldError, got %v", err)
	}
}

func TestValidateRequiresContent(t *testing.T) {
	cfg := validConfig()
	cfg.Bundles[0].Entry = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Entry 与 Require 均为空时应报错")
	}
	cfg.Bundles[0].Require = bundler.Requires{List: []string{"react"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("仅 Require 的 Bundle 应合法: %v", err)
	}
}

func TestBundleOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Global.Debug = true
	b := cfg.Bundles[0]
	b.Watch = true
	b.Eager = true
	b.Debounce = Duration(time.Second)

	opts := cfg.BundleOptions(b, nil)
	if opts.Name != "app" || opts.Mount != "/bundle.js" || !opts.Debug {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.CacheDir != cfg.Global.CacheDir || opts.Base != b.Root {
		t.Fatalf("缓存目录应来自全局配置")
	}
	if opts.Watch == nil || !opts.Watch.Eager || opts.Watch.Debounce != time.Second {
		t.Fatalf("watch 选项映射错误: %+v", opts.Watch)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort: 5000,
			CacheDir:   ".bundle-cache",
			Root:       ".",
		},
		Bundles: []BundleConfig{
			{
				Name:  "app",
				Mount: "/bundle.js",
				Root:  "/srv/web",
				Entry: bundler.Entries{"./main.js"},
			},
		},
	}
}
