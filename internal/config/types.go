package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bundle-hub/bundle-hub/internal/bundler"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "150ms"、"1s" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述全局运行时行为，所有 Bundle 共享同一份参数。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	// Debug 打开 sourceURL 注释与 debug 日志，可由 BUNDLEHUB_DEBUG 覆盖。
	Debug bool `mapstructure:"Debug"`
	// CacheDir 是编译缓存根目录，可由 BUNDLEHUB_CACHE_DIR 覆盖。
	CacheDir string `mapstructure:"CacheDir"`
	// Root 是解析 entry/require 的项目根目录。
	Root     string   `mapstructure:"Root"`
	Debounce Duration `mapstructure:"Debounce"`
}

// BundleConfig 决定单个 bundle 的组成与挂载位置。
type BundleConfig struct {
	Name     string           `mapstructure:"Name"`
	Mount    string           `mapstructure:"Mount"`
	Root     string           `mapstructure:"Root"`
	Entry    bundler.Entries  `mapstructure:"Entry"`
	Require  bundler.Requires `mapstructure:"Require"`
	Ignore   []string         `mapstructure:"Ignore"`
	Exports  string           `mapstructure:"Exports"`
	Watch    bool             `mapstructure:"Watch"`
	Eager    bool             `mapstructure:"Eager"`
	Debounce Duration         `mapstructure:"Debounce"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Bundles []BundleConfig `mapstructure:"Bundle"`
}

// Mounts 返回所有 Bundle 的挂载摘要，例如 app:/bundle.js。
func Mounts(bundles []BundleConfig) []string {
	if len(bundles) == 0 {
		return nil
	}
	result := make([]string, len(bundles))
	for i, b := range bundles {
		result[i] = fmt.Sprintf("%s:%s", b.Name, b.Mount)
	}
	return result
}
