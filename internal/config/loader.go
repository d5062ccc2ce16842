package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/bundle-hub/bundle-hub/internal/bundler"
	"github.com/bundle-hub/bundle-hub/internal/compile"
)

// 环境变量仅在此处读取，随后以配置值的形式注入 bundler。
const (
	EnvDebug    = "BUNDLEHUB_DEBUG"
	EnvCacheDir = "BUNDLEHUB_CACHE_DIR"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		bundler.DecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := restoreAliasCase(path, &cfg); err != nil {
		return nil, err
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Bundles {
		applyBundleDefaults(&cfg.Bundles[i], cfg.Global)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.absolutize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// restoreAliasCase 重新读取原始 TOML 中的 Require 表：viper 会把嵌套键转为小写，
// 而别名需要保留原始大小写（例如 jQuery）。
func restoreAliasCase(path string, cfg *Config) error {
	if !strings.EqualFold(filepath.Ext(path), ".toml") {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置失败: %w", err)
	}
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("解析配置失败: %w", err)
	}

	tables, _ := lookupFold(raw, "Bundle").([]interface{})
	for i, item := range tables {
		if i >= len(cfg.Bundles) {
			break
		}
		table, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		aliases, ok := lookupFold(table, "Require").(map[string]interface{})
		if !ok {
			continue
		}
		req, err := bundler.ParseRequires(aliases)
		if err != nil {
			return newFieldError(bundleField(cfg.Bundles[i].Name, "Require"), err.Error())
		}
		cfg.Bundles[i].Require.Aliases = req.Aliases
	}
	return nil
}

func lookupFold(m map[string]interface{}, key string) interface{} {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("Debug", false)
	v.SetDefault("CacheDir", compile.DefaultRoot)
	v.SetDefault("Root", ".")
	v.SetDefault("Debounce", "100ms")
}

func bindEnv(v *viper.Viper) error {
	if err := v.BindEnv("Debug", EnvDebug); err != nil {
		return fmt.Errorf("绑定 %s 失败: %w", EnvDebug, err)
	}
	if err := v.BindEnv("CacheDir", EnvCacheDir); err != nil {
		return fmt.Errorf("绑定 %s 失败: %w", EnvCacheDir, err)
	}
	return nil
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.CacheDir) == "" {
		g.CacheDir = compile.DefaultRoot
	}
	if strings.TrimSpace(g.Root) == "" {
		g.Root = "."
	}
	if g.Debounce.DurationValue() <= 0 {
		g.Debounce = Duration(100 * time.Millisecond)
	}
}

func applyBundleDefaults(b *BundleConfig, g GlobalConfig) {
	b.Name = strings.TrimSpace(b.Name)
	if b.Mount = strings.TrimSpace(b.Mount); b.Mount == "" {
		b.Mount = bundler.DefaultMount
	}
	b.Root = strings.TrimSpace(b.Root)
	if b.Debounce.DurationValue() <= 0 {
		b.Debounce = g.Debounce
	}
	if b.Eager {
		b.Watch = true
	}
}

func (c *Config) absolutize() error {
	cacheDir, err := filepath.Abs(c.Global.CacheDir)
	if err != nil {
		return fmt.Errorf("无法解析缓存目录: %w", err)
	}
	c.Global.CacheDir = cacheDir

	root, err := filepath.Abs(c.Global.Root)
	if err != nil {
		return fmt.Errorf("无法解析项目根目录: %w", err)
	}
	c.Global.Root = root

	for i := range c.Bundles {
		b := &c.Bundles[i]
		switch {
		case b.Root == "":
			b.Root = root
		case !filepath.IsAbs(b.Root):
			b.Root = filepath.Join(root, b.Root)
		}
	}
	return nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
