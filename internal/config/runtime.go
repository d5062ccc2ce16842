package config

import (
	"github.com/sirupsen/logrus"

	"github.com/bundle-hub/bundle-hub/internal/bundler"
)

// BundleOptions 将全局配置与单个 Bundle 配置合并为 bundler.Options。
// 调用方仍需补充 Compiler、Fs 等运行时依赖（为空时 bundler 使用默认值）。
func (c *Config) BundleOptions(b BundleConfig, logger *logrus.Logger) bundler.Options {
	opts := bundler.Options{
		Name:     b.Name,
		Entry:    append(bundler.Entries(nil), b.Entry...),
		Require:  b.Require,
		Ignore:   append([]string(nil), b.Ignore...),
		Mount:    b.Mount,
		Exports:  b.Exports,
		Debug:    c.Global.Debug,
		CacheDir: c.Global.CacheDir,
		Base:     b.Root,
		Logger:   logger,
	}
	if b.Watch {
		opts.Watch = &bundler.WatchOptions{
			Eager:    b.Eager,
			Debounce: b.Debounce.DurationValue(),
		}
	}
	return opts
}
