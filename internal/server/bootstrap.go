package server

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bundle-hub/bundle-hub/internal/bundler"
	"github.com/bundle-hub/bundle-hub/internal/config"
	"github.com/bundle-hub/bundle-hub/internal/engine/concat"
)

// BuildRegistry 为每个 [[Bundle]] 创建 concat 引擎与 Bundler 并登记到注册表。
// 任一 Bundle 失败时，已创建的 Bundler 会被结束。
func BuildRegistry(cfg *config.Config, logger *logrus.Logger) (*BundleRegistry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	registry := NewBundleRegistry()
	for _, bc := range cfg.Bundles {
		b, err := buildBundler(cfg, bc, logger)
		if err == nil {
			err = registry.Add(bc, b)
			if err != nil {
				_ = b.End()
			}
		}
		if err != nil {
			_ = registry.Close()
			return nil, err
		}
	}
	return registry, nil
}

func buildBundler(cfg *config.Config, bc config.BundleConfig, logger *logrus.Logger) (*bundler.Bundler, error) {
	eng, err := concat.New(concat.Options{Root: bc.Root, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("bundle %s: engine: %w", bc.Name, err)
	}
	b, err := bundler.New(eng, cfg.BundleOptions(bc, logger))
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", bc.Name, err)
	}
	return b, nil
}
