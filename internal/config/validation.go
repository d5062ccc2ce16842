package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// diagnosticsPrefix 保留给诊断路由，Bundle 不得挂载在其下。
const diagnosticsPrefix = "/-/"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", "无法识别的日志级别")
		}
	}
	if strings.TrimSpace(g.CacheDir) == "" {
		return newFieldError("Global.CacheDir", "不能为空")
	}
	if g.Debounce.DurationValue() < 0 {
		return newFieldError("Global.Debounce", "不能为负数")
	}

	if len(c.Bundles) == 0 {
		return errors.New("至少需要配置一个 Bundle")
	}

	seenNames := map[string]struct{}{}
	seenMounts := map[string]string{}
	for i := range c.Bundles {
		b := &c.Bundles[i]
		if b.Name == "" {
			return newFieldError("Bundle[].Name", "不能为空")
		}
		if _, exists := seenNames[b.Name]; exists {
			return newFieldError(bundleField(b.Name, "Name"), "重复")
		}
		seenNames[b.Name] = struct{}{}

		if err := validateMount(b.Mount); err != nil {
			return fmt.Errorf("%s: %w", bundleField(b.Name, "Mount"), err)
		}
		if owner, exists := seenMounts[b.Mount]; exists {
			return newFieldError(bundleField(b.Name, "Mount"), "与 "+owner+" 冲突")
		}
		seenMounts[b.Mount] = b.Name

		if len(b.Entry) == 0 && b.Require.IsZero() {
			return newFieldError(bundleField(b.Name, "Entry"), "Entry 与 Require 不能同时为空")
		}
		for _, entry := range b.Entry {
			if strings.TrimSpace(entry) == "" {
				return newFieldError(bundleField(b.Name, "Entry"), "包含空条目")
			}
		}
		for name, target := range b.Require.Aliases {
			if strings.TrimSpace(name) == "" || strings.TrimSpace(target) == "" {
				return newFieldError(bundleField(b.Name, "Require"), "别名与目标均不能为空")
			}
		}
		if b.Debounce.DurationValue() < 0 {
			return newFieldError(bundleField(b.Name, "Debounce"), "不能为负数")
		}
	}

	return nil
}

func validateMount(mount string) error {
	if mount == "" {
		return errors.New("Mount 不能为空")
	}
	if !strings.HasPrefix(mount, "/") {
		return errors.New("Mount 必须以 / 开头")
	}
	if strings.HasPrefix(mount, diagnosticsPrefix) {
		return fmt.Errorf("Mount 不能位于保留前缀 %s 下", diagnosticsPrefix)
	}
	if strings.ContainsAny(mount, " ?#") {
		return errors.New("Mount 不允许包含空格、查询串或片段")
	}
	return nil
}
