package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// BundleFields 提供 bundle/mount/构建状态字段，供服务端请求日志复用。
func BundleFields(name, mount string, ok bool, errorCount int) logrus.Fields {
	return logrus.Fields{
		"bundle":      name,
		"mount":       mount,
		"bundle_ok":   ok,
		"error_count": errorCount,
	}
}
