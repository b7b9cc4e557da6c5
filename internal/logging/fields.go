package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 lane/来源字段，供拦截请求日志复用。
// source 取值为 live/cache/fallback/bypass 之一。
func RequestFields(lane, method, url, source string) logrus.Fields {
	return logrus.Fields{
		"lane":   lane,
		"method": method,
		"url":    url,
		"source": source,
	}
}

// LifecycleFields 提供 install/activate 等生命周期事件的公共字段。
func LifecycleFields(action, version string) logrus.Fields {
	return logrus.Fields{
		"action":  action,
		"version": version,
	}
}
