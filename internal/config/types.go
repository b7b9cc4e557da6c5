package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
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

// GlobalConfig 描述全局运行时行为（监听、日志、存储与上游超时）。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// ShellConfig 决定离线壳代理如何拦截与缓存：上游源站、当前缓存版本标签、
// 安装期预缓存清单、实时数据旁路片段以及推送通知默认值。
type ShellConfig struct {
	Upstream       string   `mapstructure:"Upstream"`
	CacheVersion   string   `mapstructure:"CacheVersion"`
	OfflinePath    string   `mapstructure:"OfflinePath"`
	Precache       []string `mapstructure:"Precache"`
	RealtimeBypass []string `mapstructure:"RealtimeBypass"`
	AlertKeyword   string   `mapstructure:"AlertKeyword"`
	PushTitle      string   `mapstructure:"PushTitle"`
	PushBody       string   `mapstructure:"PushBody"`
	PushIcon       string   `mapstructure:"PushIcon"`
	PushBadge      string   `mapstructure:"PushBadge"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Shell  ShellConfig  `mapstructure:"Shell"`
}

// UpstreamURL 返回解析后的源站地址。Validate 通过后调用不会失败。
func (s ShellConfig) UpstreamURL() (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(s.Upstream))
	if err != nil {
		return nil, fmt.Errorf("解析上游地址失败: %w", err)
	}
	return parsed, nil
}

// IsRealtime 判断 URL 是否命中实时数据旁路片段（子串匹配）。
func (s ShellConfig) IsRealtime(rawURL string) bool {
	for _, fragment := range s.RealtimeBypass {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		if strings.Contains(rawURL, fragment) {
			return true
		}
	}
	return false
}
