package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	s := c.Shell
	if strings.TrimSpace(s.Upstream) == "" {
		return newFieldError(shellField("Upstream"), "不能为空")
	}
	upstream, err := s.UpstreamURL()
	if err != nil {
		return fmt.Errorf("%s: %w", shellField("Upstream"), err)
	}
	if upstream.Scheme != "http" && upstream.Scheme != "https" {
		return newFieldError(shellField("Upstream"), "仅支持 http/https")
	}
	if upstream.Host == "" {
		return newFieldError(shellField("Upstream"), "缺少 Host")
	}

	if err := validateVersionTag(s.CacheVersion); err != nil {
		return fmt.Errorf("%s: %w", shellField("CacheVersion"), err)
	}

	if !strings.HasPrefix(s.OfflinePath, "/") {
		return newFieldError(shellField("OfflinePath"), "必须以 / 开头")
	}

	for _, asset := range s.Precache {
		if strings.TrimSpace(asset) == "" {
			return newFieldError(shellField("Precache"), "清单项不能为空")
		}
	}

	return nil
}

// validateVersionTag 保证版本标签可以安全地充当存储目录名。
func validateVersionTag(tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(tag, "/\\") {
		return errors.New("不允许包含路径分隔符")
	}
	if tag == "." || tag == ".." {
		return errors.New("非法名称")
	}
	return nil
}
