package notify

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shell-box/shell-box/internal/config"
)

// Notification 是一条待展示的通知，字段缺省值来自配置。
type Notification struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	Icon               string    `json:"icon"`
	Badge              string    `json:"badge"`
	Tag                string    `json:"tag"`
	URL                string    `json:"url"`
	RequireInteraction bool      `json:"require_interaction"`
	CreatedAt          time.Time `json:"created_at"`
}

// Defaults 汇总推送展示的默认值与告警关键字。
type Defaults struct {
	Title        string
	Body         string
	Icon         string
	Badge        string
	URL          string
	AlertKeyword string
}

// DefaultsFromShell 从 Shell 配置推导通知默认值。
func DefaultsFromShell(shell config.ShellConfig) Defaults {
	return Defaults{
		Title:        shell.PushTitle,
		Body:         shell.PushBody,
		Icon:         shell.PushIcon,
		Badge:        shell.PushBadge,
		URL:          "/",
		AlertKeyword: shell.AlertKeyword,
	}
}

// pushPayload 是推送消息的可选 JSON 结构，所有字段均可缺省。
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
	Tag   string `json:"tag"`
	Data  struct {
		URL string `json:"url"`
	} `json:"data"`
}

// ParsePayload 解析推送载荷：优先按 JSON 结构化解析，失败则整体视为
// 纯文本正文；缺省字段回填默认值。标题命中告警关键字时要求显式关闭。
func ParsePayload(raw []byte, defaults Defaults) Notification {
	n := Notification{
		Title: defaults.Title,
		Body:  defaults.Body,
		Icon:  defaults.Icon,
		Badge: defaults.Badge,
		URL:   defaults.URL,
	}

	var payload pushPayload
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Title != "" {
			n.Title = payload.Title
		}
		if payload.Body != "" {
			n.Body = payload.Body
		}
		if payload.Icon != "" {
			n.Icon = payload.Icon
		}
		if payload.Badge != "" {
			n.Badge = payload.Badge
		}
		n.Tag = payload.Tag
		if payload.Data.URL != "" {
			n.URL = payload.Data.URL
		}
	} else if text := strings.TrimSpace(string(raw)); text != "" {
		n.Body = text
	}

	if defaults.AlertKeyword != "" &&
		strings.Contains(strings.ToLower(n.Title), strings.ToLower(defaults.AlertKeyword)) {
		n.RequireInteraction = true
	}
	return n
}
