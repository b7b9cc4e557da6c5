package notify

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// 仅保留最近一批通知用于点击回查，超出即淘汰最旧的。
const maxRetained = 50

// ErrNotificationNotFound 表示点击的通知不存在或已关闭。
var ErrNotificationNotFound = errors.New("notification not found")

// ClickAction 描述点击后的处理：聚焦已有同源窗口，或打开通知 URL。
type ClickAction struct {
	Action string `json:"action"` // focus | open
	URL    string `json:"url"`
}

// Center 维护最近展示的通知并解析点击事件。
type Center struct {
	defaults   Defaults
	originHost string
	logger     *logrus.Logger

	mu    sync.Mutex
	items []Notification
}

// NewCenter 构造通知中心；originHost 用于判定已开窗口是否同源。
func NewCenter(defaults Defaults, originHost string, logger *logrus.Logger) *Center {
	return &Center{
		defaults:   defaults,
		originHost: strings.ToLower(originHost),
		logger:     logger,
	}
}

// Display 解析载荷并登记通知，返回展示内容。
func (c *Center) Display(raw []byte) Notification {
	n := ParsePayload(raw, c.defaults)
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()

	c.mu.Lock()
	c.items = append(c.items, n)
	if len(c.items) > maxRetained {
		c.items = c.items[len(c.items)-maxRetained:]
	}
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"action":              "push_display",
		"notification_id":     n.ID,
		"title":               n.Title,
		"require_interaction": n.RequireInteraction,
	}).Info("notification_displayed")
	return n
}

// Click 关闭通知并决定后续动作：存在同源已开窗口则聚焦，
// 否则打开通知关联的 URL（默认根路径）。
func (c *Center) Click(id string, openHosts []string) (ClickAction, error) {
	c.mu.Lock()
	idx := -1
	for i, item := range c.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return ClickAction{}, ErrNotificationNotFound
	}
	n := c.items[idx]
	c.items = append(c.items[:idx], c.items[idx+1:]...)
	c.mu.Unlock()

	action := ClickAction{Action: "open", URL: n.URL}
	for _, host := range openHosts {
		if strings.EqualFold(strings.TrimSpace(host), c.originHost) {
			action = ClickAction{Action: "focus", URL: n.URL}
			break
		}
	}

	c.logger.WithFields(logrus.Fields{
		"action":          "notification_click",
		"notification_id": id,
		"result":          action.Action,
		"url":             action.URL,
	}).Info("notification_clicked")
	return action, nil
}

// Recent 返回当前保留的通知副本，供诊断端输出。
func (c *Center) Recent() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.items...)
}
