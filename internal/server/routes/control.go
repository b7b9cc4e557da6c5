package routes

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shell-box/shell-box/internal/lifecycle"
	"github.com/shell-box/shell-box/internal/notify"
)

// 进程间消息契约只认两个字面量命令，其余静默忽略。
const (
	commandSkipWaiting = "SKIP_WAITING"
	commandClearCache  = "CLEAR_CACHE"
)

// ControlOptions 汇总控制端点依赖。
type ControlOptions struct {
	Logger    *logrus.Logger
	Lifecycle *lifecycle.Manager
	Center    *notify.Center
}

// RegisterControlRoutes 暴露 /-/ 控制面：消息命令、推送投递、
// 通知点击、后台重连触发与状态诊断。
func RegisterControlRoutes(app *fiber.App, opts ControlOptions) {
	if app == nil || opts.Lifecycle == nil {
		return
	}

	app.Post("/-/message", func(c fiber.Ctx) error {
		command := strings.TrimSpace(string(c.Body()))
		switch command {
		case commandSkipWaiting:
			if err := opts.Lifecycle.Activate(requestContext(c)); err != nil {
				return controlError(c, opts.Logger, "message", err)
			}
			return c.JSON(fiber.Map{"result": "activated"})
		case commandClearCache:
			if err := opts.Lifecycle.Wipe(requestContext(c)); err != nil {
				return controlError(c, opts.Logger, "message", err)
			}
			return c.JSON(fiber.Map{"result": "wiped"})
		default:
			opts.Logger.WithFields(logrus.Fields{
				"action":  "message",
				"command": command,
			}).Debug("message_ignored")
			return c.SendStatus(fiber.StatusNoContent)
		}
	})

	app.Post("/-/push", func(c fiber.Ctx) error {
		if opts.Center == nil {
			return c.SendStatus(fiber.StatusNotImplemented)
		}
		n := opts.Center.Display(append([]byte(nil), c.Body()...))
		return c.Status(fiber.StatusCreated).JSON(n)
	})

	app.Post("/-/notifications/:id/click", func(c fiber.Ctx) error {
		if opts.Center == nil {
			return c.SendStatus(fiber.StatusNotImplemented)
		}

		var payload struct {
			OpenHosts []string `json:"open_hosts"`
		}
		if body := c.Body(); len(body) > 0 {
			// 请求体可选；无法解析时按无已开窗口处理。
			_ = json.Unmarshal(body, &payload)
		}

		action, err := opts.Center.Click(c.Params("id"), payload.OpenHosts)
		if err != nil {
			if errors.Is(err, notify.ErrNotificationNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "notification_not_found"})
			}
			return controlError(c, opts.Logger, "notification_click", err)
		}
		return c.JSON(action)
	})

	// 后台重连触发只做识别与记账，不排队重试。
	app.Post("/-/sync", func(c fiber.Ctx) error {
		tag := strings.TrimSpace(string(c.Body()))
		opts.Logger.WithFields(logrus.Fields{
			"action": "sync_trigger",
			"tag":    tag,
		}).Info("sync_recognized")
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"result": "accepted"})
	})

	app.Get("/-/status", func(c fiber.Ctx) error {
		status, err := opts.Lifecycle.Describe()
		if err != nil {
			return controlError(c, opts.Logger, "status", err)
		}
		payload := fiber.Map{
			"version": status.Version,
			"state":   status.State,
			"buckets": status.Buckets,
			"entries": status.Entries,
			"precache": fiber.Map{
				"stored":  status.Stored,
				"skipped": status.Skipped,
			},
		}
		if opts.Center != nil {
			payload["notifications"] = len(opts.Center.Recent())
		}
		return c.JSON(payload)
	})
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func controlError(c fiber.Ctx, logger *logrus.Logger, action string, err error) error {
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"action": action,
			"error":  err.Error(),
		}).Error("control_failed")
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "control_failed"})
}
