package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bundle-hub/bundle-hub/internal/logging"
)

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *BundleRegistry
	ListenPort int
}

const contextKeyRequestID = "_bundlehub_request_id"

// NewApp builds a Fiber application that serves every registered bundle at
// its mount path and answers everything else with a JSON 404. Diagnostics
// routes under /-/ are left to handlers registered after NewApp returns.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("bundle registry is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())
	app.Use(accessLogMiddleware(opts))
	for _, route := range opts.Registry.List() {
		app.Use(route.Bundler.Handler())
	}

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(c.Path()) {
			return c.Next()
		}
		return renderNotFound(c, opts.Logger, opts.ListenPort)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// accessLogMiddleware 在 bundle 响应写出后记录一条结构化日志。
func accessLogMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		err := c.Next()

		route, ok := opts.Registry.LookupMount(c.Path())
		if !ok {
			return err
		}
		b := route.Bundler
		fields := logging.BundleFields(b.Name(), b.Mount(), b.OK(), len(b.Errors()))
		fields["action"] = "serve"
		fields["status"] = c.Response().StatusCode()
		fields["request_id"] = RequestID(c)
		entry := opts.Logger.WithFields(fields)
		if b.OK() {
			entry.Info("bundle served")
		} else {
			entry.Warn("bundle served with errors")
		}
		return err
	}
}

func renderNotFound(c fiber.Ctx, logger *logrus.Logger, port int) error {
	logger.WithFields(logrus.Fields{
		"action": "route_lookup",
		"path":   c.Path(),
		"port":   port,
	}).Debug("no bundle mounted")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "not_found",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
