package routes

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/bundle-hub/bundle-hub/internal/server"
)

// RegisterBundleRoutes 暴露 /-/bundles 诊断接口，供运维查询每个 Bundle 的构建状态。
func RegisterBundleRoutes(app *fiber.App, registry *server.BundleRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/bundles", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"bundles": encodeBundles(registry.List()),
		})
	})

	app.Get("/-/bundles/:name", func(c fiber.Ctx) error {
		name := strings.TrimSpace(c.Params("name"))
		if name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bundle_name_required"})
		}
		route, ok := registry.Lookup(name)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "bundle_not_found"})
		}
		return c.JSON(encodeBundle(route))
	})
}

type bundlePayload struct {
	Name         string              `json:"name"`
	Mount        string              `json:"mount"`
	OK           bool                `json:"ok"`
	Cached       bool                `json:"cached"`
	Modified     string              `json:"modified"`
	Watch        bool                `json:"watch"`
	Errors       []errorPayload      `json:"errors"`
	CompileCache compileCachePayload `json:"compile_cache"`
}

type errorPayload struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

type compileCachePayload struct {
	Root   string `json:"root"`
	Hits   int64  `json:"hits"`
	Misses int64  `json:"misses"`
}

func encodeBundles(routes []*server.BundleRoute) []bundlePayload {
	result := make([]bundlePayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeBundle(route))
	}
	return result
}

func encodeBundle(route *server.BundleRoute) bundlePayload {
	b := route.Bundler
	payload := bundlePayload{
		Name:     b.Name(),
		Mount:    b.Mount(),
		OK:       b.OK(),
		Cached:   b.Cached(),
		Modified: FormatModified(b.Modified()),
		Watch:    route.Config.Watch,
		Errors:   encodeErrors(b.Errors()),
	}
	if cc := b.CompileCache(); cc != nil {
		stats := cc.Stats()
		payload.CompileCache = compileCachePayload{Root: cc.Root(), Hits: stats.Hits, Misses: stats.Misses}
	}
	return payload
}

func encodeErrors(errs map[string]error) []errorPayload {
	result := make([]errorPayload, 0, len(errs))
	for file, err := range errs {
		result = append(result, errorPayload{File: file, Message: err.Error()})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].File < result[j].File
	})
	return result
}

// FormatModified 与 Last-Modified 头使用相同格式，便于脚本对比。
func FormatModified(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
