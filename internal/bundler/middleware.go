package bundler

import (
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
)

const contentTypeJS = "text/javascript"

// Handler serves the bundle at the mount path and passes every other request
// to the next handler. The response is 200 even when the bundle has errors;
// callers inspect OK to react.
func (b *Bundler) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Path() != b.mount {
			return c.Next()
		}

		res := b.Bundle(c.Context())
		modified := b.Modified()

		c.Set(fiber.HeaderLastModified, modified.UTC().Format(http.TimeFormat))
		c.Set(fiber.HeaderContentType, contentTypeJS)
		if notModified(c.Get(fiber.HeaderIfModifiedSince), modified) {
			return c.SendStatus(fiber.StatusNotModified)
		}
		return c.Status(fiber.StatusOK).SendString(res.Text)
	}
}

// HTTPMiddleware is Handler for net/http servers. A nil next answers 404 for
// other paths.
func (b *Bundler) HTTPMiddleware(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != b.mount {
			next.ServeHTTP(w, r)
			return
		}

		res := b.Bundle(r.Context())
		modified := b.Modified()

		w.Header().Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", contentTypeJS)
		if notModified(r.Header.Get("If-Modified-Since"), modified) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, res.Text)
		}
	})
}

// notModified compares at the one-second resolution of HTTP dates.
func notModified(ifModifiedSince string, modified time.Time) bool {
	if ifModifiedSince == "" {
		return false
	}
	since, err := http.ParseTime(ifModifiedSince)
	if err != nil {
		return false
	}
	return !modified.Truncate(time.Second).After(since)
}
