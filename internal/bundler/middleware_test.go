package bundler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/require"
)

func newMiddlewareApp(t *testing.T, b *Bundler) (*fiber.App, *int) {
	t.Helper()
	passed := 0
	app := fiber.New()
	app.Use(b.Handler())
	app.Get("/*", func(c fiber.Ctx) error {
		passed++
		return c.SendString("next")
	})
	return app, &passed
}

func TestHandlerServesBundleAtMount(t *testing.T) {
	clock := newFakeClock()
	opts := testOptions(clock)
	opts.Mount = "/js/app.js"
	b, _ := newFakeBundler(t, opts)
	app, passed := newMiddlewareApp(t, b)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://example.test/js/app.js", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "text/javascript", resp.Header.Get("Content-Type"))
	require.Equal(t, clock.Now().Format(http.TimeFormat), resp.Header.Get("Last-Modified"))
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "bundle#1", string(body))
	require.Zero(t, *passed)
}

func TestHandlerPassesOtherPathsThrough(t *testing.T) {
	b, eng := newFakeBundler(t, testOptions(newFakeClock()))
	app, passed := newMiddlewareApp(t, b)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://example.test/other.js", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "next", string(body))
	require.Equal(t, 1, *passed)
	require.Zero(t, eng.bundles.Load())
}

func TestHandlerAnswersNotModified(t *testing.T) {
	clock := newFakeClock()
	b, _ := newFakeBundler(t, testOptions(clock))
	app, _ := newMiddlewareApp(t, b)

	req := httptest.NewRequest(http.MethodGet, "http://example.test"+DefaultMount, nil)
	req.Header.Set("If-Modified-Since", clock.Now().Format(http.TimeFormat))
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotModified, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "http://example.test"+DefaultMount, nil)
	req.Header.Set("If-Modified-Since", clock.Now().Add(-time.Hour).Format(http.TimeFormat))
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHandlerServesFailedBundle(t *testing.T) {
	b, eng := newFakeBundler(t, testOptions(newFakeClock()))
	eng.errs = map[string]error{"/app/b.ts": io.ErrUnexpectedEOF}
	app, _ := newMiddlewareApp(t, b)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://example.test"+DefaultMount, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.False(t, b.OK())
}

func TestHTTPMiddleware(t *testing.T) {
	clock := newFakeClock()
	b, _ := newFakeBundler(t, testOptions(clock))
	passed := 0
	h := b.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		passed++
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultMount, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/javascript", rec.Header().Get("Content-Type"))
	require.Equal(t, clock.Now().Format(http.TimeFormat), rec.Header().Get("Last-Modified"))
	require.Equal(t, "bundle#1", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, 1, passed)
}
