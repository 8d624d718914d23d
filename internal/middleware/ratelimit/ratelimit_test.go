package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketRefills(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 60, Burst: 2})
	defer rl.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	ok, _ := rl.allow("k")
	assert.True(t, ok)
	ok, _ = rl.allow("k")
	assert.True(t, ok)

	ok, wait := rl.allow("k")
	assert.False(t, ok)
	assert.InDelta(t, time.Second, wait, float64(10*time.Millisecond))

	other, _ := rl.allow("other")
	assert.True(t, other, "buckets are per key")

	now = now.Add(1500 * time.Millisecond)
	ok, _ = rl.allow("k")
	assert.True(t, ok)
	ok, _ = rl.allow("k")
	assert.False(t, ok)
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	rl := New(Config{RequestsPerMinute: 1, Burst: 1})
	defer rl.Stop()

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-User-ID", "alice")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-User-ID", "alice")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-User-ID", "bob")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
