package controllers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestFormatTimePtr(t *testing.T) {
	assert.Nil(t, formatTimePtr(nil))

	now := time.Date(2026, 5, 1, 12, 34, 56, 0, time.Local)
	formatted := formatTimePtr(&now)
	assert.IsType(t, "", formatted)

	expected := now.UTC().Format(time.RFC3339)
	assert.Equal(t, expected, formatted)
}

func TestGetClientIP(t *testing.T) {
	app := fiber.New()

	var got string
	app.Get("/ip", func(c *fiber.Ctx) error {
		got = GetClientIP(c)
		return c.SendStatus(fiber.StatusOK)
	})

	// Cloudflare header wins over everything else
	req := httptest.NewRequest("GET", "/ip", nil)
	req.Header.Set("CF-Connecting-IP", "203.0.113.7")
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	_, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, "203.0.113.7", got)

	// Without Cloudflare the first X-Forwarded-For entry is the client
	req = httptest.NewRequest("GET", "/ip", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	_, err = app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, "198.51.100.1", got)
}

func TestFirstHeaderValue(t *testing.T) {
	app := fiber.New()

	var got string
	app.Get("/h", func(c *fiber.Ctx) error {
		got = firstHeaderValue(c, "X-Event-Id", "X-Event-ID")
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/h", nil)
	req.Header.Set("X-Event-ID", "evt_123")
	_, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, "evt_123", got)

	req = httptest.NewRequest("GET", "/h", nil)
	_, err = app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()

	var offset, limit int
	app.Get("/p", func(c *fiber.Ctx) error {
		offset, limit = parsePagination(c, 50, 200)
		return c.SendStatus(fiber.StatusOK)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/p", nil))
	assert.NoError(t, err)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 50, limit)

	_, err = app.Test(httptest.NewRequest("GET", "/p?page=3&limit=20", nil))
	assert.NoError(t, err)
	assert.Equal(t, 40, offset)
	assert.Equal(t, 20, limit)

	// limit is capped, junk falls back to defaults
	_, err = app.Test(httptest.NewRequest("GET", "/p?page=abc&limit=9999", nil))
	assert.NoError(t, err)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 200, limit)
}
