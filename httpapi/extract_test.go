package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractors(t *testing.T) {
	extractors := Extractors("header:Authorization, cookie:shield_token,query:token,bogus", "Bearer")
	require.Len(t, extractors, 3)

	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(extract(c, extractors))
	})

	noop := func(*http.Request) {}
	tests := []struct {
		name   string
		target string
		setup  func(r *http.Request)
		want   string
	}{
		{"header", "/", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc"},
		{"wrong scheme", "/", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, ""},
		{"cookie", "/", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "shield_token", Value: "from-cookie"}) }, "from-cookie"},
		{"query", "/?token=from-query", noop, "from-query"},
		{"header wins", "/?token=second", func(r *http.Request) { r.Header.Set("Authorization", "Bearer first") }, "first"},
		{"none", "/", noop, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			tt.setup(req)
			res, err := app.Test(req)
			require.NoError(t, err)
			body := make([]byte, 64)
			n, _ := res.Body.Read(body)
			assert.Equal(t, tt.want, string(body[:n]))
		})
	}
}
