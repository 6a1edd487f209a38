package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const defaultTokenLookup = "header:" + fiber.HeaderAuthorization

// Extractor pulls a raw token out of a request. It returns "" when the
// source holds no usable token.
type Extractor func(c *fiber.Ctx) string

// Extractors parses a lookup such as
// "header:Authorization,cookie:shield_token,query:token" into extractors
// tried in order. Unknown sources are skipped.
func Extractors(lookup, authScheme string) []Extractor {
	out := make([]Extractor, 0, 2)
	for _, part := range strings.Split(lookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		source, name = strings.TrimSpace(source), strings.TrimSpace(name)
		if name == "" {
			continue
		}
		switch source {
		case "header":
			out = append(out, fromHeader(name, authScheme))
		case "query":
			out = append(out, fromQuery(name))
		case "param":
			out = append(out, fromParam(name))
		case "cookie":
			out = append(out, fromCookie(name))
		}
	}
	return out
}

func extract(c *fiber.Ctx, extractors []Extractor) string {
	for _, fn := range extractors {
		if token := fn(c); token != "" {
			return token
		}
	}
	return ""
}

func fromHeader(header, authScheme string) Extractor {
	return func(c *fiber.Ctx) string {
		value := strings.TrimSpace(c.Get(header))
		if authScheme == "" {
			return value
		}
		scheme, token, ok := strings.Cut(value, " ")
		if !ok || !strings.EqualFold(scheme, authScheme) {
			return ""
		}
		return strings.TrimSpace(token)
	}
}

func fromQuery(name string) Extractor {
	return func(c *fiber.Ctx) string { return c.Query(name) }
}

func fromParam(name string) Extractor {
	return func(c *fiber.Ctx) string { return c.Params(name) }
}

func fromCookie(name string) Extractor {
	return func(c *fiber.Ctx) string { return c.Cookies(name) }
}
