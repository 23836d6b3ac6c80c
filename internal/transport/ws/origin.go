package ws

import (
	"net/http"
	"net/url"
	"strings"
)

// originChecker: пустой список или "*" разрешают всё. Запросы без Origin
// (не браузерные клиенты) пропускаются.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed, allowAll := normalizeOrigins(origins)
	if allowAll || len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		header := r.Header.Get("Origin")
		if header == "" {
			return true
		}
		origin, ok := normalizeOrigin(header)
		if !ok {
			return false
		}
		_, exists := allowed[origin]
		return exists
	}
}

func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	normalized := make(map[string]struct{}, len(origins))
	allowAll := false

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			allowAll = true
			continue
		}
		if o, ok := normalizeOrigin(trimmed); ok {
			normalized[o] = struct{}{}
		}
	}

	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
