package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"onboarding/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and classifies the device. This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, IsMobile(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IsMobile reports whether the User-Agent belongs to a phone or tablet.
// An explicit mobile app marker wins over parsing.
func IsMobile(ua string) bool {
	if ua == "" {
		return false
	}
	if strings.Contains(ua, "OnboardingApp/") {
		return true
	}
	return useragent.New(ua).Mobile()
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs; the first is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port"; IPv6 is "[::1]:port".
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
