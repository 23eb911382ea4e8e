package middle

import (
	"net/http"
	"strings"

	"github.com/mstgnz/gopos/infra/response"
)

// MaxBodyBytes bounds request bodies accepted by RequestValidationMiddleware.
const MaxBodyBytes = 1 << 20

// SecurityHeadersMiddleware adds security headers to responses. The 3-D
// redirect page posts a form to the bank, so form-action is left open.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// IPWhitelistMiddleware restricts access to the given IPs. An empty list
// allows everyone.
func IPWhitelistMiddleware(allowed []string) func(http.Handler) http.Handler {
	set := make(map[string]bool, len(allowed))
	for _, ip := range allowed {
		if ip = strings.TrimSpace(ip); ip != "" {
			set[ip] = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(set) > 0 && !set[GetClientIP(r)] {
				response.Error(w, http.StatusForbidden, "IP not whitelisted", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isCallbackPath reports whether banks post to path. Banks send
// form-urlencoded bodies there, everything else speaks JSON.
func isCallbackPath(path string) bool {
	return strings.HasPrefix(path, "/callback/")
}

// RequestValidationMiddleware checks the content type and size of bodies.
func RequestValidationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				contentType := r.Header.Get("Content-Type")
				callback := isCallbackPath(r.URL.Path)

				switch {
				case callback && contentType != "" &&
					!strings.Contains(contentType, "application/x-www-form-urlencoded") &&
					!strings.Contains(contentType, "multipart/form-data") &&
					!strings.Contains(contentType, "application/json"):
					response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be a form or JSON", nil)
					return
				case !callback && contentType == "":
					response.Error(w, http.StatusBadRequest, "Content-Type header is required", nil)
					return
				case !callback && !strings.Contains(contentType, "application/json"):
					response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
					return
				}
			}

			if r.ContentLength > MaxBodyBytes {
				response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
			}

			next.ServeHTTP(w, r)
		})
	}
}
