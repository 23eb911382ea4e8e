package middle

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mstgnz/gopos/infra/config"
	"github.com/mstgnz/gopos/infra/response"
)

// MerchantHeader names the merchant whose gateway accounts a request uses.
const MerchantHeader = "X-Merchant-Key"

const merchantKeyCtx config.CKey = "merchant_key"

// WithMerchantKey returns ctx carrying the merchant key.
func WithMerchantKey(ctx context.Context, merchantKey string) context.Context {
	return context.WithValue(ctx, merchantKeyCtx, merchantKey)
}

// GetMerchantKey returns the merchant key set by AuthMiddleware, or "".
func GetMerchantKey(ctx context.Context) string {
	if v, ok := ctx.Value(merchantKeyCtx).(string); ok {
		return v
	}
	return ""
}

// AuthMiddleware validates the Bearer API key and requires a merchant key
// header, which it puts on the request context.
func AuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				response.Error(w, http.StatusInternalServerError, "API key not configured", nil)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Error(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				response.Error(w, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <api_key>", nil)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				response.Error(w, http.StatusUnauthorized, "API key required", nil)
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				response.Error(w, http.StatusUnauthorized, "Invalid API key", nil)
				return
			}

			merchantKey := strings.TrimSpace(r.Header.Get(MerchantHeader))
			if merchantKey == "" {
				response.Error(w, http.StatusBadRequest, MerchantHeader+" header required", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithMerchantKey(r.Context(), merchantKey)))
		})
	}
}
