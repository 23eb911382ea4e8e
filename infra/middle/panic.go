package middle

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/infra/response"
)

// PanicRecoveryMiddleware handles panics and converts them to HTTP 500 errors
func PanicRecoveryMiddleware() func(http.Handler) http.Handler {
	return PanicRecoveryWithCustomHandler(internalError)
}

// PanicRecoveryWithCustomHandler hands recovered panics to handler.
// http.ErrAbortHandler is re-raised so net/http can abort the response.
func PanicRecoveryWithCustomHandler(handler func(http.ResponseWriter, *http.Request, any)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}
				handler(w, r, err)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func internalError(w http.ResponseWriter, r *http.Request, err any) {
	stack := debug.Stack()
	merchantKey := GetMerchantKey(r.Context())
	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = r.Header.Get("X-Request-ID")
	}

	// stdlib fallback in case the structured logger itself panicked
	log.Printf("PANIC RECOVERED: %v | %s %s | merchant=%s | request_id=%s",
		err, r.Method, r.URL.Path, merchantKey, requestID)

	logger.Error("Panic recovered", fmt.Errorf("%v", err), logger.LogContext{
		MerchantKey: merchantKey,
		RequestID:   requestID,
		Fields: map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"stack":  string(stack),
		},
	})

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	response.Error(w, http.StatusInternalServerError, "Internal server error", fmt.Errorf("an unexpected error occurred"))
}
