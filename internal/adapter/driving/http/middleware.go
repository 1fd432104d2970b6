package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

// Identity reads the caller from the X-User-ID header set by the
// authenticating proxy in front of the server.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get("X-User-ID")
		if uid == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing X-User-ID"})
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, domain.UserID(uid))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromCtx(ctx context.Context) domain.UserID {
	if v, ok := ctx.Value(ctxKeyUserID).(domain.UserID); ok {
		return v
	}
	return ""
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	})
}
