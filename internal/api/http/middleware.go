package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"coldchain-rental-core/internal/domain"
	"coldchain-rental-core/internal/logger"
	"coldchain-rental-core/internal/metrics"
	"coldchain-rental-core/internal/security"

	"github.com/gorilla/mux"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records latency per route template and logs each request.
func instrument(m *metrics.Metrics) mux.MiddlewareFunc {
	log := logger.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			elapsed := time.Since(started)
			m.HTTPRequest(r.Method, route, rec.status, elapsed)
			log.Debug("Request served", "method", r.Method, "route", route, "status", rec.status, "elapsed", elapsed)
		})
	}
}

func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				logger.ErrorContext(r.Context(), "Handler panicked", "method", r.Method, "path", r.URL.Path, "panic", p)
				writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: errorBody{Kind: "INTERNAL", Message: "internal server error"}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate validates the bearer token and puts the caller on the context.
func authenticate(tokens security.TokenManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
				writeUnauthenticated(w, "authorization token is not provided")
				return
			}
			claims, err := tokens.ValidateToken(strings.TrimSpace(header[7:]))
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, security.ErrExpiredToken) {
					msg = "token has expired"
				}
				writeUnauthenticated(w, msg)
				return
			}
			ctx := domain.WithActor(r.Context(), claims.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
