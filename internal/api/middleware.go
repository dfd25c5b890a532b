package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/IlyasAtabaev731/shopper/internal/lib/jwt"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const tokenHeader = "auth-token"

type contextKey string

const userIDKey contextKey = "userID"

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func (s *APIServer) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(tokenHeader)
		if token == "" {
			if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				token = strings.TrimSpace(bearer)
			}
		}

		userID, err := s.services.Tokens.Verify(token)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrUnauthenticated) {
				msg = "No token"
			}
			s.logger.Debug("Rejected request", slog.String("path", r.URL.Path), "error", err)
			writeJSON(w, http.StatusUnauthorized, tokenErrorResponse{Errors: msg})
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
		next(w, r)
	}
}

func (s *APIServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.logger.Info("Request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
