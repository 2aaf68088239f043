package auth

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/config"
)

// BearerMiddleware rejects any request whose Authorization header does not
// carry the configured bearer token, used on the read-mostly dashboard
// routes.
func BearerMiddleware(cfg config.AuthConfig, log zerolog.Logger) func(http.Handler) http.Handler {
	signer := NewSigner(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == header || !signer.VerifyBearer(token, cfg.BearerToken) {
				log.Warn().Str("path", r.URL.Path).Msg("rejected request: invalid bearer token")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HMACMiddleware verifies the X-Brain-Timestamp / X-Brain-Signature pair
// on mutating operator endpoints (risk halt, breaker reset, admin
// override). The body is buffered and replaced so downstream handlers can
// still read it.
func HMACMiddleware(cfg config.AuthConfig, log zerolog.Logger) func(http.Handler) http.Handler {
	signer := NewSigner(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tsHeader := r.Header.Get("X-Brain-Timestamp")
			sig := r.Header.Get("X-Brain-Signature")
			ts, err := strconv.ParseInt(tsHeader, 10, 64)
			if tsHeader == "" || sig == "" || err != nil {
				http.Error(w, "missing signature headers", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := signer.Verify(ts, body, sig, time.Now().UTC()); err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("rejected request: signature verification failed")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
