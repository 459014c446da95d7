package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/vitibrasil/internal/auth"
)

// TokenValidator validates a bearer token. *auth.Issuer satisfies it.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

type subjectKey struct{}

// Subject returns the authenticated subject stored by BearerAuth.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// authError is the body of a rejected request.
type authError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	errMissingToken = authError{
		Error:   "Token não fornecido.",
		Message: "Você precisa fornecer um token válido no cabeçalho Authorization.",
	}
	errInvalidToken = authError{
		Error:   "Token inválido.",
		Message: "O token fornecido é inválido ou expirou. Faça login novamente para obter um novo token.",
	}
	errExpiredToken = authError{
		Error:   "Token expirado.",
		Message: "O token fornecido expirou. Faça login novamente para obter um novo token.",
	}
)

// BearerAuth returns middleware that requires a valid "Authorization: Bearer"
// token. A missing or expired token is 401; a malformed or forged one is 422.
func BearerAuth(v TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)

			claims, err := v.Validate(token)
			if err != nil {
				status, body := http.StatusUnprocessableEntity, errInvalidToken
				switch {
				case errors.Is(err, auth.ErrTokenMissing):
					status, body = http.StatusUnauthorized, errMissingToken
				case errors.Is(err, auth.ErrTokenExpired):
					status, body = http.StatusUnauthorized, errExpiredToken
				}
				slog.Warn("auth: rejected token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				writeAuthError(w, status, body)
				return
			}

			reportSubject(r.Context(), claims.Subject)
			ctx := context.WithValue(r.Context(), subjectKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeAuthError(w http.ResponseWriter, status int, body authError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}
