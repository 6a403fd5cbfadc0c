package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminTokenSubject is the subject of tokens accepted on user-data routes.
const AdminTokenSubject = "bookingbot-admin"

// NewAdminToken signs an HS256 token for the user-data routes that expires after ttl.
func NewAdminToken(secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("api: empty admin secret")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   AdminTokenSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// adminJWT guards routes that read or act on a user's conversation. With no
// secret configured the routes are closed.
func adminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeError(w, http.StatusUnauthorized, "User data API disabled: no API secret configured")
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Missing bearer token")
				return
			}
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithSubject(AdminTokenSubject), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				slog.Warn("adminJWT: rejected token", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
