package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/monopolymoney/moneyservice/internal/auth"
)

func extractTokenFromCookie(cookie string) string {
	parts := strings.Split(cookie, "auth_token=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// requireUserID authenticates the request's auth_token cookie and returns the
// caller's opaque user id.
func requireUserID(r *http.Request) (string, error) {
	cookie := r.Header.Get("Cookie")
	if !strings.Contains(cookie, "auth_token=") {
		return "", fmt.Errorf("missing auth_token")
	}
	userID, err := auth.AuthenticateJWT(extractTokenFromCookie(cookie))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return userID, nil
}
