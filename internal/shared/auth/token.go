package auth

import (
	"net/http"
	"strings"
)

// ExtractBearerTokenFromHeader returns the token carried by an Authorization
// header value, or "" when the header is not a bearer credential.
func ExtractBearerTokenFromHeader(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// ExtractToken looks for a handshake token in the Authorization header first
// and then in the given query parameter (default "token").
func ExtractToken(r *http.Request, queryParam string) string {
	if r == nil {
		return ""
	}
	if token := ExtractBearerTokenFromHeader(r.Header.Get("Authorization")); token != "" {
		return token
	}
	if queryParam == "" {
		queryParam = "token"
	}
	if r.URL == nil {
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get(queryParam))
}
