package auth

import (
	"net/http"
	"strings"
)

const (
	// ActionMCP is the action of tokens accepted on the MCP endpoint.
	ActionMCP = "mcp"
	// MCPSubject is the session id claim of MCP operator tokens.
	MCPSubject = "mcp-operator"
	// PurposeMCP is the DeriveKey purpose of the MCP token key.
	PurposeMCP = "mcp-token"
)

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireBearer rejects requests without a valid bearer token issued for
// subject and action. Unlike Sessions.Middleware it enforces: nothing
// reaches next unauthenticated.
func RequireBearer(secret []byte, subject, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := VerifyToken(secret, BearerToken(r), subject, action); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="cardcrafter"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
