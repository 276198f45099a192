package transport

import (
	"net/http"
	"strings"
)

// extractBearerToken pulls the token out of "Authorization: Bearer
// <token>", the one header both the MCP and plugin-channel endpoints
// authenticate with.
func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}
