package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bindevz/toolrt/runtime/dispatch"
)

// buildExecutionContext assembles a dispatch.ExecutionContext from the
// request headers named in spec §6: X-Tenant-Id, X-User-Id, X-Roles (CSV),
// X-Conversation-Id, X-Correlation-Id, and a bearer JWT whose roles|role|
// groups claim is used only when X-Roles is absent.
func buildExecutionContext(c *gin.Context) dispatch.ExecutionContext {
	correlationID := c.GetHeader("X-Correlation-Id")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	roles := splitCSV(c.GetHeader("X-Roles"))
	if len(roles) == 0 {
		roles = rolesFromBearerToken(c.GetHeader("Authorization"))
	}

	return dispatch.ExecutionContext{
		TenantID:       c.GetHeader("X-Tenant-Id"),
		UserID:         c.GetHeader("X-User-Id"),
		Roles:          roles,
		CorrelationID:  correlationID,
		RequestID:      uuid.NewString(),
		TraceID:        c.GetHeader("X-Trace-Id"),
		ConversationID: c.GetHeader("X-Conversation-Id"),
	}
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// rolesFromBearerToken extracts roles from the roles|role|groups claim of a
// bearer JWT without verifying its signature. The demo trusts that an
// upstream gateway has already validated the token; a production deployment
// must verify against the issuer's key set before trusting these claims.
func rolesFromBearerToken(authHeader string) []string {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return nil
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	if raw == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil
	}

	for _, key := range []string{"roles", "role", "groups"} {
		if v, ok := claims[key]; ok {
			if roles := claimToRoles(v); len(roles) > 0 {
				return roles
			}
		}
	}
	return nil
}

func claimToRoles(v any) []string {
	switch val := v.(type) {
	case string:
		return splitCSV(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
