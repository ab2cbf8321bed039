package daemon

import (
	"net/http"
	"strings"

	"evalpanel/internal/services"
)

// Caller identity headers set by the upstream auth layer.
const (
	headerTenantID = "X-Tenant-ID"
	headerUserID   = "X-User-ID"
	headerRole     = "X-Caller-Role"
)

// authMiddleware returns a middleware that validates bearer tokens.
// If token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include "Authorization: Bearer <token>" header.
func authMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		if strings.TrimPrefix(auth, "Bearer ") != token {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerFromRequest reads the caller headers. A missing tenant falls back to
// defaultTenant and a missing role to manager.
func callerFromRequest(r *http.Request, defaultTenant string) (services.Caller, error) {
	caller := services.Caller{
		TenantID: strings.TrimSpace(r.Header.Get(headerTenantID)),
		UserID:   strings.TrimSpace(r.Header.Get(headerUserID)),
		Role:     strings.ToLower(strings.TrimSpace(r.Header.Get(headerRole))),
	}
	if caller.TenantID == "" {
		caller.TenantID = defaultTenant
	}
	switch caller.Role {
	case "":
		caller.Role = services.RoleManager
	case services.RoleAdmin, services.RoleManager:
	case services.RoleRestricted:
		if caller.UserID == "" {
			return services.Caller{}, services.Validation("api", "caller", "restricted callers must send "+headerUserID)
		}
	default:
		return services.Caller{}, services.Validation("api", "caller", "unknown caller role "+caller.Role)
	}
	return caller, caller.Validate()
}
