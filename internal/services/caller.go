package services

import "strings"

// Role values understood by the query layer.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleRestricted = "restricted"
)

// Caller is the identity and tenant scope handed over by the external auth layer.
type Caller struct {
	UserID   string
	TenantID string
	Role     string
}

// Restricted reports whether the caller may only see jobs they created.
func (c Caller) Restricted() bool {
	return strings.EqualFold(strings.TrimSpace(c.Role), RoleRestricted)
}

// Validate ensures the caller carries a tenant scope.
func (c Caller) Validate() error {
	if strings.TrimSpace(c.TenantID) == "" {
		return Validation("caller", "scope", "tenant id is required")
	}
	return nil
}
