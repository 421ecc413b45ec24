// internal/dispatch/principal.go
package dispatch

import (
	"net/http"
	"strings"

	"contract-runtime/internal/models"
)

// Identity headers set by the API gateway after edge authentication.
const (
	HeaderPrincipalSubject = "X-Principal-Sub"
	HeaderPrincipalRoles   = "X-Principal-Roles"
	HeaderTenantID         = "X-Tenant-Id"
)

// PrincipalFromHeaders reads the gateway-forwarded identity. Anonymous
// requests yield nil; the runtime itself performs no authentication.
func PrincipalFromHeaders(r *http.Request) *models.Principal {
	subject := r.Header.Get(HeaderPrincipalSubject)
	if subject == "" {
		return nil
	}

	p := &models.Principal{
		Subject: subject,
		Tenant:  r.Header.Get(HeaderTenantID),
	}
	for _, role := range strings.Split(r.Header.Get(HeaderPrincipalRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			p.Roles = append(p.Roles, role)
		}
	}
	return p
}
