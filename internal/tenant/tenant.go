package tenant

import (
	"time"
)

// Tenant represents an isolated customer workspace reachable via its own
// subdomain under the deployment root domain.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status constants
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// IsActive reports whether the tenant may serve requests.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}
