package tenant

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrSubdomainTaken  = errors.New("subdomain already registered")
	ErrInvalidSubdomain = errors.New("invalid subdomain")
	ErrNoTenant        = errors.New("host carries no tenant context")
)

// Repository defines the interface for tenant storage
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error

	// Delete removes a tenant row. Only the registration orchestrator calls
	// this, as the compensating action when admin provisioning fails.
	Delete(ctx context.Context, id string) error

	List(ctx context.Context, limit, offset int) ([]*Tenant, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
