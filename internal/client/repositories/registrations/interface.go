package registrations

import (
	"context"

	"github.com/dmitrijs2005/biru/internal/client/models"
)

type Repository interface {
	// Replace swaps the cached list for did, keeping the given order.
	Replace(ctx context.Context, did string, regs []models.Registration) error

	// List returns the cached list for did in backend order. Empty is valid.
	List(ctx context.Context, did string) ([]models.Registration, error)

	// Delete drops a single cached registration.
	Delete(ctx context.Context, did, id string) error

	// Clear drops everything, for every account.
	Clear(ctx context.Context) error
}
