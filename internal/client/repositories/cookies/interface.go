package cookies

import (
	"context"

	"github.com/dmitrijs2005/biru/internal/client/models"
)

// Repository stores named cookies.
type Repository interface {
	// Get returns (nil, nil) when the cookie is absent or expired.
	Get(ctx context.Context, name string) (*models.Cookie, error)
	Set(ctx context.Context, cookie *models.Cookie) error
	Delete(ctx context.Context, name string) error
	Clear(ctx context.Context) error
}

// Sealer protects cookie values at rest. cryptox.Sealer implements it.
type Sealer interface {
	Seal(name string, plaintext []byte) ([]byte, error)
	Open(name string, sealed []byte) ([]byte, error)
}
