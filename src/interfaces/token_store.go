package interfaces

import (
	"context"

	"commission-observer/src/models"
)

// -----------------------------------------------------------------------------
// ITokenStore is the external key-value collaborator holding credentials.
// -----------------------------------------------------------------------------

type ITokenStore interface {
	// Load returns nil, nil when nothing is stored.
	Load(ctx context.Context) (*models.MStoredCredentials, error)

	// -----------------------------------------------------------------------------

	Save(ctx context.Context, creds models.MStoredCredentials) error

	// -----------------------------------------------------------------------------

	Clear(ctx context.Context) error
}
