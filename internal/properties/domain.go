// Package properties carries the property-listing collaborator surface. The
// authorization core gates these routes; listing business logic itself lives
// behind the narrow Catalog interface and stays out of scope here.
package properties

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Listing is a property listing record.
type Listing struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	City        string    `json:"city"`
	Price       int64     `json:"price"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Catalog is the narrow interface to the property-listing collaborator.
type Catalog interface {
	List(ctx context.Context) ([]Listing, error)
	Get(ctx context.Context, id uuid.UUID) (Listing, error)
	Create(ctx context.Context, listing Listing) (Listing, error)
	Update(ctx context.Context, listing Listing) (Listing, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Approve(ctx context.Context, id uuid.UUID, approved bool) (Listing, error)
}
