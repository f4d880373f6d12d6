package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/tashaleeh/api/internal/platform/firestore"
	"github.com/tashaleeh/api/internal/repositories"
)

// Registry implements repositories.Registry over a shared Firestore provider.
type Registry struct {
	provider  *pfirestore.Provider
	actors    *ActorRepository
	catalog   *CatalogRepository
	suppliers *SupplierRepository
	orders    *OrderRepository
	offers    *OfferRepository
}

// NewRegistry constructs every Firestore-backed repository against the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	actors, err := NewActorRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build actor repository: %w", err)
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build catalog repository: %w", err)
	}
	suppliers, err := NewSupplierRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build supplier repository: %w", err)
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	offers, err := NewOfferRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build offer repository: %w", err)
	}

	return &Registry{
		provider:  provider,
		actors:    actors,
		catalog:   catalog,
		suppliers: suppliers,
		orders:    orders,
		offers:    offers,
	}, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Actors returns the actor repository.
func (r *Registry) Actors() repositories.ActorRepository { return r.actors }

// Catalog returns the catalog repository.
func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

// Suppliers returns the supplier repository.
func (r *Registry) Suppliers() repositories.SupplierRepository { return r.suppliers }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Offers returns the offer repository.
func (r *Registry) Offers() repositories.OfferRepository { return r.offers }

var _ repositories.Registry = (*Registry)(nil)
