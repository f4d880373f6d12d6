package repositories

import (
	"context"
	"time"

	domain "github.com/tashaleeh/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Actors() ActorRepository
	Catalog() CatalogRepository
	Suppliers() SupplierRepository
	Orders() OrderRepository
	Offers() OfferRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ActorRepository reads marketplace actors owned by the accounts collaborator.
type ActorRepository interface {
	FindByID(ctx context.Context, actorID string) (domain.Actor, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (domain.Actor, error)
	Upsert(ctx context.Context, actor domain.Actor) (domain.Actor, error)
}

// CatalogRepository reads the region/make/model reference data.
type CatalogRepository interface {
	ListActiveRegions(ctx context.Context) ([]domain.Region, error)
	GetRegion(ctx context.Context, regionID string) (domain.Region, error)
	ListActiveMakes(ctx context.Context) ([]domain.Make, error)
	GetMake(ctx context.Context, makeID string) (domain.Make, error)
	ListActiveModels(ctx context.Context, makeID string) ([]domain.CarModel, error)
	GetModel(ctx context.Context, modelID string) (domain.CarModel, error)
}

// SupplierRepository resolves suppliers and their delegated staff for fan-out.
type SupplierRepository interface {
	FindByID(ctx context.Context, supplierID string) (domain.Supplier, error)
	FindByOwner(ctx context.Context, ownerID string) (domain.Supplier, error)
	ListActiveByRegion(ctx context.Context, regionID string) ([]domain.Supplier, error)
	ListActiveStaff(ctx context.Context, supplierID string) ([]domain.SupplierStaff, error)
	// AddRating folds one more score into the supplier's rating aggregates as
	// a single atomic update and returns the refreshed supplier.
	AddRating(ctx context.Context, supplierID string, score int) (domain.Supplier, error)
}

// OrderRepository persists order records and the queries backing code generation.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByCode(ctx context.Context, code string) (domain.Order, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	// CountByRegionSince counts orders created in the region at or after the
	// cutoff, seeding the daily sequence component of new order codes.
	CountByRegionSince(ctx context.Context, regionID string, cutoff time.Time) (int64, error)
	// UpdateStatus transitions an order's status only when it currently holds
	// one of the expected statuses, as a single conditional update.
	UpdateStatus(ctx context.Context, orderID string, from []domain.OrderStatus, to domain.OrderStatus) (domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error)
	// ListOverdue returns new/active orders whose ExpiresAt is before now.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Order, error)
}

// OfferRepository persists offers and the transactional accept/lock step.
type OfferRepository interface {
	// Create inserts a pending offer. A second offer for the same
	// (order, supplier) pair fails with a conflict error.
	Create(ctx context.Context, offer domain.Offer) (domain.Offer, error)
	FindByID(ctx context.Context, offerID string) (domain.Offer, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Offer, error)
	CountByOrder(ctx context.Context, orderID string) (int64, error)
	// AcceptAndLockSiblings atomically accepts the offer, marks its order
	// accepted, and transitions every other pending offer on the order to
	// locked. It fails with a conflict error when the order already holds an
	// accepted offer. The locked siblings are returned for supersession
	// notifications.
	AcceptAndLockSiblings(ctx context.Context, orderID string, offerID string) (domain.Offer, []domain.Offer, error)
	// Reject transitions a pending offer to rejected; any other current
	// status fails with a conflict error.
	Reject(ctx context.Context, offerID string) (domain.Offer, error)
}
