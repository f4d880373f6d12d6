package domain

import (
	"time"
)

// ActorRole enumerates the parties known to the marketplace.
type ActorRole string

const (
	// ActorRoleBuyer places parts requests and decides on offers.
	ActorRoleBuyer ActorRole = "buyer"
	// ActorRoleSupplierOwner owns a supplier yard and receives broadcasts.
	ActorRoleSupplierOwner ActorRole = "supplier_owner"
	// ActorRoleSupplierStaff is a delegated staff member of a supplier yard.
	ActorRoleSupplierStaff ActorRole = "supplier_staff"
	// ActorRoleAdmin is back-office staff; never targeted by workflow fan-out.
	ActorRoleAdmin ActorRole = "admin"
)

// Actor is an external party addressed by an opaque Telegram chat id.
// Actors are owned by the accounts collaborator and read-only to this core.
type Actor struct {
	ID         string
	TelegramID int64
	Username   string
	FirstName  string
	Phone      string
	Role       ActorRole
	Active     bool
	CreatedAt  time.Time
}

// Region is a service area; its code prefixes generated order codes.
type Region struct {
	ID     string
	Name   string
	Code   string
	Active bool
}

// Make is a vehicle manufacturer entry from the reference catalog.
type Make struct {
	ID     string
	Name   string
	Active bool
}

// CarModel is a vehicle model belonging to a make.
type CarModel struct {
	ID     string
	MakeID string
	Name   string
	Active bool
}

// Supplier is a parts yard eligible to receive broadcasts in its region.
type Supplier struct {
	ID            string
	OwnerID       string
	RegionID      string
	Phone         string
	Location      string
	Active        bool
	Verified      bool
	TotalRatings  int
	AverageRating float64
	CreatedAt     time.Time
}

// SupplierStaff links an actor to a supplier with delegated delivery rights.
type SupplierStaff struct {
	ID         string
	SupplierID string
	ActorID    string
	Role       string
	Active     bool
	CreatedAt  time.Time
}

// LineItem is a single requested part. Quantity is pinned to 1 by business
// rule; the field exists so persisted records stay explicit about it.
type LineItem struct {
	Name      string
	Note      string
	Quantity  int
	MediaRefs []string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusNew indicates the order is committed but not yet broadcast-confirmed.
	OrderStatusNew OrderStatus = "new"
	// OrderStatusActive indicates suppliers are responding with offers.
	OrderStatusActive OrderStatus = "active"
	// OrderStatusAccepted indicates exactly one offer has been accepted.
	OrderStatusAccepted OrderStatus = "accepted"
	// OrderStatusExpired indicates the order passed its TTL without acceptance.
	OrderStatusExpired OrderStatus = "expired"
	// OrderStatusCancelled indicates the buyer withdrew the order.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a committed parts request broadcast to suppliers in its region.
// Orders are never deleted; they only transition status.
type Order struct {
	ID        string
	Code      string
	BuyerID   string
	RegionID  string
	MakeID    string
	ModelID   string
	Year      int
	Items     []LineItem
	MediaRefs []string
	Status    OrderStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the order TTL elapsed at the given instant.
func (o Order) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// OfferStatus enumerates valid lifecycle states for offers.
type OfferStatus string

const (
	// OfferStatusPending awaits the buyer's decision.
	OfferStatusPending OfferStatus = "pending"
	// OfferStatusAccepted is the single winning offer on its order.
	OfferStatusAccepted OfferStatus = "accepted"
	// OfferStatusRejected was individually declined by the buyer.
	OfferStatusRejected OfferStatus = "rejected"
	// OfferStatusLocked was superseded when a competing offer was accepted.
	// Terminal, distinct from rejected.
	OfferStatusLocked OfferStatus = "locked"
)

// Offer is a supplier's priced response to an order. Price is in halalas.
// At most one offer exists per (order, supplier) pair, and at most one
// offer per order ever holds OfferStatusAccepted.
type Offer struct {
	ID         string
	OrderID    string
	SupplierID string
	Price      int64
	Notes      string
	Status     OfferStatus
	CreatedAt  time.Time
}

// Recipient is a resolved delivery target for the notification dispatcher.
type Recipient struct {
	ActorID    string
	TelegramID int64
	Name       string
	Role       string
}

// DispatchSummary aggregates per-recipient fan-out outcomes.
type DispatchSummary struct {
	Sent   int
	Failed int
}

// Add folds another summary into this one.
func (s *DispatchSummary) Add(other DispatchSummary) {
	s.Sent += other.Sent
	s.Failed += other.Failed
}

// OrderEvent captures metadata for emitted workflow domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderCode      string
	OfferID        string
	SupplierID     string
	ActorID        string
	PreviousStatus string
	CurrentStatus  string
	OccurredAt     time.Time
	Metadata       map[string]any
}
