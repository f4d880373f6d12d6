package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/tashaleeh/api/internal/domain"
	pfirestore "github.com/tashaleeh/api/internal/platform/firestore"
)

const offerCollection = "offers"

type offerDocument struct {
	OrderID    string    `firestore:"orderId"`
	SupplierID string    `firestore:"supplierId"`
	Price      int64     `firestore:"price"`
	Notes      string    `firestore:"notes,omitempty"`
	Status     string    `firestore:"status"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// OfferRepository implements repositories.OfferRepository backed by Firestore.
//
// Offer documents live under an id derived from the (order, supplier) pair so
// a duplicate submission collides on Create instead of needing a unique-index
// lookup first.
type OfferRepository struct {
	base     *pfirestore.BaseRepository[offerDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOfferRepository constructs a Firestore-backed offer repository.
func NewOfferRepository(provider *pfirestore.Provider) (*OfferRepository, error) {
	if provider == nil {
		return nil, errors.New("offer repository requires firestore provider")
	}
	return &OfferRepository{
		base:     pfirestore.NewBaseRepository[offerDocument](provider, offerCollection, nil, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		provider: provider,
	}, nil
}

// OfferDocumentID derives the deterministic document id for an offer on the
// given order by the given supplier.
func OfferDocumentID(orderID string, supplierID string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(orderID) + "/" + strings.TrimSpace(supplierID)))
	return "ofr_" + hex.EncodeToString(sum[:12])
}

// Create inserts a pending offer. A second offer for the same (order, supplier)
// pair fails with a conflict, as does an order that closed since the caller
// last read it; the order status is re-checked inside the transaction.
func (r *OfferRepository) Create(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	if r == nil || r.provider == nil {
		return domain.Offer{}, errors.New("offer repository not initialised")
	}
	if strings.TrimSpace(offer.OrderID) == "" {
		return domain.Offer{}, errors.New("order id is required")
	}
	if strings.TrimSpace(offer.SupplierID) == "" {
		return domain.Offer{}, errors.New("supplier id is required")
	}

	id := OfferDocumentID(offer.OrderID, offer.SupplierID)
	now := time.Now().UTC()
	doc := offerDocument{
		OrderID:    offer.OrderID,
		SupplierID: offer.SupplierID,
		Price:      offer.Price,
		Notes:      strings.TrimSpace(offer.Notes),
		Status:     string(domain.OfferStatusPending),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if !offer.CreatedAt.IsZero() {
		doc.CreatedAt = offer.CreatedAt.UTC()
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, offer.OrderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var order orderDocument
		if err := orderSnap.DataTo(&order); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", offer.OrderID, err)
		}
		switch domain.OrderStatus(order.Status) {
		case domain.OrderStatusNew, domain.OrderStatusActive:
			// still open for offers
		default:
			return pfirestore.ConflictError("offers.create", fmt.Errorf("order %s is %s", offer.OrderID, order.Status))
		}

		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		return tx.Create(ref, doc)
	})
	if err != nil {
		return domain.Offer{}, pfirestore.WrapError("offers.create", err)
	}
	return toDomainOffer(id, doc), nil
}

// FindByID loads an offer by id.
func (r *OfferRepository) FindByID(ctx context.Context, offerID string) (domain.Offer, error) {
	if r == nil || r.base == nil {
		return domain.Offer{}, errors.New("offer repository not initialised")
	}
	if strings.TrimSpace(offerID) == "" {
		return domain.Offer{}, errors.New("offer id is required")
	}
	doc, err := r.base.Get(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	return toDomainOffer(doc.ID, doc.Data), nil
}

// ListByOrder returns all offers placed on an order, oldest first.
func (r *OfferRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Offer, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("offer repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.New("order id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	offers := make([]domain.Offer, 0, len(docs))
	for _, doc := range docs {
		offers = append(offers, toDomainOffer(doc.ID, doc.Data))
	}
	return offers, nil
}

// CountByOrder counts offers placed on an order.
func (r *OfferRepository) CountByOrder(ctx context.Context, orderID string) (int64, error) {
	offers, err := r.ListByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	return int64(len(offers)), nil
}

// AcceptAndLockSiblings atomically accepts one offer and supersedes the rest.
//
// The transaction reads the order and every offer on it first, then applies
// the full write set: the chosen offer becomes accepted, the order becomes
// accepted, and every other pending offer becomes locked. An order that is
// already accepted, or an offer no longer pending, aborts with a conflict so
// concurrent decisions collapse to exactly one winner.
func (r *OfferRepository) AcceptAndLockSiblings(ctx context.Context, orderID string, offerID string) (domain.Offer, []domain.Offer, error) {
	if r == nil || r.provider == nil {
		return domain.Offer{}, nil, errors.New("offer repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Offer{}, nil, errors.New("order id is required")
	}
	if strings.TrimSpace(offerID) == "" {
		return domain.Offer{}, nil, errors.New("offer id is required")
	}

	var (
		accepted domain.Offer
		locked   []domain.Offer
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		accepted = domain.Offer{}
		locked = nil

		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var order orderDocument
		if err := orderSnap.DataTo(&order); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}
		switch domain.OrderStatus(order.Status) {
		case domain.OrderStatusNew, domain.OrderStatusActive:
			// open for a decision
		case domain.OrderStatusAccepted:
			return pfirestore.ConflictError("offers.accept", fmt.Errorf("order %s already has an accepted offer", orderID))
		default:
			return pfirestore.ConflictError("offers.accept", fmt.Errorf("order %s is %s", orderID, order.Status))
		}

		collection, err := r.offerCollectionRef(ctx)
		if err != nil {
			return err
		}
		iter := tx.Documents(collection.Where("orderId", "==", orderID))
		defer iter.Stop()

		type pendingWrite struct {
			ref *firestore.DocumentRef
			doc offerDocument
		}
		var (
			winner   *pendingWrite
			siblings []pendingWrite
		)
		for {
			snap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return err
			}
			var doc offerDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("firestore offers decode %s: %w", snap.Ref.ID, err)
			}
			if snap.Ref.ID == offerID {
				winner = &pendingWrite{ref: snap.Ref, doc: doc}
				continue
			}
			if domain.OfferStatus(doc.Status) == domain.OfferStatusPending {
				siblings = append(siblings, pendingWrite{ref: snap.Ref, doc: doc})
			}
		}

		if winner == nil {
			return pfirestore.NotFoundError("offers.accept", fmt.Errorf("offer %s not found on order %s", offerID, orderID))
		}
		if domain.OfferStatus(winner.doc.Status) != domain.OfferStatusPending {
			return pfirestore.ConflictError("offers.accept", fmt.Errorf("offer %s is %s", offerID, winner.doc.Status))
		}

		now := time.Now().UTC()
		if err := tx.Update(winner.ref, []firestore.Update{
			{Path: "status", Value: string(domain.OfferStatusAccepted)},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		if err := tx.Update(orderRef, []firestore.Update{
			{Path: "status", Value: string(domain.OrderStatusAccepted)},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		for _, sibling := range siblings {
			if err := tx.Update(sibling.ref, []firestore.Update{
				{Path: "status", Value: string(domain.OfferStatusLocked)},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
			sibling.doc.Status = string(domain.OfferStatusLocked)
			sibling.doc.UpdatedAt = now
			locked = append(locked, toDomainOffer(sibling.ref.ID, sibling.doc))
		}

		winner.doc.Status = string(domain.OfferStatusAccepted)
		winner.doc.UpdatedAt = now
		accepted = toDomainOffer(winner.ref.ID, winner.doc)
		return nil
	})
	if err != nil {
		return domain.Offer{}, nil, pfirestore.WrapError("offers.accept", err)
	}
	return accepted, locked, nil
}

// Reject transitions a pending offer to rejected.
func (r *OfferRepository) Reject(ctx context.Context, offerID string) (domain.Offer, error) {
	if r == nil || r.provider == nil {
		return domain.Offer{}, errors.New("offer repository not initialised")
	}
	if strings.TrimSpace(offerID) == "" {
		return domain.Offer{}, errors.New("offer id is required")
	}

	var rejected domain.Offer
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, offerID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc offerDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore offers decode %s: %w", offerID, err)
		}
		if domain.OfferStatus(doc.Status) != domain.OfferStatusPending {
			return pfirestore.ConflictError("offers.reject", fmt.Errorf("offer %s is %s", offerID, doc.Status))
		}

		now := time.Now().UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(domain.OfferStatusRejected)},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		doc.Status = string(domain.OfferStatusRejected)
		doc.UpdatedAt = now
		rejected = toDomainOffer(offerID, doc)
		return nil
	})
	if err != nil {
		return domain.Offer{}, pfirestore.WrapError("offers.reject", err)
	}
	return rejected, nil
}

func (r *OfferRepository) offerCollectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(offerCollection), nil
}

func toDomainOffer(id string, doc offerDocument) domain.Offer {
	return domain.Offer{
		ID:         id,
		OrderID:    doc.OrderID,
		SupplierID: doc.SupplierID,
		Price:      doc.Price,
		Notes:      doc.Notes,
		Status:     domain.OfferStatus(doc.Status),
		CreatedAt:  doc.CreatedAt,
	}
}
