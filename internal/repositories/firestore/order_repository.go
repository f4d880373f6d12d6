package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/tashaleeh/api/internal/domain"
	pfirestore "github.com/tashaleeh/api/internal/platform/firestore"
)

const orderCollection = "orders"

type lineItemDocument struct {
	Name      string   `firestore:"name"`
	Note      string   `firestore:"note,omitempty"`
	Quantity  int      `firestore:"quantity"`
	MediaRefs []string `firestore:"mediaRefs,omitempty"`
}

type orderDocument struct {
	Code      string             `firestore:"code"`
	BuyerID   string             `firestore:"buyerId"`
	RegionID  string             `firestore:"regionId"`
	MakeID    string             `firestore:"makeId"`
	ModelID   string             `firestore:"modelId,omitempty"`
	Year      int                `firestore:"year"`
	Items     []lineItemDocument `firestore:"items"`
	MediaRefs []string           `firestore:"mediaRefs,omitempty"`
	Status    string             `firestore:"status"`
	CreatedAt time.Time          `firestore:"createdAt"`
	ExpiresAt time.Time          `firestore:"expiresAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document. An existing id fails with a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}

	doc := fromDomainOrder(order)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		return tx.Create(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID loads an order by id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// FindByCode loads an order by its human-facing code.
func (r *OrderRepository) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return domain.Order{}, errors.New("order code is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFoundError("orders.query", fmt.Errorf("order with code %s not found", trimmed))
	}
	return toDomainOrder(docs[0].ID, docs[0].Data), nil
}

// CodeExists reports whether an order already carries the candidate code.
func (r *OrderRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	if r == nil || r.base == nil {
		return false, errors.New("order repository not initialised")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return false, errors.New("order code is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", trimmed).Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// CountByRegionSince counts orders created in the region at or after the cutoff.
func (r *OrderRepository) CountByRegionSince(ctx context.Context, regionID string, cutoff time.Time) (int64, error) {
	if r == nil || r.base == nil {
		return 0, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(regionID) == "" {
		return 0, errors.New("region id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("regionId", "==", regionID).Where("createdAt", ">=", cutoff.UTC())
	})
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// UpdateStatus transitions the order status inside a transaction, guarding the
// current status against the expected set.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from []domain.OrderStatus, to domain.OrderStatus) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	if to == "" {
		return domain.Order{}, errors.New("target status is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}
		if len(from) > 0 && !statusIn(domain.OrderStatus(doc.Status), from) {
			return status.Errorf(codes.FailedPrecondition, "order %s is %s", orderID, doc.Status)
		}

		now := time.Now().UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		doc.Status = string(to)
		doc.UpdatedAt = now
		updated = toDomainOrder(orderID, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updatestatus", err)
	}
	return updated, nil
}

// ListByBuyer returns the buyer's orders, newest first.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(buyerID) == "" {
		return nil, errors.New("buyer id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("buyerId", "==", buyerID).OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

// ListOverdue returns open orders whose deadline passed, oldest first.
func (r *OrderRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "in", []string{string(domain.OrderStatusNew), string(domain.OrderStatusActive)}).
			Where("expiresAt", "<", now.UTC()).
			OrderBy("expiresAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

func statusIn(current domain.OrderStatus, allowed []domain.OrderStatus) bool {
	for _, s := range allowed {
		if current == s {
			return true
		}
	}
	return false
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	items := make([]domain.LineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.LineItem{
			Name:      item.Name,
			Note:      item.Note,
			Quantity:  item.Quantity,
			MediaRefs: append([]string(nil), item.MediaRefs...),
		})
	}
	return domain.Order{
		ID:        id,
		Code:      doc.Code,
		BuyerID:   doc.BuyerID,
		RegionID:  doc.RegionID,
		MakeID:    doc.MakeID,
		ModelID:   doc.ModelID,
		Year:      doc.Year,
		Items:     items,
		MediaRefs: append([]string(nil), doc.MediaRefs...),
		Status:    domain.OrderStatus(doc.Status),
		CreatedAt: doc.CreatedAt,
		ExpiresAt: doc.ExpiresAt,
	}
}

func fromDomainOrder(order domain.Order) orderDocument {
	items := make([]lineItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		items = append(items, lineItemDocument{
			Name:      strings.TrimSpace(item.Name),
			Note:      strings.TrimSpace(item.Note),
			Quantity:  quantity,
			MediaRefs: append([]string(nil), item.MediaRefs...),
		})
	}
	return orderDocument{
		Code:      strings.TrimSpace(order.Code),
		BuyerID:   order.BuyerID,
		RegionID:  order.RegionID,
		MakeID:    order.MakeID,
		ModelID:   order.ModelID,
		Year:      order.Year,
		Items:     items,
		MediaRefs: append([]string(nil), order.MediaRefs...),
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt.UTC(),
		ExpiresAt: order.ExpiresAt.UTC(),
		UpdatedAt: order.CreatedAt.UTC(),
	}
}
