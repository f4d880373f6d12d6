package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tashaleeh/api/internal/domain"
	"github.com/tashaleeh/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	offerEventSubmitted     = "offer.submitted"
	offerEventAccepted      = "offer.accepted"
	offerEventRejected      = "offer.rejected"
	supplierEventRated      = "supplier.rated"

	orderIDPrefix = "ord_"

	codeRetryFallbackDigits = 4
	codeFallbackAttempts    = 8
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order or offer could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the acting party does not own the resource.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates the operation does not apply to the
	// resource's current status.
	ErrOrderInvalidState = errors.New("order: invalid status")
	// ErrOrderConflict indicates a duplicate offer or a lost decision race.
	ErrOrderConflict = errors.New("order: conflict")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Offers    repositories.OfferRepository
	Suppliers repositories.SupplierRepository
	Catalog   repositories.CatalogRepository

	Notifier Notifier
	Events   OrderEventPublisher

	OrderTTL        time.Duration
	CodeRetryBudget int

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	offers    repositories.OfferRepository
	suppliers repositories.SupplierRepository
	catalog   repositories.CatalogRepository

	notifier Notifier
	events   OrderEventPublisher

	orderTTL        time.Duration
	codeRetryBudget int

	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Offers == nil {
		return nil, errors.New("order service: offer repository is required")
	}
	if deps.Suppliers == nil {
		return nil, errors.New("order service: supplier repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: catalog repository is required")
	}

	ttl := deps.OrderTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}

	retryBudget := deps.CodeRetryBudget
	if retryBudget <= 0 {
		retryBudget = 100
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return orderIDPrefix + ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:          deps.Orders,
		offers:          deps.Offers,
		suppliers:       deps.Suppliers,
		catalog:         deps.Catalog,
		notifier:        deps.Notifier,
		events:          deps.Events,
		orderTTL:        ttl,
		codeRetryBudget: retryBudget,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// ConfirmDraft persists a completed draft as an order and broadcasts it to
// the suppliers of its region. Notifications run after the commit and never
// fail the confirmation.
func (s *orderService) ConfirmDraft(ctx context.Context, cmd ConfirmDraftCommand) (domain.Order, error) {
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return domain.Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	draft := cmd.Draft
	if draft.ActorID != actorID {
		return domain.Order{}, fmt.Errorf("%w: draft belongs to another actor", ErrOrderForbidden)
	}
	if !draft.HasRequiredSelections() {
		return domain.Order{}, fmt.Errorf("%w: draft selections are incomplete", ErrOrderInvalidInput)
	}
	if len(draft.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}

	region, err := s.catalog.GetRegion(ctx, draft.RegionID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	code, err := s.generateOrderCode(ctx, region, now)
	if err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.LineItem, len(draft.Items))
	copy(items, draft.Items)
	for i := range items {
		items[i].Quantity = 1
	}

	order := domain.Order{
		ID:        s.newID(),
		Code:      code,
		BuyerID:   actorID,
		RegionID:  draft.RegionID,
		MakeID:    draft.MakeID,
		ModelID:   draft.ModelID,
		Year:      draft.Year,
		Items:     items,
		MediaRefs: append([]string(nil), draft.MediaRefs...),
		Status:    domain.OrderStatusNew,
		CreatedAt: now,
		ExpiresAt: now.Add(s.orderTTL),
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, domain.OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderCode:     order.Code,
		ActorID:       actorID,
		CurrentStatus: string(order.Status),
		OccurredAt:    now,
	})

	if s.notifier != nil {
		if err := s.notifier.ConfirmToBuyer(ctx, order); err != nil {
			s.logger(ctx, "order.notify.confirm.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		}
		summary, err := s.notifier.BroadcastOrder(ctx, order)
		if err != nil {
			s.logger(ctx, "order.notify.broadcast.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		} else {
			s.logger(ctx, "order.notify.broadcast", map[string]any{
				"order":  order.ID,
				"sent":   summary.Sent,
				"failed": summary.Failed,
			})
		}
	}

	return order, nil
}

// SubmitOffer records a supplier's priced response. The first offer moves the
// order from new to active.
func (s *orderService) SubmitOffer(ctx context.Context, cmd SubmitOfferCommand) (domain.Offer, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Offer{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	supplierID := strings.TrimSpace(cmd.SupplierID)
	if supplierID == "" {
		return domain.Offer{}, fmt.Errorf("%w: supplier id is required", ErrOrderInvalidInput)
	}
	if cmd.Price <= 0 {
		return domain.Offer{}, fmt.Errorf("%w: price must be positive", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Offer{}, s.mapRepositoryError(err)
	}
	now := s.now()
	if order.Expired(now) {
		return domain.Offer{}, fmt.Errorf("%w: order %s has expired", ErrOrderConflict, orderID)
	}
	switch order.Status {
	case domain.OrderStatusNew, domain.OrderStatusActive:
		// open for offers
	default:
		return domain.Offer{}, fmt.Errorf("%w: order %s is %s", ErrOrderConflict, orderID, order.Status)
	}

	supplier, err := s.suppliers.FindByID(ctx, supplierID)
	if err != nil {
		return domain.Offer{}, s.mapRepositoryError(err)
	}
	if !supplier.Active {
		return domain.Offer{}, fmt.Errorf("%w: supplier %s is inactive", ErrOrderInvalidState, supplierID)
	}
	if supplier.RegionID != order.RegionID {
		return domain.Offer{}, fmt.Errorf("%w: supplier %s serves another region", ErrOrderForbidden, supplierID)
	}

	offer, err := s.offers.Create(ctx, domain.Offer{
		OrderID:    orderID,
		SupplierID: supplierID,
		Price:      cmd.Price,
		Notes:      strings.TrimSpace(cmd.Notes),
		CreatedAt:  now,
	})
	if err != nil {
		return domain.Offer{}, s.mapRepositoryError(err)
	}

	if order.Status == domain.OrderStatusNew {
		updated, err := s.orders.UpdateStatus(ctx, orderID,
			[]domain.OrderStatus{domain.OrderStatusNew}, domain.OrderStatusActive)
		if err == nil {
			s.publishEvent(ctx, domain.OrderEvent{
				Type:           orderEventStatusChanged,
				OrderID:        orderID,
				OrderCode:      updated.Code,
				PreviousStatus: string(domain.OrderStatusNew),
				CurrentStatus:  string(updated.Status),
				OccurredAt:     now,
			})
			order = updated
		} else if !errors.Is(s.mapRepositoryError(err), ErrOrderConflict) {
			s.logger(ctx, "order.activate.failed", map[string]any{
				"order": orderID,
				"error": err.Error(),
			})
		}
	}

	s.publishEvent(ctx, domain.OrderEvent{
		Type:          offerEventSubmitted,
		OrderID:       orderID,
		OrderCode:     order.Code,
		OfferID:       offer.ID,
		SupplierID:    supplierID,
		CurrentStatus: string(offer.Status),
		OccurredAt:    now,
	})

	if s.notifier != nil {
		if err := s.notifier.OfferToBuyer(ctx, order, offer); err != nil {
			s.logger(ctx, "order.notify.offer.failed", map[string]any{
				"order": orderID,
				"offer": offer.ID,
				"error": err.Error(),
			})
		}
	}

	return offer, nil
}

// DecideOffer applies the buyer's accept or reject verdict. Accepting an
// offer marks the order accepted and locks every competing pending offer in
// the same atomic step; a lost race surfaces as a conflict.
func (s *orderService) DecideOffer(ctx context.Context, cmd DecideOfferCommand) (DecideOfferResult, error) {
	offerID := strings.TrimSpace(cmd.OfferID)
	if offerID == "" {
		return DecideOfferResult{}, fmt.Errorf("%w: offer id is required", ErrOrderInvalidInput)
	}
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return DecideOfferResult{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}

	offer, err := s.offers.FindByID(ctx, offerID)
	if err != nil {
		return DecideOfferResult{}, s.mapRepositoryError(err)
	}
	order, err := s.orders.FindByID(ctx, offer.OrderID)
	if err != nil {
		return DecideOfferResult{}, s.mapRepositoryError(err)
	}
	if order.BuyerID != actorID {
		return DecideOfferResult{}, fmt.Errorf("%w: order %s belongs to another buyer", ErrOrderForbidden, order.ID)
	}

	now := s.now()
	switch cmd.Decision {
	case DecisionAccept:
		return s.acceptOffer(ctx, order, offer, actorID, now)
	case DecisionReject:
		return s.rejectOffer(ctx, order, offer, actorID, now)
	default:
		return DecideOfferResult{}, fmt.Errorf("%w: unknown decision %q", ErrOrderInvalidInput, cmd.Decision)
	}
}

func (s *orderService) acceptOffer(ctx context.Context, order domain.Order, offer domain.Offer, actorID string, now time.Time) (DecideOfferResult, error) {
	accepted, locked, err := s.offers.AcceptAndLockSiblings(ctx, order.ID, offer.ID)
	if err != nil {
		return DecideOfferResult{}, s.mapRepositoryError(err)
	}

	previous := order.Status
	order.Status = domain.OrderStatusAccepted

	s.publishEvent(ctx, domain.OrderEvent{
		Type:           offerEventAccepted,
		OrderID:        order.ID,
		OrderCode:      order.Code,
		OfferID:        accepted.ID,
		SupplierID:     accepted.SupplierID,
		ActorID:        actorID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(domain.OrderStatusAccepted),
		OccurredAt:     now,
		Metadata:       map[string]any{"lockedOffers": len(locked)},
	})

	if s.notifier != nil {
		if summary, err := s.notifier.AcceptedToSupplier(ctx, order, accepted); err != nil {
			s.logger(ctx, "order.notify.accepted.failed", map[string]any{
				"order": order.ID,
				"offer": accepted.ID,
				"error": err.Error(),
			})
		} else {
			s.logger(ctx, "order.notify.accepted", map[string]any{
				"order":  order.ID,
				"offer":  accepted.ID,
				"sent":   summary.Sent,
				"failed": summary.Failed,
			})
		}
		for _, sibling := range locked {
			if _, err := s.notifier.LockedToSupplier(ctx, order, sibling); err != nil {
				s.logger(ctx, "order.notify.locked.failed", map[string]any{
					"order": order.ID,
					"offer": sibling.ID,
					"error": err.Error(),
				})
			}
		}
	}

	return DecideOfferResult{Offer: accepted, Order: order, Locked: locked}, nil
}

func (s *orderService) rejectOffer(ctx context.Context, order domain.Order, offer domain.Offer, actorID string, now time.Time) (DecideOfferResult, error) {
	rejected, err := s.offers.Reject(ctx, offer.ID)
	if err != nil {
		return DecideOfferResult{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, domain.OrderEvent{
		Type:          offerEventRejected,
		OrderID:       order.ID,
		OrderCode:     order.Code,
		OfferID:       rejected.ID,
		SupplierID:    rejected.SupplierID,
		ActorID:       actorID,
		CurrentStatus: string(rejected.Status),
		OccurredAt:    now,
	})

	if s.notifier != nil {
		if _, err := s.notifier.RejectedToSupplier(ctx, order, rejected); err != nil {
			s.logger(ctx, "order.notify.rejected.failed", map[string]any{
				"order": order.ID,
				"offer": rejected.ID,
				"error": err.Error(),
			})
		}
	}

	return DecideOfferResult{Offer: rejected, Order: order}, nil
}

// RateSupplier records the buyer's score against the supplier behind an
// accepted offer. Only the order's buyer may rate, and only once the offer is
// accepted.
func (s *orderService) RateSupplier(ctx context.Context, cmd RateSupplierCommand) (domain.Supplier, error) {
	offerID := strings.TrimSpace(cmd.OfferID)
	if offerID == "" {
		return domain.Supplier{}, fmt.Errorf("%w: offer id is required", ErrOrderInvalidInput)
	}
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return domain.Supplier{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}
	if cmd.Score < 1 || cmd.Score > 5 {
		return domain.Supplier{}, fmt.Errorf("%w: score must be between 1 and 5", ErrOrderInvalidInput)
	}

	offer, err := s.offers.FindByID(ctx, offerID)
	if err != nil {
		return domain.Supplier{}, s.mapRepositoryError(err)
	}
	if offer.Status != domain.OfferStatusAccepted {
		return domain.Supplier{}, fmt.Errorf("%w: offer %s is %s", ErrOrderInvalidState, offerID, offer.Status)
	}
	order, err := s.orders.FindByID(ctx, offer.OrderID)
	if err != nil {
		return domain.Supplier{}, s.mapRepositoryError(err)
	}
	if order.BuyerID != actorID {
		return domain.Supplier{}, fmt.Errorf("%w: order %s belongs to another buyer", ErrOrderForbidden, order.ID)
	}

	supplier, err := s.suppliers.AddRating(ctx, offer.SupplierID, cmd.Score)
	if err != nil {
		return domain.Supplier{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, domain.OrderEvent{
		Type:       supplierEventRated,
		OrderID:    order.ID,
		OrderCode:  order.Code,
		OfferID:    offer.ID,
		SupplierID: supplier.ID,
		ActorID:    actorID,
		OccurredAt: s.now(),
		Metadata: map[string]any{
			"score":         cmd.Score,
			"totalRatings":  supplier.TotalRatings,
			"averageRating": supplier.AverageRating,
		},
	})

	return supplier, nil
}

// CancelOrder withdraws an order the buyer no longer needs. Accepted orders
// cannot be cancelled.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return domain.Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	if order.BuyerID != actorID {
		return domain.Order{}, fmt.Errorf("%w: order %s belongs to another buyer", ErrOrderForbidden, orderID)
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID,
		[]domain.OrderStatus{domain.OrderStatusNew, domain.OrderStatusActive}, domain.OrderStatusCancelled)
	if err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrOrderConflict) {
			return domain.Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderInvalidState, orderID, order.Status)
		}
		return domain.Order{}, mapped
	}

	s.publishEvent(ctx, domain.OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        orderID,
		OrderCode:      updated.Code,
		ActorID:        actorID,
		PreviousStatus: string(order.Status),
		CurrentStatus:  string(updated.Status),
		OccurredAt:     s.now(),
	})

	return updated, nil
}

// GetOrder loads an order by id.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// GetOrderByCode resolves an order from its human-facing code.
func (s *orderService) GetOrderByCode(ctx context.Context, code string) (domain.Order, error) {
	if strings.TrimSpace(code) == "" {
		return domain.Order{}, fmt.Errorf("%w: order code is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByCode(ctx, code)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// ListOrdersForBuyer returns the buyer's orders, newest first.
func (s *orderService) ListOrdersForBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, fmt.Errorf("%w: buyer id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByBuyer(ctx, buyerID, limit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

// ListOffers returns the offers placed on an order.
func (s *orderService) ListOffers(ctx context.Context, orderID string) ([]domain.Offer, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	offers, err := s.offers.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return offers, nil
}

// ExpireOverdue sweeps open orders past their deadline into expired and tells
// each buyer. A decision that lands mid-sweep wins; the conflicting update is
// skipped.
func (s *orderService) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.orders.ListOverdue(ctx, now, 0)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}

	expired := 0
	for _, order := range overdue {
		updated, err := s.orders.UpdateStatus(ctx, order.ID,
			[]domain.OrderStatus{domain.OrderStatusNew, domain.OrderStatusActive}, domain.OrderStatusExpired)
		if err != nil {
			if errors.Is(s.mapRepositoryError(err), ErrOrderConflict) {
				continue
			}
			s.logger(ctx, "order.expire.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
			continue
		}
		expired++

		s.publishEvent(ctx, domain.OrderEvent{
			Type:           orderEventStatusChanged,
			OrderID:        order.ID,
			OrderCode:      updated.Code,
			PreviousStatus: string(order.Status),
			CurrentStatus:  string(updated.Status),
			OccurredAt:     now,
		})

		if s.notifier != nil {
			if err := s.notifier.ExpiredToBuyer(ctx, updated); err != nil {
				s.logger(ctx, "order.notify.expired.failed", map[string]any{
					"order": order.ID,
					"error": err.Error(),
				})
			}
		}
	}
	return expired, nil
}

// generateOrderCode builds the human-facing code {regionCode}{YYMMDD}{seq},
// retrying with the next sequence number on collision. When the retry budget
// is exhausted the sequence falls back to random 4-digit suffixes, each
// checked for uniqueness before being returned.
func (s *orderService) generateOrderCode(ctx context.Context, region domain.Region, now time.Time) (string, error) {
	prefix := strings.ToUpper(strings.TrimSpace(region.Code))
	if prefix == "" {
		return "", fmt.Errorf("%w: region %s has no code", ErrOrderInvalidInput, region.ID)
	}
	datePart := now.Format("060102")

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := s.orders.CountByRegionSince(ctx, region.ID, dayStart)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}

	seq := count + 1
	for attempt := 0; attempt < s.codeRetryBudget; attempt++ {
		code := fmt.Sprintf("%s%s%04d", prefix, datePart, seq)
		exists, err := s.orders.CodeExists(ctx, code)
		if err != nil {
			return "", s.mapRepositoryError(err)
		}
		if !exists {
			return code, nil
		}
		seq++
	}

	for attempt := 0; attempt < codeFallbackAttempts; attempt++ {
		suffix := rand.Intn(9000) + 1000
		code := fmt.Sprintf("%s%s%0*d", prefix, datePart, codeRetryFallbackDigits, suffix)
		exists, err := s.orders.CodeExists(ctx, code)
		if err != nil {
			return "", s.mapRepositoryError(err)
		}
		if exists {
			continue
		}
		s.logger(ctx, "order.code.fallback", map[string]any{
			"region": region.ID,
			"code":   code,
		})
		return code, nil
	}
	return "", fmt.Errorf("%w: no free code for region %s on %s", ErrOrderConflict, region.ID, datePart)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) publishEvent(ctx context.Context, event domain.OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
