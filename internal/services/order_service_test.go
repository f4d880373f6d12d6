package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/tashaleeh/api/internal/domain"
)

var fixedNow = time.Date(2025, 7, 2, 14, 0, 0, 0, time.UTC)

func completedDraft(actorID string) Draft {
	return Draft{
		ID:       "drf_1",
		ActorID:  actorID,
		Step:     StepReview,
		RegionID: "reg_ryd",
		MakeID:   "make_toyota",
		ModelID:  "model_camry",
		YearFrom: 2010,
		YearTo:   2019,
		Year:     2015,
		Items:    []domain.LineItem{{Name: "صدام أمامي", Quantity: 1}},
	}
}

func TestConfirmDraftPersistsOrderWithGeneratedCode(t *testing.T) {
	var inserted domain.Order
	orders := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
		countFn: func(_ context.Context, regionID string, cutoff time.Time) (int64, error) {
			if regionID != "reg_ryd" {
				t.Fatalf("unexpected region %s", regionID)
			}
			if cutoff != time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC) {
				t.Fatalf("unexpected cutoff %s", cutoff)
			}
			return 2, nil
		},
	}
	publisher := &stubEventPublisher{}
	notifier := &stubNotifier{}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      orders,
		Offers:      &stubOfferRepo{},
		Suppliers:   &stubSupplierRepo{},
		Catalog:     testCatalog(),
		Notifier:    notifier,
		Events:      publisher,
		OrderTTL:    6 * time.Hour,
		Clock:       func() time.Time { return fixedNow },
		IDGenerator: func() string { return "ord_1" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.ConfirmDraft(context.Background(), ConfirmDraftCommand{
		ActorID: "act_buyer",
		Draft:   completedDraft("act_buyer"),
	})
	if err != nil {
		t.Fatalf("ConfirmDraft: %v", err)
	}

	if order.Code != "RYD2507020003" {
		t.Fatalf("unexpected code %q", order.Code)
	}
	if inserted.ID != "ord_1" || inserted.Status != domain.OrderStatusNew {
		t.Fatalf("unexpected inserted order %+v", inserted)
	}
	if !inserted.ExpiresAt.Equal(fixedNow.Add(6 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", inserted.ExpiresAt)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.created" {
		t.Fatalf("expected order.created event, got %+v", publisher.events)
	}
}

func TestConfirmDraftRetriesCodeOnCollision(t *testing.T) {
	taken := map[string]bool{
		"RYD2507020001": true,
		"RYD2507020002": true,
	}
	orders := &stubOrderRepo{
		codeExistsFn: func(_ context.Context, code string) (bool, error) {
			return taken[code], nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      orders,
		Offers:      &stubOfferRepo{},
		Suppliers:   &stubSupplierRepo{},
		Catalog:     testCatalog(),
		Clock:       func() time.Time { return fixedNow },
		IDGenerator: func() string { return "ord_1" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.ConfirmDraft(context.Background(), ConfirmDraftCommand{
		ActorID: "act_buyer",
		Draft:   completedDraft("act_buyer"),
	})
	if err != nil {
		t.Fatalf("ConfirmDraft: %v", err)
	}
	if order.Code != "RYD2507020003" {
		t.Fatalf("expected collision skip to 0003, got %q", order.Code)
	}
}

func TestConfirmDraftFallsBackToVerifiedRandomSuffix(t *testing.T) {
	checked := map[string]int{}
	orders := &stubOrderRepo{
		codeExistsFn: func(_ context.Context, code string) (bool, error) {
			checked[code]++
			switch code {
			case "RYD2507020001", "RYD2507020002", "RYD2507020003":
				return true, nil
			}
			return false, nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:          orders,
		Offers:          &stubOfferRepo{},
		Suppliers:       &stubSupplierRepo{},
		Catalog:         testCatalog(),
		CodeRetryBudget: 3,
		Clock:           func() time.Time { return fixedNow },
		IDGenerator:     func() string { return "ord_1" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	order, err := svc.ConfirmDraft(context.Background(), ConfirmDraftCommand{
		ActorID: "act_buyer",
		Draft:   completedDraft("act_buyer"),
	})
	if err != nil {
		t.Fatalf("ConfirmDraft: %v", err)
	}
	if !strings.HasPrefix(order.Code, "RYD250702") || len(order.Code) != len("RYD250702")+4 {
		t.Fatalf("expected fallback code with 4-digit suffix, got %q", order.Code)
	}
	if checked[order.Code] == 0 {
		t.Fatalf("fallback code %q was never checked for uniqueness", order.Code)
	}
}

func TestConfirmDraftFailsWhenEveryCodeIsTaken(t *testing.T) {
	orders := &stubOrderRepo{
		codeExistsFn: func(_ context.Context, code string) (bool, error) {
			return true, nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:          orders,
		Offers:          &stubOfferRepo{},
		Suppliers:       &stubSupplierRepo{},
		Catalog:         testCatalog(),
		CodeRetryBudget: 3,
		Clock:           func() time.Time { return fixedNow },
		IDGenerator:     func() string { return "ord_1" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.ConfirmDraft(context.Background(), ConfirmDraftCommand{
		ActorID: "act_buyer",
		Draft:   completedDraft("act_buyer"),
	}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict when no unverified code remains, got %v", err)
	}
}

func TestConfirmDraftRejectsIncompleteDraft(t *testing.T) {
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    &stubOrderRepo{},
		Offers:    &stubOfferRepo{},
		Suppliers: &stubSupplierRepo{},
		Catalog:   testCatalog(),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	draft := completedDraft("act_buyer")
	draft.Items = nil
	if _, err := svc.ConfirmDraft(context.Background(), ConfirmDraftCommand{ActorID: "act_buyer", Draft: draft}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	other := completedDraft("act_other")
	if _, err := svc.ConfirmDraft(context.Background(), ConfirmDraftCommand{ActorID: "act_buyer", Draft: other}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func openOrder(status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:        "ord_1",
		Code:      "RYD2507020001",
		BuyerID:   "act_buyer",
		RegionID:  "reg_ryd",
		MakeID:    "make_toyota",
		Year:      2015,
		Status:    status,
		CreatedAt: fixedNow.Add(-time.Hour),
		ExpiresAt: fixedNow.Add(5 * time.Hour),
	}
}

func activeSupplier() domain.Supplier {
	return domain.Supplier{ID: "sup_1", OwnerID: "act_owner", RegionID: "reg_ryd", Active: true}
}

func TestSubmitOfferActivatesNewOrder(t *testing.T) {
	activated := false
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return openOrder(domain.OrderStatusNew), nil
		},
		updateFn: func(_ context.Context, id string, from []domain.OrderStatus, to domain.OrderStatus) (domain.Order, error) {
			if to != domain.OrderStatusActive {
				t.Fatalf("unexpected transition to %s", to)
			}
			activated = true
			order := openOrder(domain.OrderStatusActive)
			return order, nil
		},
	}
	offers := &stubOfferRepo{
		createFn: func(_ context.Context, offer domain.Offer) (domain.Offer, error) {
			offer.ID = "off_1"
			offer.Status = domain.OfferStatusPending
			return offer, nil
		},
	}
	suppliers := &stubSupplierRepo{
		findFn: func(_ context.Context, id string) (domain.Supplier, error) {
			return activeSupplier(), nil
		},
	}
	publisher := &stubEventPublisher{}
	offerNotified := false
	notifier := &stubNotifier{
		offerFn: func(_ context.Context, order domain.Order, offer domain.Offer) error {
			offerNotified = true
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    offers,
		Suppliers: suppliers,
		Catalog:   testCatalog(),
		Notifier:  notifier,
		Events:    publisher,
		Clock:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	offer, err := svc.SubmitOffer(context.Background(), SubmitOfferCommand{
		OrderID:    "ord_1",
		SupplierID: "sup_1",
		Price:      150_00,
	})
	if err != nil {
		t.Fatalf("SubmitOffer: %v", err)
	}
	if offer.ID != "off_1" || offer.Status != domain.OfferStatusPending {
		t.Fatalf("unexpected offer %+v", offer)
	}
	if !activated {
		t.Fatal("expected first offer to activate the order")
	}
	if !offerNotified {
		t.Fatal("expected buyer notification")
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected status + submit events, got %+v", publisher.events)
	}
}

func TestSubmitOfferRejectsDuplicateAndForeignSupplier(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return openOrder(domain.OrderStatusActive), nil
		},
	}
	offers := &stubOfferRepo{
		createFn: func(_ context.Context, offer domain.Offer) (domain.Offer, error) {
			return domain.Offer{}, &stubRepoError{msg: "already exists", conflict: true}
		},
	}
	suppliers := &stubSupplierRepo{
		findFn: func(_ context.Context, id string) (domain.Supplier, error) {
			if id == "sup_far" {
				return domain.Supplier{ID: "sup_far", OwnerID: "act_o", RegionID: "reg_other", Active: true}, nil
			}
			return activeSupplier(), nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    offers,
		Suppliers: suppliers,
		Catalog:   testCatalog(),
		Clock:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.SubmitOffer(context.Background(), SubmitOfferCommand{OrderID: "ord_1", SupplierID: "sup_1", Price: 100_00}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for duplicate, got %v", err)
	}
	if _, err := svc.SubmitOffer(context.Background(), SubmitOfferCommand{OrderID: "ord_1", SupplierID: "sup_far", Price: 100_00}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for foreign region, got %v", err)
	}
	if _, err := svc.SubmitOffer(context.Background(), SubmitOfferCommand{OrderID: "ord_1", SupplierID: "sup_1", Price: 0}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for zero price, got %v", err)
	}
}

func TestSubmitOfferConflictsOnClosedOrExpiredOrder(t *testing.T) {
	current := openOrder(domain.OrderStatusAccepted)
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return current, nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    &stubOfferRepo{},
		Suppliers: &stubSupplierRepo{},
		Catalog:   testCatalog(),
		Clock:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.SubmitOffer(context.Background(), SubmitOfferCommand{OrderID: "ord_1", SupplierID: "sup_1", Price: 100_00}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for accepted order, got %v", err)
	}

	current = openOrder(domain.OrderStatusCancelled)
	if _, err := svc.SubmitOffer(context.Background(), SubmitOfferCommand{OrderID: "ord_1", SupplierID: "sup_1", Price: 100_00}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for cancelled order, got %v", err)
	}

	current = openOrder(domain.OrderStatusActive)
	current.ExpiresAt = fixedNow.Add(-time.Minute)
	if _, err := svc.SubmitOffer(context.Background(), SubmitOfferCommand{OrderID: "ord_1", SupplierID: "sup_1", Price: 100_00}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict for expired order, got %v", err)
	}
}

func TestDecideOfferAcceptLocksSiblingsAndNotifies(t *testing.T) {
	offer := domain.Offer{ID: "off_1", OrderID: "ord_1", SupplierID: "sup_1", Price: 150_00, Status: domain.OfferStatusPending}
	sibling := domain.Offer{ID: "off_2", OrderID: "ord_1", SupplierID: "sup_2", Price: 180_00, Status: domain.OfferStatusLocked}

	offers := &stubOfferRepo{
		findFn: func(_ context.Context, id string) (domain.Offer, error) {
			return offer, nil
		},
		acceptFn: func(_ context.Context, orderID string, offerID string) (domain.Offer, []domain.Offer, error) {
			accepted := offer
			accepted.Status = domain.OfferStatusAccepted
			return accepted, []domain.Offer{sibling}, nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return openOrder(domain.OrderStatusActive), nil
		},
	}

	var acceptedNotified, lockedNotified bool
	notifier := &stubNotifier{
		acceptedFn: func(_ context.Context, order domain.Order, o domain.Offer) (domain.DispatchSummary, error) {
			acceptedNotified = true
			return domain.DispatchSummary{Sent: 2}, nil
		},
		lockedFn: func(_ context.Context, order domain.Order, o domain.Offer) (domain.DispatchSummary, error) {
			if o.ID != "off_2" {
				t.Fatalf("unexpected locked offer %s", o.ID)
			}
			lockedNotified = true
			return domain.DispatchSummary{Sent: 1}, nil
		},
	}
	publisher := &stubEventPublisher{}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    offers,
		Suppliers: &stubSupplierRepo{},
		Catalog:   testCatalog(),
		Notifier:  notifier,
		Events:    publisher,
		Clock:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	result, err := svc.DecideOffer(context.Background(), DecideOfferCommand{
		OfferID:  "off_1",
		Decision: DecisionAccept,
		ActorID:  "act_buyer",
	})
	if err != nil {
		t.Fatalf("DecideOffer: %v", err)
	}
	if result.Offer.Status != domain.OfferStatusAccepted {
		t.Fatalf("expected accepted offer, got %s", result.Offer.Status)
	}
	if result.Order.Status != domain.OrderStatusAccepted {
		t.Fatalf("expected accepted order, got %s", result.Order.Status)
	}
	if len(result.Locked) != 1 || result.Locked[0].ID != "off_2" {
		t.Fatalf("unexpected locked set %+v", result.Locked)
	}
	if !acceptedNotified || !lockedNotified {
		t.Fatalf("expected both supplier notifications, got accepted=%v locked=%v", acceptedNotified, lockedNotified)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "offer.accepted" {
		t.Fatalf("expected offer.accepted event, got %+v", publisher.events)
	}
}

func TestDecideOfferLostRaceSurfacesConflict(t *testing.T) {
	offers := &stubOfferRepo{
		findFn: func(_ context.Context, id string) (domain.Offer, error) {
			return domain.Offer{ID: "off_1", OrderID: "ord_1", SupplierID: "sup_1", Status: domain.OfferStatusPending}, nil
		},
		acceptFn: func(_ context.Context, orderID string, offerID string) (domain.Offer, []domain.Offer, error) {
			return domain.Offer{}, nil, &stubRepoError{msg: "already accepted", conflict: true}
		},
	}
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return openOrder(domain.OrderStatusActive), nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    offers,
		Suppliers: &stubSupplierRepo{},
		Catalog:   testCatalog(),
		Clock:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.DecideOffer(context.Background(), DecideOfferCommand{OfferID: "off_1", Decision: DecisionAccept, ActorID: "act_buyer"}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDecideOfferRejectOnlyTouchesOneOffer(t *testing.T) {
	offers := &stubOfferRepo{
		findFn: func(_ context.Context, id string) (domain.Offer, error) {
			return domain.Offer{ID: "off_1", OrderID: "ord_1", SupplierID: "sup_1", Status: domain.OfferStatusPending}, nil
		},
		rejectFn: func(_ context.Context, id string) (domain.Offer, error) {
			return domain.Offer{ID: "off_1", OrderID: "ord_1", SupplierID: "sup_1", Status: domain.OfferStatusRejected}, nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return openOrder(domain.OrderStatusActive), nil
		},
	}
	rejectedNotified := false
	notifier := &stubNotifier{
		rejectedFn: func(_ context.Context, order domain.Order, offer domain.Offer) (domain.DispatchSummary, error) {
			rejectedNotified = true
			return domain.DispatchSummary{Sent: 1}, nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    offers,
		Suppliers: &stubSupplierRepo{},
		Catalog:   testCatalog(),
		Notifier:  notifier,
		Clock:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	result, err := svc.DecideOffer(context.Background(), DecideOfferCommand{OfferID: "off_1", Decision: DecisionReject, ActorID: "act_buyer"})
	if err != nil {
		t.Fatalf("DecideOffer: %v", err)
	}
	if result.Offer.Status != domain.OfferStatusRejected {
		t.Fatalf("expected rejected offer, got %s", result.Offer.Status)
	}
	if result.Order.Status != domain.OrderStatusActive {
		t.Fatalf("order status must not change on reject, got %s", result.Order.Status)
	}
	if len(result.Locked) != 0 {
		t.Fatalf("reject must not lock siblings, got %+v", result.Locked)
	}
	if !rejectedNotified {
		t.Fatal("expected supplier rejection notice")
	}
}

func TestDecideOfferEnforcesOwnership(t *testing.T) {
	offers := &stubOfferRepo{
		findFn: func(_ context.Context, id string) (domain.Offer, error) {
			return domain.Offer{ID: "off_1", OrderID: "ord_1", Status: domain.OfferStatusPending}, nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return openOrder(domain.OrderStatusActive), nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    offers,
		Suppliers: &stubSupplierRepo{},
		Catalog:   testCatalog(),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.DecideOffer(context.Background(), DecideOfferCommand{OfferID: "off_1", Decision: DecisionAccept, ActorID: "act_intruder"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestCancelOrderGuardsStatus(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return openOrder(domain.OrderStatusActive), nil
		},
		updateFn: func(_ context.Context, id string, from []domain.OrderStatus, to domain.OrderStatus) (domain.Order, error) {
			return domain.Order{}, &stubRepoError{msg: "status changed", conflict: true}
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    &stubOfferRepo{},
		Suppliers: &stubSupplierRepo{},
		Catalog:   testCatalog(),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.CancelOrder(context.Background(), CancelOrderCommand{OrderID: "ord_1", ActorID: "act_buyer"}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestRateSupplierUpdatesAggregates(t *testing.T) {
	offers := &stubOfferRepo{
		findFn: func(_ context.Context, id string) (domain.Offer, error) {
			return domain.Offer{ID: "off_1", OrderID: "ord_1", SupplierID: "sup_1", Status: domain.OfferStatusAccepted}, nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return openOrder(domain.OrderStatusAccepted), nil
		},
	}
	suppliers := &stubSupplierRepo{
		rateFn: func(_ context.Context, supplierID string, score int) (domain.Supplier, error) {
			if supplierID != "sup_1" {
				t.Fatalf("unexpected supplier %s", supplierID)
			}
			if score != 4 {
				t.Fatalf("unexpected score %d", score)
			}
			supplier := activeSupplier()
			supplier.TotalRatings = 3
			supplier.AverageRating = 4.5
			return supplier, nil
		},
	}
	publisher := &stubEventPublisher{}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    offers,
		Suppliers: suppliers,
		Catalog:   testCatalog(),
		Events:    publisher,
		Clock:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	supplier, err := svc.RateSupplier(context.Background(), RateSupplierCommand{
		OfferID: "off_1",
		ActorID: "act_buyer",
		Score:   4,
	})
	if err != nil {
		t.Fatalf("RateSupplier: %v", err)
	}
	if supplier.TotalRatings != 3 || supplier.AverageRating != 4.5 {
		t.Fatalf("unexpected aggregates %+v", supplier)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "supplier.rated" {
		t.Fatalf("expected supplier.rated event, got %+v", publisher.events)
	}
}

func TestRateSupplierGuards(t *testing.T) {
	offers := &stubOfferRepo{
		findFn: func(_ context.Context, id string) (domain.Offer, error) {
			if id == "off_pending" {
				return domain.Offer{ID: "off_pending", OrderID: "ord_1", SupplierID: "sup_1", Status: domain.OfferStatusPending}, nil
			}
			return domain.Offer{ID: id, OrderID: "ord_1", SupplierID: "sup_1", Status: domain.OfferStatusAccepted}, nil
		},
	}
	orders := &stubOrderRepo{
		findFn: func(_ context.Context, id string) (domain.Order, error) {
			return openOrder(domain.OrderStatusAccepted), nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    offers,
		Suppliers: &stubSupplierRepo{},
		Catalog:   testCatalog(),
		Clock:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	if _, err := svc.RateSupplier(context.Background(), RateSupplierCommand{OfferID: "off_1", ActorID: "act_buyer", Score: 6}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for score 6, got %v", err)
	}
	if _, err := svc.RateSupplier(context.Background(), RateSupplierCommand{OfferID: "off_pending", ActorID: "act_buyer", Score: 3}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state for pending offer, got %v", err)
	}
	if _, err := svc.RateSupplier(context.Background(), RateSupplierCommand{OfferID: "off_1", ActorID: "act_intruder", Score: 3}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for foreign buyer, got %v", err)
	}
}

func TestExpireOverdueSweepsAndSkipsRaces(t *testing.T) {
	overdue := []domain.Order{
		{ID: "ord_1", Code: "RYD2507010001", BuyerID: "act_1", Status: domain.OrderStatusActive},
		{ID: "ord_2", Code: "RYD2507010002", BuyerID: "act_2", Status: domain.OrderStatusNew},
	}
	orders := &stubOrderRepo{
		overdueFn: func(_ context.Context, now time.Time, limit int) ([]domain.Order, error) {
			return overdue, nil
		},
		updateFn: func(_ context.Context, id string, from []domain.OrderStatus, to domain.OrderStatus) (domain.Order, error) {
			if id == "ord_2" {
				// a decision landed mid-sweep
				return domain.Order{}, &stubRepoError{msg: "accepted meanwhile", conflict: true}
			}
			order := overdue[0]
			order.Status = domain.OrderStatusExpired
			return order, nil
		},
	}
	var expiredNotices []string
	notifier := &stubNotifier{
		expiredFn: func(_ context.Context, order domain.Order) error {
			expiredNotices = append(expiredNotices, order.ID)
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    orders,
		Offers:    &stubOfferRepo{},
		Suppliers: &stubSupplierRepo{},
		Catalog:   testCatalog(),
		Notifier:  notifier,
		Clock:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	count, err := svc.ExpireOverdue(context.Background())
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired, got %d", count)
	}
	if len(expiredNotices) != 1 || expiredNotices[0] != "ord_1" {
		t.Fatalf("unexpected notices %v", expiredNotices)
	}
}
