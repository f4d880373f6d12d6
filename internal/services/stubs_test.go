package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/tashaleeh/api/internal/domain"
)

type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubActorRepo struct {
	findFn       func(context.Context, string) (domain.Actor, error)
	findByTgFn   func(context.Context, int64) (domain.Actor, error)
	upsertFn     func(context.Context, domain.Actor) (domain.Actor, error)
}

func (s *stubActorRepo) FindByID(ctx context.Context, actorID string) (domain.Actor, error) {
	if s.findFn != nil {
		return s.findFn(ctx, actorID)
	}
	return domain.Actor{}, errors.New("not implemented")
}

func (s *stubActorRepo) FindByTelegramID(ctx context.Context, telegramID int64) (domain.Actor, error) {
	if s.findByTgFn != nil {
		return s.findByTgFn(ctx, telegramID)
	}
	return domain.Actor{}, errors.New("not implemented")
}

func (s *stubActorRepo) Upsert(ctx context.Context, actor domain.Actor) (domain.Actor, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, actor)
	}
	return actor, nil
}

type stubCatalogRepo struct {
	regionsFn   func(context.Context) ([]domain.Region, error)
	regionFn    func(context.Context, string) (domain.Region, error)
	makesFn     func(context.Context) ([]domain.Make, error)
	makeFn      func(context.Context, string) (domain.Make, error)
	modelsFn    func(context.Context, string) ([]domain.CarModel, error)
	modelFn     func(context.Context, string) (domain.CarModel, error)
}

func (s *stubCatalogRepo) ListActiveRegions(ctx context.Context) ([]domain.Region, error) {
	if s.regionsFn != nil {
		return s.regionsFn(ctx)
	}
	return nil, nil
}

func (s *stubCatalogRepo) GetRegion(ctx context.Context, regionID string) (domain.Region, error) {
	if s.regionFn != nil {
		return s.regionFn(ctx, regionID)
	}
	return domain.Region{}, errors.New("not implemented")
}

func (s *stubCatalogRepo) ListActiveMakes(ctx context.Context) ([]domain.Make, error) {
	if s.makesFn != nil {
		return s.makesFn(ctx)
	}
	return nil, nil
}

func (s *stubCatalogRepo) GetMake(ctx context.Context, makeID string) (domain.Make, error) {
	if s.makeFn != nil {
		return s.makeFn(ctx, makeID)
	}
	return domain.Make{}, errors.New("not implemented")
}

func (s *stubCatalogRepo) ListActiveModels(ctx context.Context, makeID string) ([]domain.CarModel, error) {
	if s.modelsFn != nil {
		return s.modelsFn(ctx, makeID)
	}
	return nil, nil
}

func (s *stubCatalogRepo) GetModel(ctx context.Context, modelID string) (domain.CarModel, error) {
	if s.modelFn != nil {
		return s.modelFn(ctx, modelID)
	}
	return domain.CarModel{}, errors.New("not implemented")
}

type stubSupplierRepo struct {
	findFn      func(context.Context, string) (domain.Supplier, error)
	byOwnerFn   func(context.Context, string) (domain.Supplier, error)
	byRegionFn  func(context.Context, string) ([]domain.Supplier, error)
	staffFn     func(context.Context, string) ([]domain.SupplierStaff, error)
	rateFn      func(context.Context, string, int) (domain.Supplier, error)
}

func (s *stubSupplierRepo) FindByID(ctx context.Context, supplierID string) (domain.Supplier, error) {
	if s.findFn != nil {
		return s.findFn(ctx, supplierID)
	}
	return domain.Supplier{}, errors.New("not implemented")
}

func (s *stubSupplierRepo) FindByOwner(ctx context.Context, ownerID string) (domain.Supplier, error) {
	if s.byOwnerFn != nil {
		return s.byOwnerFn(ctx, ownerID)
	}
	return domain.Supplier{}, errors.New("not implemented")
}

func (s *stubSupplierRepo) ListActiveByRegion(ctx context.Context, regionID string) ([]domain.Supplier, error) {
	if s.byRegionFn != nil {
		return s.byRegionFn(ctx, regionID)
	}
	return nil, nil
}

func (s *stubSupplierRepo) ListActiveStaff(ctx context.Context, supplierID string) ([]domain.SupplierStaff, error) {
	if s.staffFn != nil {
		return s.staffFn(ctx, supplierID)
	}
	return nil, nil
}

func (s *stubSupplierRepo) AddRating(ctx context.Context, supplierID string, score int) (domain.Supplier, error) {
	if s.rateFn != nil {
		return s.rateFn(ctx, supplierID, score)
	}
	return domain.Supplier{}, errors.New("not implemented")
}

type stubOrderRepo struct {
	insertFn      func(context.Context, domain.Order) error
	findFn        func(context.Context, string) (domain.Order, error)
	findByCodeFn  func(context.Context, string) (domain.Order, error)
	codeExistsFn  func(context.Context, string) (bool, error)
	countFn       func(context.Context, string, time.Time) (int64, error)
	updateFn      func(context.Context, string, []domain.OrderStatus, domain.OrderStatus) (domain.Order, error)
	listByBuyerFn func(context.Context, string, int) ([]domain.Order, error)
	overdueFn     func(context.Context, time.Time, int) ([]domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	if s.findByCodeFn != nil {
		return s.findByCodeFn(ctx, code)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	if s.codeExistsFn != nil {
		return s.codeExistsFn(ctx, code)
	}
	return false, nil
}

func (s *stubOrderRepo) CountByRegionSince(ctx context.Context, regionID string, cutoff time.Time) (int64, error) {
	if s.countFn != nil {
		return s.countFn(ctx, regionID, cutoff)
	}
	return 0, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID string, from []domain.OrderStatus, to domain.OrderStatus) (domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, orderID, from, to)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) ListByBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error) {
	if s.listByBuyerFn != nil {
		return s.listByBuyerFn(ctx, buyerID, limit)
	}
	return nil, nil
}

func (s *stubOrderRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	if s.overdueFn != nil {
		return s.overdueFn(ctx, now, limit)
	}
	return nil, nil
}

type stubOfferRepo struct {
	createFn  func(context.Context, domain.Offer) (domain.Offer, error)
	findFn    func(context.Context, string) (domain.Offer, error)
	listFn    func(context.Context, string) ([]domain.Offer, error)
	countFn   func(context.Context, string) (int64, error)
	acceptFn  func(context.Context, string, string) (domain.Offer, []domain.Offer, error)
	rejectFn  func(context.Context, string) (domain.Offer, error)
}

func (s *stubOfferRepo) Create(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	if s.createFn != nil {
		return s.createFn(ctx, offer)
	}
	offer.ID = "off_stub"
	offer.Status = domain.OfferStatusPending
	return offer, nil
}

func (s *stubOfferRepo) FindByID(ctx context.Context, offerID string) (domain.Offer, error) {
	if s.findFn != nil {
		return s.findFn(ctx, offerID)
	}
	return domain.Offer{}, errors.New("not implemented")
}

func (s *stubOfferRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Offer, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubOfferRepo) CountByOrder(ctx context.Context, orderID string) (int64, error) {
	if s.countFn != nil {
		return s.countFn(ctx, orderID)
	}
	return 0, nil
}

func (s *stubOfferRepo) AcceptAndLockSiblings(ctx context.Context, orderID string, offerID string) (domain.Offer, []domain.Offer, error) {
	if s.acceptFn != nil {
		return s.acceptFn(ctx, orderID, offerID)
	}
	return domain.Offer{}, nil, errors.New("not implemented")
}

func (s *stubOfferRepo) Reject(ctx context.Context, offerID string) (domain.Offer, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, offerID)
	}
	return domain.Offer{}, errors.New("not implemented")
}

type stubMessenger struct {
	sendFn  func(context.Context, int64, OutboundMessage) error
	photoFn func(context.Context, int64, string, string) error
}

func (s *stubMessenger) SendMessage(ctx context.Context, chatID int64, msg OutboundMessage) error {
	if s.sendFn != nil {
		return s.sendFn(ctx, chatID, msg)
	}
	return nil
}

func (s *stubMessenger) SendPhoto(ctx context.Context, chatID int64, fileID string, caption string) error {
	if s.photoFn != nil {
		return s.photoFn(ctx, chatID, fileID, caption)
	}
	return nil
}

type stubNotifier struct {
	broadcastFn func(context.Context, domain.Order) (domain.DispatchSummary, error)
	confirmFn   func(context.Context, domain.Order) error
	offerFn     func(context.Context, domain.Order, domain.Offer) error
	acceptedFn  func(context.Context, domain.Order, domain.Offer) (domain.DispatchSummary, error)
	lockedFn    func(context.Context, domain.Order, domain.Offer) (domain.DispatchSummary, error)
	rejectedFn  func(context.Context, domain.Order, domain.Offer) (domain.DispatchSummary, error)
	expiredFn   func(context.Context, domain.Order) error
}

func (s *stubNotifier) BroadcastOrder(ctx context.Context, order domain.Order) (domain.DispatchSummary, error) {
	if s.broadcastFn != nil {
		return s.broadcastFn(ctx, order)
	}
	return domain.DispatchSummary{}, nil
}

func (s *stubNotifier) ConfirmToBuyer(ctx context.Context, order domain.Order) error {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, order)
	}
	return nil
}

func (s *stubNotifier) OfferToBuyer(ctx context.Context, order domain.Order, offer domain.Offer) error {
	if s.offerFn != nil {
		return s.offerFn(ctx, order, offer)
	}
	return nil
}

func (s *stubNotifier) AcceptedToSupplier(ctx context.Context, order domain.Order, offer domain.Offer) (domain.DispatchSummary, error) {
	if s.acceptedFn != nil {
		return s.acceptedFn(ctx, order, offer)
	}
	return domain.DispatchSummary{}, nil
}

func (s *stubNotifier) LockedToSupplier(ctx context.Context, order domain.Order, offer domain.Offer) (domain.DispatchSummary, error) {
	if s.lockedFn != nil {
		return s.lockedFn(ctx, order, offer)
	}
	return domain.DispatchSummary{}, nil
}

func (s *stubNotifier) RejectedToSupplier(ctx context.Context, order domain.Order, offer domain.Offer) (domain.DispatchSummary, error) {
	if s.rejectedFn != nil {
		return s.rejectedFn(ctx, order, offer)
	}
	return domain.DispatchSummary{}, nil
}

func (s *stubNotifier) ExpiredToBuyer(ctx context.Context, order domain.Order) error {
	if s.expiredFn != nil {
		return s.expiredFn(ctx, order)
	}
	return nil
}

type stubEventPublisher struct {
	publishFn func(context.Context, domain.OrderEvent) error
	events    []domain.OrderEvent
}

func (s *stubEventPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	s.events = append(s.events, event)
	if s.publishFn != nil {
		return s.publishFn(ctx, event)
	}
	return nil
}
