package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	domain "github.com/tashaleeh/api/internal/domain"
	"github.com/tashaleeh/api/internal/repositories"
)

var (
	// ErrNotifyInvalidInput signals the caller provided invalid data.
	ErrNotifyInvalidInput = errors.New("notify: invalid input")
)

// NotificationServiceDeps bundles collaborators required to construct the notifier.
type NotificationServiceDeps struct {
	Messenger   Messenger
	Actors      repositories.ActorRepository
	Suppliers   repositories.SupplierRepository
	Catalog     repositories.CatalogRepository
	Concurrency int
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	messenger   Messenger
	actors      repositories.ActorRepository
	suppliers   repositories.SupplierRepository
	catalog     repositories.CatalogRepository
	concurrency int
	logger      func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a concrete Notifier implementation.
func NewNotificationService(deps NotificationServiceDeps) (Notifier, error) {
	if deps.Messenger == nil {
		return nil, errors.New("notification service: messenger is required")
	}
	if deps.Actors == nil {
		return nil, errors.New("notification service: actor repository is required")
	}
	if deps.Suppliers == nil {
		return nil, errors.New("notification service: supplier repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("notification service: catalog repository is required")
	}

	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		messenger:   deps.Messenger,
		actors:      deps.Actors,
		suppliers:   deps.Suppliers,
		catalog:     deps.Catalog,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// BroadcastOrder fans the new-order announcement out to every supplier in the
// order's region, owner and active staff alike. Deliveries run with bounded
// concurrency and one failing recipient never blocks the rest.
func (s *notificationService) BroadcastOrder(ctx context.Context, order domain.Order) (domain.DispatchSummary, error) {
	if strings.TrimSpace(order.RegionID) == "" {
		return domain.DispatchSummary{}, fmt.Errorf("%w: order region is required", ErrNotifyInvalidInput)
	}

	suppliers, err := s.suppliers.ListActiveByRegion(ctx, order.RegionID)
	if err != nil {
		return domain.DispatchSummary{}, fmt.Errorf("notify: list suppliers: %w", err)
	}
	if len(suppliers) == 0 {
		s.logger(ctx, "notify.broadcast.empty", map[string]any{
			"order":  order.ID,
			"region": order.RegionID,
		})
		return domain.DispatchSummary{}, nil
	}

	vehicle := s.describeVehicle(ctx, order)
	msg := BroadcastMessage(order, vehicle)

	var recipients []domain.Recipient
	for _, supplier := range suppliers {
		resolved, err := s.resolveSupplierRecipients(ctx, supplier)
		if err != nil {
			s.logger(ctx, "notify.recipients.failed", map[string]any{
				"order":    order.ID,
				"supplier": supplier.ID,
				"error":    err.Error(),
			})
			continue
		}
		recipients = append(recipients, resolved...)
	}

	return s.dispatch(ctx, order.ID, recipients, msg, collectMedia(order)), nil
}

// collectMedia gathers the buyer's attachments, order-level first, then per
// line item in order.
func collectMedia(order domain.Order) []string {
	refs := append([]string(nil), order.MediaRefs...)
	for _, item := range order.Items {
		refs = append(refs, item.MediaRefs...)
	}
	return refs
}

// ConfirmToBuyer acknowledges the committed order to its buyer.
func (s *notificationService) ConfirmToBuyer(ctx context.Context, order domain.Order) error {
	buyer, err := s.actors.FindByID(ctx, order.BuyerID)
	if err != nil {
		return fmt.Errorf("notify: resolve buyer: %w", err)
	}
	vehicle := s.describeVehicle(ctx, order)
	return s.messenger.SendMessage(ctx, buyer.TelegramID, ConfirmMessage(order, vehicle))
}

// OfferToBuyer tells the buyer a new offer arrived.
func (s *notificationService) OfferToBuyer(ctx context.Context, order domain.Order, offer domain.Offer) error {
	buyer, err := s.actors.FindByID(ctx, order.BuyerID)
	if err != nil {
		return fmt.Errorf("notify: resolve buyer: %w", err)
	}
	return s.messenger.SendMessage(ctx, buyer.TelegramID, NewOfferMessage(order, offer))
}

// AcceptedToSupplier congratulates the winning supplier's recipients.
func (s *notificationService) AcceptedToSupplier(ctx context.Context, order domain.Order, offer domain.Offer) (domain.DispatchSummary, error) {
	return s.sendToSupplier(ctx, order, offer.SupplierID, AcceptedMessage(order, offer))
}

// LockedToSupplier tells a superseded supplier their offer was closed out.
func (s *notificationService) LockedToSupplier(ctx context.Context, order domain.Order, offer domain.Offer) (domain.DispatchSummary, error) {
	return s.sendToSupplier(ctx, order, offer.SupplierID, LockedMessage(order))
}

// RejectedToSupplier tells a supplier the buyer declined their offer.
func (s *notificationService) RejectedToSupplier(ctx context.Context, order domain.Order, offer domain.Offer) (domain.DispatchSummary, error) {
	return s.sendToSupplier(ctx, order, offer.SupplierID, RejectedMessage(order))
}

// ExpiredToBuyer tells the buyer their order lapsed.
func (s *notificationService) ExpiredToBuyer(ctx context.Context, order domain.Order) error {
	buyer, err := s.actors.FindByID(ctx, order.BuyerID)
	if err != nil {
		return fmt.Errorf("notify: resolve buyer: %w", err)
	}
	return s.messenger.SendMessage(ctx, buyer.TelegramID, ExpiredMessage(order))
}

func (s *notificationService) sendToSupplier(ctx context.Context, order domain.Order, supplierID string, msg OutboundMessage) (domain.DispatchSummary, error) {
	supplier, err := s.suppliers.FindByID(ctx, supplierID)
	if err != nil {
		return domain.DispatchSummary{}, fmt.Errorf("notify: resolve supplier: %w", err)
	}
	recipients, err := s.resolveSupplierRecipients(ctx, supplier)
	if err != nil {
		return domain.DispatchSummary{}, err
	}
	return s.dispatch(ctx, order.ID, recipients, msg, nil), nil
}

// resolveSupplierRecipients collects the supplier owner and every active staff
// member that carries a deliverable handle.
func (s *notificationService) resolveSupplierRecipients(ctx context.Context, supplier domain.Supplier) ([]domain.Recipient, error) {
	var recipients []domain.Recipient

	owner, err := s.actors.FindByID(ctx, supplier.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("notify: resolve owner of %s: %w", supplier.ID, err)
	}
	if owner.TelegramID != 0 {
		recipients = append(recipients, domain.Recipient{
			ActorID:    owner.ID,
			TelegramID: owner.TelegramID,
			Name:       owner.FirstName,
			Role:       string(domain.ActorRoleSupplierOwner),
		})
	}

	staff, err := s.suppliers.ListActiveStaff(ctx, supplier.ID)
	if err != nil {
		return recipients, fmt.Errorf("notify: list staff of %s: %w", supplier.ID, err)
	}
	for _, member := range staff {
		actor, err := s.actors.FindByID(ctx, member.ActorID)
		if err != nil {
			s.logger(ctx, "notify.staff.skip", map[string]any{
				"supplier": supplier.ID,
				"staff":    member.ID,
				"error":    err.Error(),
			})
			continue
		}
		if actor.TelegramID == 0 {
			continue
		}
		recipients = append(recipients, domain.Recipient{
			ActorID:    actor.ID,
			TelegramID: actor.TelegramID,
			Name:       actor.FirstName,
			Role:       string(domain.ActorRoleSupplierStaff),
		})
	}
	return recipients, nil
}

// dispatch delivers the message, then each media attachment, to every
// recipient with bounded concurrency. Failures are tallied, logged, and never
// propagated.
func (s *notificationService) dispatch(ctx context.Context, orderID string, recipients []domain.Recipient, msg OutboundMessage, media []string) domain.DispatchSummary {
	if len(recipients) == 0 {
		s.logger(ctx, "notify.dispatch.empty", map[string]any{
			"order": orderID,
		})
		return domain.DispatchSummary{}
	}

	var (
		mu      sync.Mutex
		summary domain.DispatchSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, recipient := range recipients {
		recipient := recipient
		g.Go(func() error {
			err := s.messenger.SendMessage(gctx, recipient.TelegramID, msg)
			mu.Lock()
			if err == nil {
				summary.Sent++
			} else {
				summary.Failed++
			}
			mu.Unlock()
			if err != nil {
				fields := map[string]any{
					"order": orderID,
					"actor": recipient.ActorID,
					"error": err.Error(),
				}
				var fault DeliveryFault
				if errors.As(err, &fault) && fault.Unreachable() {
					fields["unreachable"] = true
				}
				s.logger(ctx, "notify.send.failed", fields)
				return nil
			}

			for _, ref := range media {
				if err := s.messenger.SendPhoto(gctx, recipient.TelegramID, ref, ""); err != nil {
					s.logger(ctx, "notify.media.failed", map[string]any{
						"order": orderID,
						"actor": recipient.ActorID,
						"media": ref,
						"error": err.Error(),
					})
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return summary
}

// describeVehicle renders "make model year" from the catalog, degrading to
// whatever parts resolve.
func (s *notificationService) describeVehicle(ctx context.Context, order domain.Order) string {
	parts := make([]string, 0, 3)
	if mk, err := s.catalog.GetMake(ctx, order.MakeID); err == nil {
		parts = append(parts, mk.Name)
	}
	if order.ModelID != "" {
		if model, err := s.catalog.GetModel(ctx, order.ModelID); err == nil {
			parts = append(parts, model.Name)
		}
	}
	if order.Year != 0 {
		parts = append(parts, fmt.Sprintf("%d", order.Year))
	}
	return strings.Join(parts, " ")
}
