package services

import (
	"context"
	"time"

	domain "github.com/tashaleeh/api/internal/domain"
)

// DraftStep enumerates the guided form steps of an in-progress request.
type DraftStep string

const (
	// StepSelectRegion chooses the buyer's service region.
	StepSelectRegion DraftStep = "select_region"
	// StepSelectMake chooses the vehicle manufacturer.
	StepSelectMake DraftStep = "select_make"
	// StepSelectModel chooses the vehicle model. Skipped when the make has
	// no active models in the catalog.
	StepSelectModel DraftStep = "select_model"
	// StepSelectYearRange narrows the production year to a decade range.
	StepSelectYearRange DraftStep = "select_year_range"
	// StepSelectYear chooses the exact production year.
	StepSelectYear DraftStep = "select_year"
	// StepCollectItems gathers one or more named line items with optional media.
	StepCollectItems DraftStep = "collect_items"
	// StepReview presents the assembled request for confirmation.
	StepReview DraftStep = "review"
)

// Draft is an ephemeral in-progress parts request. It lives only in process
// memory and is lost on restart.
type Draft struct {
	ID        string
	ActorID   string
	Step      DraftStep
	RegionID  string
	MakeID    string
	ModelID   string
	YearFrom  int
	YearTo    int
	Year      int
	Items     []domain.LineItem
	MediaRefs []string
	CreatedAt time.Time
}

// HasRequiredSelections reports whether every selection needed for
// confirmation is present. ModelID is intentionally not required: makes
// without catalogued models leave it empty.
func (d Draft) HasRequiredSelections() bool {
	return d.RegionID != "" && d.MakeID != "" && d.Year != 0
}

// DraftInput carries the value submitted for the draft's current step.
type DraftInput struct {
	RegionID string
	MakeID   string
	ModelID  string
	YearFrom int
	YearTo   int
	Year     int
}

// DraftService manages per-actor in-progress drafts with one active pointer.
type DraftService interface {
	StartDraft(ctx context.Context, actorID string) (Draft, error)
	Advance(ctx context.Context, actorID string, input DraftInput) (Draft, error)
	AddItem(ctx context.Context, actorID string, name string, note string) (Draft, error)
	AttachMedia(ctx context.Context, actorID string, mediaRef string) (Draft, error)
	FinishItems(ctx context.Context, actorID string) (Draft, error)
	ActiveDraft(ctx context.Context, actorID string) (Draft, error)
	ListDrafts(ctx context.Context, actorID string) ([]Draft, error)
	SwitchActive(ctx context.Context, actorID string, draftID string) (Draft, error)
	DeleteDraft(ctx context.Context, actorID string, draftID string) error
	// TakeForConfirm removes the draft from the manager and hands it to the
	// orchestrator. Restore puts it back if the confirmation fails.
	TakeForConfirm(ctx context.Context, actorID string, draftID string) (Draft, error)
	Restore(ctx context.Context, draft Draft)
}

// ConfirmDraftCommand converts a completed draft into a persisted order.
type ConfirmDraftCommand struct {
	ActorID string
	Draft   Draft
}

// SubmitOfferCommand records a supplier's priced response to an order.
type SubmitOfferCommand struct {
	OrderID    string
	SupplierID string
	Price      int64
	Notes      string
}

// OfferDecision is the buyer's verdict on a single offer.
type OfferDecision string

const (
	// DecisionAccept accepts the offer and locks out all competitors.
	DecisionAccept OfferDecision = "accept"
	// DecisionReject declines this offer only.
	DecisionReject OfferDecision = "reject"
)

// DecideOfferCommand applies the buyer's decision to an offer.
type DecideOfferCommand struct {
	OfferID  string
	Decision OfferDecision
	ActorID  string
}

// CancelOrderCommand withdraws an order that has not been accepted yet.
type CancelOrderCommand struct {
	OrderID string
	ActorID string
}

// RateSupplierCommand records the buyer's 1-5 score for the supplier whose
// offer they accepted.
type RateSupplierCommand struct {
	OfferID string
	ActorID string
	Score   int
}

// DecideOfferResult reports the decided offer and, on accept, the siblings
// that were locked out.
type DecideOfferResult struct {
	Offer  domain.Offer
	Order  domain.Order
	Locked []domain.Offer
}

// OrderService orchestrates the order/offer negotiation workflow.
type OrderService interface {
	ConfirmDraft(ctx context.Context, cmd ConfirmDraftCommand) (domain.Order, error)
	SubmitOffer(ctx context.Context, cmd SubmitOfferCommand) (domain.Offer, error)
	DecideOffer(ctx context.Context, cmd DecideOfferCommand) (DecideOfferResult, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	// RateSupplier folds the buyer's score into the winning supplier's
	// rating aggregates after an accepted deal.
	RateSupplier(ctx context.Context, cmd RateSupplierCommand) (domain.Supplier, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrderByCode(ctx context.Context, code string) (domain.Order, error)
	ListOrdersForBuyer(ctx context.Context, buyerID string, limit int) ([]domain.Order, error)
	ListOffers(ctx context.Context, orderID string) ([]domain.Offer, error)
	// ExpireOverdue sweeps new/active orders past their TTL into expired.
	ExpireOverdue(ctx context.Context) (int, error)
}

// Button is one inline control offered with an outbound message. Data is the
// underscore-joined callback token decoded by the inbound router.
type Button struct {
	Text string
	Data string
}

// OutboundMessage is a text payload with optional interactive controls.
type OutboundMessage struct {
	Text     string
	Keyboard [][]Button
}

// Messenger is the outbound contract to the delivery collaborator.
// Recipients are addressed by their opaque numeric external handle.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, msg OutboundMessage) error
	SendPhoto(ctx context.Context, chatID int64, fileID string, caption string) error
}

// DeliveryFault lets the dispatcher distinguish permanently unreachable
// recipients from transient transport failures. Both are non-fatal.
type DeliveryFault interface {
	error
	Unreachable() bool
}

// Notifier fans workflow milestones out to their external audiences. Every
// method is best-effort: failures are logged and summarised, never
// propagated into the triggering operation.
type Notifier interface {
	BroadcastOrder(ctx context.Context, order domain.Order) (domain.DispatchSummary, error)
	ConfirmToBuyer(ctx context.Context, order domain.Order) error
	OfferToBuyer(ctx context.Context, order domain.Order, offer domain.Offer) error
	AcceptedToSupplier(ctx context.Context, order domain.Order, offer domain.Offer) (domain.DispatchSummary, error)
	LockedToSupplier(ctx context.Context, order domain.Order, offer domain.Offer) (domain.DispatchSummary, error)
	RejectedToSupplier(ctx context.Context, order domain.Order, offer domain.Offer) (domain.DispatchSummary, error)
	ExpiredToBuyer(ctx context.Context, order domain.Order) error
}

// OrderEventPublisher publishes workflow domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}
