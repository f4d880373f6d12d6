package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/tashaleeh/api/internal/domain"
	"github.com/tashaleeh/api/internal/platform/requestctx"
	"github.com/tashaleeh/api/internal/platform/telegram"
	"github.com/tashaleeh/api/internal/repositories"
	"github.com/tashaleeh/api/internal/services"
)

// CallbackAnswerer acknowledges callback queries after routing them.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// RouterDeps bundles collaborators required to construct the update router.
type RouterDeps struct {
	Drafts    services.DraftService
	Orders    services.OrderService
	Actors    repositories.ActorRepository
	Catalog   repositories.CatalogRepository
	Suppliers repositories.SupplierRepository
	Messenger services.Messenger
	Callbacks CallbackAnswerer
}

// Router turns inbound Telegram updates into workflow operations.
type Router struct {
	drafts    services.DraftService
	orders    services.OrderService
	actors    repositories.ActorRepository
	catalog   repositories.CatalogRepository
	suppliers repositories.SupplierRepository
	messenger services.Messenger
	callbacks CallbackAnswerer
}

// NewRouter wires dependencies into a Router.
func NewRouter(deps RouterDeps) (*Router, error) {
	if deps.Drafts == nil {
		return nil, errors.New("bot router: draft service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("bot router: order service is required")
	}
	if deps.Actors == nil {
		return nil, errors.New("bot router: actor repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("bot router: catalog repository is required")
	}
	if deps.Suppliers == nil {
		return nil, errors.New("bot router: supplier repository is required")
	}
	if deps.Messenger == nil {
		return nil, errors.New("bot router: messenger is required")
	}
	return &Router{
		drafts:    deps.Drafts,
		orders:    deps.Orders,
		actors:    deps.Actors,
		catalog:   deps.Catalog,
		suppliers: deps.Suppliers,
		messenger: deps.Messenger,
		callbacks: deps.Callbacks,
	}, nil
}

// HandleUpdate routes one inbound update. Routing failures are reported to
// the sender in-channel; only infrastructure errors propagate.
func (r *Router) HandleUpdate(ctx context.Context, update telegram.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return r.handleCallback(ctx, *update.CallbackQuery)
	case update.Message != nil:
		return r.handleMessage(ctx, *update.Message)
	default:
		requestctx.Logger(ctx).Debug("bot: ignoring update without payload",
			zap.Int64("update_id", update.UpdateID))
		return nil
	}
}

func (r *Router) handleMessage(ctx context.Context, msg telegram.Message) error {
	if msg.From == nil || msg.From.IsBot {
		return nil
	}
	chatID := msg.Chat.ID

	actor, err := r.resolveActor(ctx, *msg.From)
	if err != nil {
		requestctx.Logger(ctx).Error("bot: resolve actor failed",
			zap.Int64("chat_id", chatID), zap.Error(err))
		return r.reply(ctx, chatID, services.OutboundMessage{Text: textInternalError})
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/start") {
		return r.sendWelcome(ctx, chatID, actor)
	}

	if fileID := msg.LargestPhoto(); fileID != "" {
		return r.attachMedia(ctx, chatID, actor, fileID, msg.Caption)
	}
	if msg.Video != nil && msg.Video.FileID != "" {
		return r.attachMedia(ctx, chatID, actor, msg.Video.FileID, msg.Caption)
	}

	if text == "" {
		return nil
	}

	// Supplier replies quote orders by code; everything else is treated as a
	// line item for the actor's active draft.
	if quote, ok := ParseSupplierQuote(text); ok {
		return r.submitQuote(ctx, chatID, actor, quote)
	}
	return r.addItem(ctx, chatID, actor, text)
}

func (r *Router) handleCallback(ctx context.Context, query telegram.CallbackQuery) error {
	chatID := query.From.ID
	if query.Message != nil {
		chatID = query.Message.Chat.ID
	}

	defer func() {
		if r.callbacks == nil {
			return
		}
		if err := r.callbacks.AnswerCallback(ctx, query.ID, ""); err != nil {
			requestctx.Logger(ctx).Warn("bot: answer callback failed",
				zap.String("callback_id", query.ID), zap.Error(err))
		}
	}()

	actor, err := r.resolveActor(ctx, query.From)
	if err != nil {
		requestctx.Logger(ctx).Error("bot: resolve actor failed",
			zap.Int64("chat_id", chatID), zap.Error(err))
		return r.reply(ctx, chatID, services.OutboundMessage{Text: textInternalError})
	}

	cmd, err := ParseCallback(query.Data)
	if err != nil {
		requestctx.Logger(ctx).Warn("bot: unknown callback token",
			zap.String("data", query.Data), zap.Int64("chat_id", chatID))
		return r.reply(ctx, chatID, services.OutboundMessage{Text: textUnknownAction})
	}

	return r.dispatch(ctx, chatID, actor, cmd)
}

func (r *Router) dispatch(ctx context.Context, chatID int64, actor domain.Actor, cmd Command) error {
	switch c := cmd.(type) {
	case NewRequestCommand:
		return r.startDraft(ctx, chatID, actor)
	case MyRequestsCommand:
		return r.listOrders(ctx, chatID, actor)
	case SelectRegionCommand:
		return r.advance(ctx, chatID, actor, services.DraftInput{RegionID: c.RegionID})
	case SelectMakeCommand:
		return r.advance(ctx, chatID, actor, services.DraftInput{MakeID: c.MakeID})
	case SelectModelCommand:
		return r.advance(ctx, chatID, actor, services.DraftInput{ModelID: c.ModelID})
	case SelectYearRangeCommand:
		return r.advance(ctx, chatID, actor, services.DraftInput{YearFrom: c.From, YearTo: c.To})
	case SelectYearCommand:
		return r.advance(ctx, chatID, actor, services.DraftInput{Year: c.Year})
	case FinishItemsCommand:
		return r.finishItems(ctx, chatID, actor)
	case ConfirmRequestCommand:
		return r.confirmDraft(ctx, chatID, actor)
	case SwitchDraftCommand:
		return r.switchDraft(ctx, chatID, actor, c.DraftID)
	case DeleteDraftCommand:
		return r.deleteDraft(ctx, chatID, actor, c.DraftID)
	case AcceptOfferCommand:
		return r.decideOffer(ctx, chatID, actor, c.OfferID, services.DecisionAccept)
	case RejectOfferCommand:
		return r.decideOffer(ctx, chatID, actor, c.OfferID, services.DecisionReject)
	case ViewOrderCommand:
		return r.viewOrder(ctx, chatID, actor, c.OrderID)
	case RateSupplierCommand:
		return r.rateSupplier(ctx, chatID, actor, c.OfferID, c.Score)
	default:
		return r.reply(ctx, chatID, services.OutboundMessage{Text: textUnknownAction})
	}
}

// resolveActor loads the actor behind the Telegram account, registering
// first-time senders as buyers.
func (r *Router) resolveActor(ctx context.Context, from telegram.User) (domain.Actor, error) {
	actor, err := r.actors.FindByTelegramID(ctx, from.ID)
	if err == nil {
		return actor, nil
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return domain.Actor{}, err
	}

	return r.actors.Upsert(ctx, domain.Actor{
		ID:         fmt.Sprintf("act_tg%d", from.ID),
		TelegramID: from.ID,
		Username:   from.Username,
		FirstName:  from.FirstName,
		Role:       domain.ActorRoleBuyer,
		Active:     true,
	})
}

func (r *Router) sendWelcome(ctx context.Context, chatID int64, actor domain.Actor) error {
	if !actor.Active {
		return r.reply(ctx, chatID, services.OutboundMessage{Text: textBanned})
	}
	return r.reply(ctx, chatID, welcomeMessage(actor))
}

func (r *Router) startDraft(ctx context.Context, chatID int64, actor domain.Actor) error {
	_, err := r.drafts.StartDraft(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, services.ErrDraftLimitExceeded) {
			drafts, listErr := r.drafts.ListDrafts(ctx, actor.ID)
			if listErr == nil {
				return r.reply(ctx, chatID, draftLimitMessage(drafts))
			}
		}
		return r.replyError(ctx, chatID, err)
	}
	return r.promptCurrentStep(ctx, chatID, actor)
}

func (r *Router) advance(ctx context.Context, chatID int64, actor domain.Actor, input services.DraftInput) error {
	if _, err := r.drafts.Advance(ctx, actor.ID, input); err != nil {
		return r.replyError(ctx, chatID, err)
	}
	return r.promptCurrentStep(ctx, chatID, actor)
}

func (r *Router) addItem(ctx context.Context, chatID int64, actor domain.Actor, text string) error {
	name, note, _ := strings.Cut(text, "-")
	draft, err := r.drafts.AddItem(ctx, actor.ID, strings.TrimSpace(name), strings.TrimSpace(note))
	if err != nil {
		if errors.Is(err, services.ErrDraftNotFound) || errors.Is(err, services.ErrDraftInvalidState) {
			return r.reply(ctx, chatID, services.OutboundMessage{Text: textNoActiveDraft})
		}
		return r.replyError(ctx, chatID, err)
	}
	return r.reply(ctx, chatID, itemAddedMessage(draft))
}

func (r *Router) attachMedia(ctx context.Context, chatID int64, actor domain.Actor, fileID string, caption string) error {
	draft, err := r.drafts.AttachMedia(ctx, actor.ID, fileID)
	if err != nil {
		if errors.Is(err, services.ErrDraftNotFound) {
			return r.reply(ctx, chatID, services.OutboundMessage{Text: textNoActiveDraft})
		}
		return r.replyError(ctx, chatID, err)
	}
	if caption = strings.TrimSpace(caption); caption != "" && draft.Step == services.StepCollectItems {
		name, note, _ := strings.Cut(caption, "-")
		if draft, err = r.drafts.AddItem(ctx, actor.ID, strings.TrimSpace(name), strings.TrimSpace(note)); err == nil {
			return r.reply(ctx, chatID, itemAddedMessage(draft))
		}
	}
	return r.reply(ctx, chatID, services.OutboundMessage{Text: textMediaAttached})
}

func (r *Router) finishItems(ctx context.Context, chatID int64, actor domain.Actor) error {
	draft, err := r.drafts.FinishItems(ctx, actor.ID)
	if err != nil {
		return r.replyError(ctx, chatID, err)
	}
	return r.reply(ctx, chatID, r.reviewMessage(ctx, draft))
}

func (r *Router) confirmDraft(ctx context.Context, chatID int64, actor domain.Actor) error {
	active, err := r.drafts.ActiveDraft(ctx, actor.ID)
	if err != nil {
		return r.replyError(ctx, chatID, err)
	}
	draft, err := r.drafts.TakeForConfirm(ctx, actor.ID, active.ID)
	if err != nil {
		return r.replyError(ctx, chatID, err)
	}

	if _, err := r.orders.ConfirmDraft(ctx, services.ConfirmDraftCommand{ActorID: actor.ID, Draft: draft}); err != nil {
		r.drafts.Restore(ctx, draft)
		return r.replyError(ctx, chatID, err)
	}
	// The order service confirms to the buyer and broadcasts to suppliers.
	return nil
}

func (r *Router) switchDraft(ctx context.Context, chatID int64, actor domain.Actor, draftID string) error {
	if _, err := r.drafts.SwitchActive(ctx, actor.ID, draftID); err != nil {
		return r.replyError(ctx, chatID, err)
	}
	return r.promptCurrentStep(ctx, chatID, actor)
}

func (r *Router) deleteDraft(ctx context.Context, chatID int64, actor domain.Actor, draftID string) error {
	if err := r.drafts.DeleteDraft(ctx, actor.ID, draftID); err != nil {
		return r.replyError(ctx, chatID, err)
	}
	return r.reply(ctx, chatID, services.OutboundMessage{Text: textDraftDeleted})
}

func (r *Router) decideOffer(ctx context.Context, chatID int64, actor domain.Actor, offerID string, decision services.OfferDecision) error {
	result, err := r.orders.DecideOffer(ctx, services.DecideOfferCommand{
		OfferID:  offerID,
		Decision: decision,
		ActorID:  actor.ID,
	})
	if err != nil {
		if errors.Is(err, services.ErrOrderConflict) {
			return r.reply(ctx, chatID, services.OutboundMessage{Text: textOfferAlreadyDecided})
		}
		return r.replyError(ctx, chatID, err)
	}

	if decision == services.DecisionAccept {
		return r.reply(ctx, chatID, acceptConfirmedMessage(result))
	}
	return r.reply(ctx, chatID, services.OutboundMessage{Text: textOfferRejected})
}

func (r *Router) rateSupplier(ctx context.Context, chatID int64, actor domain.Actor, offerID string, score int) error {
	supplier, err := r.orders.RateSupplier(ctx, services.RateSupplierCommand{
		OfferID: offerID,
		ActorID: actor.ID,
		Score:   score,
	})
	if err != nil {
		return r.replyError(ctx, chatID, err)
	}
	return r.reply(ctx, chatID, ratingThanksMessage(supplier))
}

func (r *Router) submitQuote(ctx context.Context, chatID int64, actor domain.Actor, quote SupplierQuote) error {
	supplier, err := r.supplierForActor(ctx, actor)
	if err != nil {
		return r.reply(ctx, chatID, services.OutboundMessage{Text: textNotASupplier})
	}

	order, err := r.orders.GetOrderByCode(ctx, quote.OrderCode)
	if err != nil {
		return r.replyError(ctx, chatID, err)
	}
	if !orderOpenForOffers(order) {
		return r.reply(ctx, chatID, services.OutboundMessage{Text: textOrderClosed})
	}

	offer, err := r.orders.SubmitOffer(ctx, services.SubmitOfferCommand{
		OrderID:    order.ID,
		SupplierID: supplier.ID,
		Price:      quote.Halalas,
		Notes:      quote.Notes,
	})
	if err != nil {
		if errors.Is(err, services.ErrOrderConflict) {
			return r.reply(ctx, chatID, services.OutboundMessage{Text: textDuplicateOffer})
		}
		return r.replyError(ctx, chatID, err)
	}
	return r.reply(ctx, chatID, quoteSubmittedMessage(order, offer))
}

// orderOpenForOffers reports whether a supplier can still quote the order.
// A racing decision is caught again inside the submission itself; this check
// only keeps the closed-order notice distinct from the duplicate-quote one.
func orderOpenForOffers(order domain.Order) bool {
	if !order.ExpiresAt.IsZero() && order.Expired(time.Now().UTC()) {
		return false
	}
	switch order.Status {
	case domain.OrderStatusNew, domain.OrderStatusActive:
		return true
	default:
		return false
	}
}

// supplierForActor resolves the supplier this actor may quote for, either as
// owner or as delegated staff.
func (r *Router) supplierForActor(ctx context.Context, actor domain.Actor) (domain.Supplier, error) {
	supplier, err := r.suppliers.FindByOwner(ctx, actor.ID)
	if err == nil {
		return supplier, nil
	}
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return domain.Supplier{}, err
	}
	return domain.Supplier{}, fmt.Errorf("bot: actor %s has no supplier", actor.ID)
}

func (r *Router) listOrders(ctx context.Context, chatID int64, actor domain.Actor) error {
	orders, err := r.orders.ListOrdersForBuyer(ctx, actor.ID, 10)
	if err != nil {
		return r.replyError(ctx, chatID, err)
	}
	return r.reply(ctx, chatID, ordersListMessage(orders))
}

func (r *Router) viewOrder(ctx context.Context, chatID int64, actor domain.Actor, orderID string) error {
	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return r.replyError(ctx, chatID, err)
	}
	if order.BuyerID != actor.ID {
		return r.reply(ctx, chatID, services.OutboundMessage{Text: textUnknownAction})
	}
	offers, err := r.orders.ListOffers(ctx, orderID)
	if err != nil {
		return r.replyError(ctx, chatID, err)
	}
	return r.reply(ctx, chatID, orderDetailsMessage(order, offers))
}

// promptCurrentStep renders the prompt and keyboard for the active draft's
// current step.
func (r *Router) promptCurrentStep(ctx context.Context, chatID int64, actor domain.Actor) error {
	draft, err := r.drafts.ActiveDraft(ctx, actor.ID)
	if err != nil {
		return r.replyError(ctx, chatID, err)
	}

	switch draft.Step {
	case services.StepSelectRegion:
		regions, err := r.catalog.ListActiveRegions(ctx)
		if err != nil {
			return r.replyError(ctx, chatID, err)
		}
		return r.reply(ctx, chatID, regionPrompt(regions))
	case services.StepSelectMake:
		makes, err := r.catalog.ListActiveMakes(ctx)
		if err != nil {
			return r.replyError(ctx, chatID, err)
		}
		return r.reply(ctx, chatID, makePrompt(makes))
	case services.StepSelectModel:
		models, err := r.catalog.ListActiveModels(ctx, draft.MakeID)
		if err != nil {
			return r.replyError(ctx, chatID, err)
		}
		return r.reply(ctx, chatID, modelPrompt(models))
	case services.StepSelectYearRange:
		return r.reply(ctx, chatID, yearRangePrompt())
	case services.StepSelectYear:
		return r.reply(ctx, chatID, yearPrompt(draft.YearFrom, draft.YearTo))
	case services.StepCollectItems:
		return r.reply(ctx, chatID, itemsPrompt())
	case services.StepReview:
		return r.reply(ctx, chatID, r.reviewMessage(ctx, draft))
	default:
		return r.reply(ctx, chatID, services.OutboundMessage{Text: textInternalError})
	}
}

func (r *Router) reviewMessage(ctx context.Context, draft services.Draft) services.OutboundMessage {
	vehicle := make([]string, 0, 3)
	if mk, err := r.catalog.GetMake(ctx, draft.MakeID); err == nil {
		vehicle = append(vehicle, mk.Name)
	}
	if draft.ModelID != "" {
		if model, err := r.catalog.GetModel(ctx, draft.ModelID); err == nil {
			vehicle = append(vehicle, model.Name)
		}
	}
	if draft.Year != 0 {
		vehicle = append(vehicle, fmt.Sprintf("%d", draft.Year))
	}
	return reviewPrompt(draft, strings.Join(vehicle, " "))
}

func (r *Router) reply(ctx context.Context, chatID int64, msg services.OutboundMessage) error {
	return r.messenger.SendMessage(ctx, chatID, msg)
}

// replyError translates workflow errors into user-facing notices. Anything
// unexpected is logged and reported generically.
func (r *Router) replyError(ctx context.Context, chatID int64, err error) error {
	var text string
	switch {
	case errors.Is(err, services.ErrDraftNotFound):
		text = textNoActiveDraft
	case errors.Is(err, services.ErrDraftLimitExceeded):
		text = textDraftLimit
	case errors.Is(err, services.ErrDraftInvalidInput), errors.Is(err, services.ErrDraftInvalidState):
		text = textInvalidSelection
	case errors.Is(err, services.ErrOrderNotFound):
		text = textOrderNotFound
	case errors.Is(err, services.ErrOrderInvalidState):
		text = textOrderClosed
	case errors.Is(err, services.ErrOrderForbidden):
		text = textUnknownAction
	case errors.Is(err, services.ErrOrderInvalidInput):
		text = textInvalidSelection
	default:
		requestctx.Logger(ctx).Error("bot: unexpected routing error",
			zap.Int64("chat_id", chatID), zap.Error(err))
		text = textInternalError
	}
	return r.reply(ctx, chatID, services.OutboundMessage{Text: text})
}
