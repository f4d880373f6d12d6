package di

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tashaleeh/api/internal/bot"
	"github.com/tashaleeh/api/internal/platform/config"
	"github.com/tashaleeh/api/internal/repositories"
	"github.com/tashaleeh/api/internal/services"
)

// Services bundles the service-layer contracts that the transport layers rely
// upon. Concrete implementations are assembled in NewContainer.
type Services struct {
	Drafts   services.DraftService
	Orders   services.OrderService
	Notifier services.Notifier
}

// Deps carries the infrastructure collaborators the container cannot build
// itself: persistence, outbound messaging, and event publishing.
type Deps struct {
	Registry  repositories.Registry
	Messenger services.Messenger
	Callbacks bot.CallbackAnswerer
	Events    services.OrderEventPublisher
	Logger    *zap.Logger
}

// Container wires repositories, services, and the update router for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Bot          *bot.Router
}

// NewContainer constructs the runtime dependency graph.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("di: repositories registry is required")
	}
	if deps.Messenger == nil {
		return nil, errors.New("di: messenger is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	notifier, err := services.NewNotificationService(services.NotificationServiceDeps{
		Messenger:   deps.Messenger,
		Actors:      deps.Registry.Actors(),
		Suppliers:   deps.Registry.Suppliers(),
		Catalog:     deps.Registry.Catalog(),
		Concurrency: cfg.Workflow.FanOutConcurrency,
		Logger:      eventLogger(logger.Named("notify")),
	})
	if err != nil {
		return nil, fmt.Errorf("di: build notification service: %w", err)
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          deps.Registry.Orders(),
		Offers:          deps.Registry.Offers(),
		Suppliers:       deps.Registry.Suppliers(),
		Catalog:         deps.Registry.Catalog(),
		Notifier:        notifier,
		Events:          deps.Events,
		OrderTTL:        cfg.Workflow.OrderTTL,
		CodeRetryBudget: cfg.Workflow.CodeRetryBudget,
		Logger:          eventLogger(logger.Named("orders")),
	})
	if err != nil {
		return nil, fmt.Errorf("di: build order service: %w", err)
	}

	draftService, err := services.NewDraftService(services.DraftServiceDeps{
		Catalog:   deps.Registry.Catalog(),
		MaxDrafts: cfg.Workflow.MaxDraftsPerActor,
		Logger:    eventLogger(logger.Named("drafts")),
	})
	if err != nil {
		return nil, fmt.Errorf("di: build draft service: %w", err)
	}

	router, err := bot.NewRouter(bot.RouterDeps{
		Drafts:    draftService,
		Orders:    orderService,
		Actors:    deps.Registry.Actors(),
		Catalog:   deps.Registry.Catalog(),
		Suppliers: deps.Registry.Suppliers(),
		Messenger: deps.Messenger,
		Callbacks: deps.Callbacks,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build update router: %w", err)
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services: Services{
			Drafts:   draftService,
			Orders:   orderService,
			Notifier: notifier,
		},
		Bot: router,
	}, nil
}

// Close releases repository clients and any other held resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

// eventLogger adapts a zap logger to the services' structured event callback.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("workflow log", zFields...)
	}
}
