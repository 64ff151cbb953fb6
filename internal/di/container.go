// Package di assembles the production object graph: Firestore-backed
// repositories, the service layer, and the supporting clients they need.
package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	domain "github.com/stylehive/api/internal/domain"
	"github.com/stylehive/api/internal/payments"
	"github.com/stylehive/api/internal/platform/auth"
	"github.com/stylehive/api/internal/platform/config"
	pfirestore "github.com/stylehive/api/internal/platform/firestore"
	"github.com/stylehive/api/internal/platform/jobs"
	platformstorage "github.com/stylehive/api/internal/platform/storage"
	"github.com/stylehive/api/internal/repositories"
	firestorerepo "github.com/stylehive/api/internal/repositories/firestore"
	"github.com/stylehive/api/internal/services"
)

// Services bundles the service-layer contracts the handlers rely upon.
type Services struct {
	Catalog services.CatalogService
	Cart    services.CartService
	Orders  services.OrderService
	Users   services.UserService
	System  services.SystemService
}

// Container wires repositories, services, and shared infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Services      Services
	Authenticator *auth.Authenticator

	logger *zap.Logger
	clock  func() time.Time
	build  services.BuildInfo
	signer platformstorage.Signer

	firestoreProvider *pfirestore.Provider
	firestoreClient   *firestore.Client
	pubsubClient      *pubsub.Client
	pubsubTopic       *pubsub.Topic
}

// ContainerOption customises container construction.
type ContainerOption func(*Container)

// WithLogger sets the logger used for service-level event logging.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBuildInfo records version metadata surfaced through health reports.
func WithBuildInfo(build services.BuildInfo) ContainerOption {
	return func(c *Container) {
		c.build = build
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) ContainerOption {
	return func(c *Container) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithStorageSigner sets the signer used for product image signed URLs.
// Without a signer the catalog serves raw object paths.
func WithStorageSigner(signer platformstorage.Signer) ContainerOption {
	return func(c *Container) {
		c.signer = signer
	}
}

// NewContainer constructs the runtime dependency graph from configuration.
// The returned container owns the Firestore and Pub/Sub clients; callers must
// Close it on shutdown.
func NewContainer(ctx context.Context, cfg config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config: cfg,
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
	client, err := c.firestoreProvider.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("di: initialise firestore client: %w", err)
	}
	c.firestoreClient = client

	productRepo, err := firestorerepo.NewProductRepository(c.firestoreProvider)
	if err != nil {
		return nil, fmt.Errorf("di: build product repository: %w", err)
	}
	cartRepo, err := firestorerepo.NewCartRepository(c.firestoreProvider)
	if err != nil {
		return nil, fmt.Errorf("di: build cart repository: %w", err)
	}
	orderRepo, err := firestorerepo.NewOrderRepository(c.firestoreProvider)
	if err != nil {
		return nil, fmt.Errorf("di: build order repository: %w", err)
	}
	userRepo, err := firestorerepo.NewUserRepository(c.firestoreProvider)
	if err != nil {
		return nil, fmt.Errorf("di: build user repository: %w", err)
	}
	addressRepo, err := firestorerepo.NewAddressRepository(c.firestoreProvider)
	if err != nil {
		return nil, fmt.Errorf("di: build address repository: %w", err)
	}
	paymentMethodRepo, err := firestorerepo.NewPaymentMethodRepository(c.firestoreProvider)
	if err != nil {
		return nil, fmt.Errorf("di: build payment method repository: %w", err)
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		return nil, fmt.Errorf("di: build firebase verifier: %w", err)
	}
	c.Authenticator = auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	pricing := domain.PricingConfig{
		TaxRate:               cfg.Pricing.TaxRate,
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		FlatShippingFee:       cfg.Pricing.FlatShippingFee,
	}

	catalogDeps := services.CatalogServiceDeps{
		Products:    productRepo,
		ImageBucket: cfg.Storage.ProductImagesBucket,
		Clock:       c.clock,
		Logger:      serviceEventLogger(c.logger.Named("catalog")),
	}
	if c.signer != nil {
		signedURLClient, err := platformstorage.NewClient(c.signer)
		if err != nil {
			return nil, fmt.Errorf("di: build signed url client: %w", err)
		}
		catalogDeps.Storage = signedURLClient
	}
	catalogService, err := services.NewCatalogService(catalogDeps)
	if err != nil {
		return nil, fmt.Errorf("di: build catalog service: %w", err)
	}
	c.Services.Catalog = catalogService

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Repository:      cartRepo,
		Products:        productRepo,
		Pricing:         pricing,
		Clock:           c.clock,
		DefaultCurrency: cfg.Pricing.DefaultCurrency,
		Logger:          serviceEventLogger(c.logger.Named("cart")),
	})
	if err != nil {
		return nil, fmt.Errorf("di: build cart service: %w", err)
	}
	c.Services.Cart = cartService

	orderDeps := services.OrderServiceDeps{
		Orders:   orderRepo,
		Pricing:  pricing,
		Clock:    c.clock,
		Currency: cfg.Pricing.DefaultCurrency,
		Logger:   serviceEventLogger(c.logger.Named("orders")),
	}
	if cfg.Features.EnableOrderEvents {
		publisher, err := c.buildOrderEventPublisher(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		orderDeps.Events = publisher
	}
	orderService, err := services.NewOrderService(orderDeps)
	if err != nil {
		return nil, fmt.Errorf("di: build order service: %w", err)
	}
	c.Services.Orders = orderService

	userDeps := services.UserServiceDeps{
		Users:          userRepo,
		Addresses:      addressRepo,
		PaymentMethods: paymentMethodRepo,
		Firebase:       firebaseVerifier,
		Clock:          c.clock,
		Logger:         serviceEventLogger(c.logger.Named("users")),
	}
	if strings.TrimSpace(cfg.PSP.StripeAPIKey) != "" {
		verifier, err := payments.NewStripePaymentMethodVerifier(payments.StripeConfig{
			APIKey:    cfg.PSP.StripeAPIKey,
			AccountID: cfg.PSP.StripeAccountID,
		})
		if err != nil {
			return nil, fmt.Errorf("di: build stripe payment verifier: %w", err)
		}
		userDeps.PaymentVerifier = verifier
	}
	userService, err := services.NewUserService(userDeps)
	if err != nil {
		return nil, fmt.Errorf("di: build user service: %w", err)
	}
	c.Services.Users = userService

	systemService, err := c.buildSystemService()
	if err != nil {
		return nil, err
	}
	c.Services.System = systemService

	return c, nil
}

// Firestore exposes the shared client for infrastructure that sits outside the
// service layer, such as the idempotency store.
func (c *Container) Firestore() *firestore.Client {
	if c == nil {
		return nil
	}
	return c.firestoreClient
}

// Close releases the Firestore and Pub/Sub clients held by the container.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}

	var errs []error
	if c.pubsubTopic != nil {
		c.pubsubTopic.Stop()
	}
	if c.pubsubClient != nil {
		if err := c.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if c.firestoreProvider != nil {
		if err := c.firestoreProvider.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close firestore provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) buildOrderEventPublisher(ctx context.Context, cfg config.PubSubConfig) (services.OrderEventPublisher, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("di: pubsub project id is required when order events are enabled")
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("di: initialise pubsub client: %w", err)
	}
	c.pubsubClient = client

	topic := client.Topic(cfg.OrderEventsTopic)
	c.pubsubTopic = topic

	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		return nil, fmt.Errorf("di: build order event publisher: %w", err)
	}
	return publisher, nil
}

func (c *Container) buildSystemService() (services.SystemService, error) {
	checks := []repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.firestoreClient.Collections(ctx)
				if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
					return err
				}
				return nil
			},
		},
	}

	if c.pubsubTopic != nil {
		topic := c.pubsubTopic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				exists, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, fmt.Errorf("di: build health repository: %w", err)
	}

	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            c.clock,
		Build:            c.build,
	})
	if err != nil {
		return nil, fmt.Errorf("di: build system service: %w", err)
	}
	return systemService, nil
}

func serviceEventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
