package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-redis/redis/v8"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/orderflow/api/internal/handlers"
	"github.com/orderflow/api/internal/payments"
	"github.com/orderflow/api/internal/platform/auth"
	"github.com/orderflow/api/internal/platform/config"
	"github.com/orderflow/api/internal/platform/events"
	pfirestore "github.com/orderflow/api/internal/platform/firestore"
	"github.com/orderflow/api/internal/platform/idempotency"
	"github.com/orderflow/api/internal/platform/observability"
	"github.com/orderflow/api/internal/platform/textutil"
	"github.com/orderflow/api/internal/repositories"
	repofs "github.com/orderflow/api/internal/repositories/firestore"
	"github.com/orderflow/api/internal/repositories/memory"
	"github.com/orderflow/api/internal/repositories/postgres"
	"github.com/orderflow/api/internal/services"
)

const (
	instrumentationName = "github.com/orderflow/api"
	checkoutRateLimit   = 5
	checkoutRateWindow  = time.Minute
	storeOpenTimeout    = 30 * time.Second
	paymentsLoggerName  = "payments"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Pricing   services.PricingService
	Inventory services.InventoryService
	Cart      services.CartService
	Checkout  services.CheckoutService
	Orders    services.OrderService
	System    services.SystemService
}

// Container wires repositories, services and transport for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Idempotency  idempotency.Store
	Router       http.Handler

	logger  *zap.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func(ctx context.Context) error
}

// Option customises container construction. Tests use them to inject fakes.
type Option func(*options)

type options struct {
	registry    repositories.Registry
	publisher   services.EventPublisher
	verifier    auth.Verifier
	build       services.BuildInfo
	clock       func() time.Time
	extraProbes []repositories.DependencyProbe
}

// WithRegistry supplies a ready repository registry instead of opening the configured store.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithEventPublisher overrides the configured event transport.
func WithEventPublisher(p services.EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithVerifier overrides the bearer token verifier.
func WithVerifier(v auth.Verifier) Option {
	return func(o *options) { o.verifier = v }
}

// WithBuildInfo sets the metadata reported by the health endpoints.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) { o.build = info }
}

// WithClock overrides the wall clock used by services.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithHealthProbes adds readiness probes such as the secret manager.
func WithHealthProbes(probes ...repositories.DependencyProbe) Option {
	return func(o *options) { o.extraProbes = append(o.extraProbes, probes...) }
}

// NewContainer constructs the runtime dependencies from cfg.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *Container, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.build.StartedAt.IsZero() {
		o.build.StartedAt = o.clock().UTC()
	}
	if o.build.Environment == "" {
		o.build.Environment = cfg.Auth.Environment
	}

	c := &Container{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	// Created lazily so the store and the idempotency layer share one client.
	var fsProvider *pfirestore.Provider
	firestoreProvider := func() *pfirestore.Provider {
		if fsProvider == nil {
			fsProvider = pfirestore.NewProvider(cfg.Firestore)
			c.addCloser("firestore", fsProvider.Close)
		}
		return fsProvider
	}

	var redisClient *redis.Client
	if cfg.Idempotency.Store == "redis" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		c.addCloser("redis", func(context.Context) error { return redisClient.Close() })
		o.extraProbes = append(o.extraProbes, repositories.DependencyProbe{
			Name: "redis",
			Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	reg := o.registry
	if reg == nil {
		reg, err = openRegistry(ctx, cfg, logger, firestoreProvider, o.extraProbes)
		if err != nil {
			return nil, err
		}
		c.addCloser("store", reg.Close)
	}
	c.Repositories = reg

	publisher := o.publisher
	if publisher == nil {
		publisher, err = c.openPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	svc, err := buildServices(reg, publisher, logger, o.clock, o.build)
	if err != nil {
		return nil, err
	}
	c.Services = svc

	verifier := o.verifier
	if verifier == nil {
		verifier, err = buildVerifier(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	authn := auth.NewAuthenticator(verifier)

	switch cfg.Idempotency.Store {
	case "redis":
		c.Idempotency = idempotency.NewRedisStore(redisClient)
	case "firestore":
		client, err := firestoreProvider().Client(ctx)
		if err != nil {
			return nil, fmt.Errorf("idempotency firestore client: %w", err)
		}
		c.Idempotency = idempotency.NewFirestoreStore(client)
	default:
		c.Idempotency = idempotency.NewMemoryStore()
	}
	guard := idempotency.Middleware(c.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
		idempotency.WithOptionalKey(),
	)

	checkoutOpts := []handlers.CheckoutOption{
		handlers.WithCheckoutMiddlewares(guard),
		handlers.WithCheckoutRateLimit(checkoutRateLimit, checkoutRateWindow, o.clock),
	}
	paymentsLogger := payments.StripeLogger(observability.NewEventLogger(logger.Named(paymentsLoggerName)))
	var webhookProcessor handlers.PaymentWebhookProcessor
	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		provider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: key,
			Logger: paymentsLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		checkoutOpts = append(checkoutOpts, handlers.WithCheckoutPayments(provider, svc.Orders))
	}
	if secret := strings.TrimSpace(cfg.PSP.StripeWebhookSecret); secret != "" {
		processor, err := payments.NewStripeWebhookProcessor(secret, paymentApplier(svc.Orders), paymentsLogger)
		if err != nil {
			return nil, fmt.Errorf("build stripe webhook processor: %w", err)
		}
		webhookProcessor = processor
	}

	health := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(svc.System),
		handlers.WithHealthBuildInfo(o.build),
		handlers.WithHealthClock(o.clock),
	)
	traceProject := cfg.Firestore.ProjectID
	c.Router = handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(traceProject),
			observability.RequestLoggerMiddleware(traceProject),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithCartRoutes(handlers.NewCartHandlers(authn, svc.Cart).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(authn, svc.Checkout, checkoutOpts...).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(authn, svc.Orders).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(authn, svc.Orders, svc.Inventory).Routes),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(webhookProcessor).Routes),
		handlers.WithInternalRoutes(handlers.NewInternalHandlers(authn, svc.Orders, svc.Cart, handlers.ExpirySettings{
			PendingOrderTTL: cfg.Orders.PendingTTL,
			CartHoldTTL:     cfg.Orders.CartHoldTTL,
			BatchSize:       cfg.Orders.ExpireBatchSize,
		}).Routes),
	)

	return c, nil
}

// Close releases clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		closer := c.closers[i]
		if err := closer.close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", closer.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) addCloser(name string, fn func(ctx context.Context) error) {
	c.closers = append(c.closers, namedCloser{name: name, close: fn})
}

func openRegistry(ctx context.Context, cfg config.Config, logger *zap.Logger, firestoreProvider func() *pfirestore.Provider, probes []repositories.DependencyProbe) (repositories.Registry, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		store := memory.NewStore()
		if path := strings.TrimSpace(cfg.Store.SeedFile); path != "" {
			seed, err := memory.LoadSeedFile(path)
			if err != nil {
				return nil, fmt.Errorf("load seed file: %w", err)
			}
			if err := store.Apply(ctx, seed, time.Now().UTC()); err != nil {
				return nil, fmt.Errorf("apply seed file: %w", err)
			}
		}
		return store, nil
	case config.StoreDriverPostgres:
		openCtx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
		defer cancel()
		store, err := postgres.Open(openCtx, postgres.Config{
			DSN:         cfg.Postgres.DSN,
			MaxConns:    cfg.Postgres.MaxConns,
			AutoMigrate: cfg.Postgres.AutoMigrate,
		}, logger.Named("migrations"), probes...)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.StoreDriverFirestore:
		store, err := repofs.NewStore(firestoreProvider(), probes...)
		if err != nil {
			return nil, fmt.Errorf("open firestore store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func (c *Container) openPublisher(ctx context.Context, cfg config.Config) (services.EventPublisher, error) {
	switch cfg.Events.Driver {
	case config.EventsDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		c.addCloser("pubsub", func(context.Context) error { return client.Close() })
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.PubSub.Topic))
		if err != nil {
			return nil, err
		}
		c.addCloser("pubsub topic", func(context.Context) error { return publisher.Close() })
		return publisher, nil
	case config.EventsDriverKafka:
		publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			return nil, err
		}
		c.addCloser("kafka", func(context.Context) error { return publisher.Close() })
		return publisher, nil
	default:
		return events.NewLogPublisher(c.logger.Named("events")), nil
	}
}

func buildServices(reg repositories.Registry, publisher services.EventPublisher, logger *zap.Logger, clock func() time.Time, build services.BuildInfo) (Services, error) {
	var svc Services
	newID := func() string { return ulid.Make().String() }

	pricing, err := services.NewPricingService(services.PricingServiceDeps{
		Promotions: services.PromotionsFromCatalog(reg.Catalog()),
		Logger:     observability.NewEventLogger(logger.Named("pricing")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}
	svc.Pricing = pricing

	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory:  reg.Inventory(),
		UnitOfWork: reg,
		Events:     publisher,
		Clock:      clock,
		Logger:     observability.NewEventLogger(logger.Named("inventory")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventory

	cart, err := services.NewCartService(services.CartServiceDeps{
		Carts:       reg.Carts(),
		Catalog:     reg.Catalog(),
		Inventory:   inventory,
		Pricing:     pricing,
		UnitOfWork:  reg,
		Sanitizer:   textutil.NewSanitizer(),
		Clock:       clock,
		Logger:      observability.NewEventLogger(logger.Named("cart")),
		IDGenerator: newID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:       reg.Carts(),
		Catalog:     reg.Catalog(),
		Orders:      reg.Orders(),
		Inventory:   inventory,
		Pricing:     pricing,
		UnitOfWork:  reg,
		Events:      publisher,
		Meter:       otel.Meter(instrumentationName),
		Tracer:      otel.Tracer(instrumentationName),
		Clock:       clock,
		IDGenerator: newID,
		Logger:      observability.NewEventLogger(logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Inventory:  inventory,
		UnitOfWork: reg,
		Events:     publisher,
		Clock:      clock,
		Logger:     observability.NewEventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return svc, nil
}

// buildVerifier accepts Firebase ID tokens and, when a dev signing key is set, locally issued HS256 tokens.
func buildVerifier(ctx context.Context, cfg config.Config) (auth.Verifier, error) {
	var chain auth.ChainVerifier
	if cfg.Auth.FirebaseProjectID != "" {
		firebase, err := auth.NewFirebaseVerifier(ctx, auth.FirebaseConfig{
			ProjectID:       cfg.Auth.FirebaseProjectID,
			CredentialsFile: cfg.Auth.FirebaseCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("build firebase verifier: %w", err)
		}
		chain = append(chain, firebase)
	}
	if cfg.Auth.DevSigningKey != "" {
		dev, err := auth.NewHS256Verifier(auth.HS256Config{
			Secret: cfg.Auth.DevSigningKey,
			Issuer: cfg.Auth.DevIssuer,
		})
		if err != nil {
			return nil, fmt.Errorf("build dev token verifier: %w", err)
		}
		chain = append(chain, dev)
	}
	if len(chain) == 0 {
		return nil, errors.New("no token verifier configured")
	}
	return chain, nil
}

// paymentApplier routes verified PSP updates to the order service.
func paymentApplier(orders services.OrderService) payments.PaymentStatusApplier {
	return func(ctx context.Context, update payments.PaymentUpdate) error {
		_, err := orders.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
			OrderID:   update.OrderID,
			Status:    string(update.Status),
			Reference: update.Reference,
		})
		return err
	}
}
