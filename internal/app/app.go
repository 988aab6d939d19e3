package app

import (
	"fmt"
	"topup-api/internal/api"
	"topup-api/internal/config"
	"topup-api/internal/database"
	"topup-api/internal/services"
	"topup-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// App owns every long-lived dependency. It is built once at startup and
// closed on shutdown.
type App struct {
	Config   *config.Config
	Database *database.Database
	Events   services.EventPublisher
	Handler  *api.Handler
	Router   *gin.Engine
}

// New connects to the stores and wires the services
func New(cfg *config.Config) (*App, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Database: db}
	a.Events = newEventPublisher(cfg)

	handler, err := newHandler(cfg, db, a.Events)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Handler = handler

	gin.SetMode(cfg.Mode)
	a.Router = gin.Default()
	api.SetupRoutes(a.Router, handler)

	return a, nil
}

func newEventPublisher(cfg *config.Config) services.EventPublisher {
	if len(cfg.KafkaBrokers) == 0 {
		logging.Infof("KAFKA_BROKERS not set, transaction events disabled")
		return services.NoopPublisher{}
	}
	logging.Infof("Publishing transaction events to %s", cfg.KafkaTopic)
	return services.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}

func newHandler(cfg *config.Config, db *database.Database, events services.EventPublisher) (*api.Handler, error) {
	store := services.NewTransactionStore(db.DB)
	ledger := services.NewWalletLedger(db.DB)
	siteConfig := services.NewSiteConfigService(db.DB, db.Redis)
	storage := services.NewStorageService(cfg.StorageURL, cfg.StorageServiceKey, cfg.StorageBucket)
	renderer := services.NewImageInvoiceRenderer(cfg.StoreName, cfg.LogoURL)
	notifier := services.NewTelegramNotifier(cfg.TelegramAPIURL, cfg.TelegramBotToken)
	mailer := services.NewBrevoService(cfg.BrevoAPIKey, cfg.BrevoFromEmail, cfg.BrevoFromName, cfg.StoreName, cfg.BrevoBaseURL)
	replay := services.NewReplayProtection(db.Redis, 0)
	ids := services.NewIDGenerator()

	intake, err := services.NewPaymentIntake(cfg, store, storage, renderer, notifier, events, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intake: %w", err)
	}

	return &api.Handler{
		Config:     cfg,
		Intake:     intake,
		Reconciler: services.NewReconciler(cfg, store, ledger, siteConfig, mailer, notifier, replay, events),
		SiteConfig: siteConfig,
		Store:      store,
		Ledger:     ledger,
		Purchase:   services.NewWalletPurchase(cfg, db.DB, store, ledger, notifier, events, ids),
	}, nil
}

// Close releases the stores and flushes pending events
func (a *App) Close() error {
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			logging.Errorf("Failed to close event publisher: %v", err)
		}
	}
	if a.Database != nil {
		return a.Database.Close()
	}
	return nil
}
