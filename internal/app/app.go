// -----------------------------------------------------------------------
// Application wiring - builds and owns every component
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/penmanapp/penman/internal/common"
	"github.com/penmanapp/penman/internal/dedup"
	"github.com/penmanapp/penman/internal/handlers"
	"github.com/penmanapp/penman/internal/interfaces"
	"github.com/penmanapp/penman/internal/mode"
	"github.com/penmanapp/penman/internal/pipeline"
	"github.com/penmanapp/penman/internal/queue"
	"github.com/penmanapp/penman/internal/services/artifacts"
	"github.com/penmanapp/penman/internal/services/events"
	"github.com/penmanapp/penman/internal/services/imagegen"
	"github.com/penmanapp/penman/internal/services/llm"
	"github.com/penmanapp/penman/internal/services/mailer"
	"github.com/penmanapp/penman/internal/services/usage"
	badgerstorage "github.com/penmanapp/penman/internal/storage/badger"
	"github.com/penmanapp/penman/internal/status"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB *badgerstorage.BadgerDB

	EventService interfaces.EventService

	JobStorage      interfaces.JobStorage
	LockStorage     interfaces.LockStorage
	AssetStorage    interfaces.AssetStorage
	ArtifactStorage interfaces.ArtifactStorage
	UsageStorage    interfaces.UsageStorage

	Guard          *dedup.Guard
	QueueManager   *queue.Manager
	Generator      *llm.Generator
	ImageService   *imagegen.Service
	ArtifactSvc    *artifacts.Service
	Mailer         *mailer.Service
	UsageService   *usage.Service
	Executor       *pipeline.Executor
	ModeController *mode.Controller
	Distributor    *status.Distributor

	// HTTP handlers
	APIHandler    *handlers.APIHandler
	JobHandler    *handlers.JobHandler
	ModeHandler   *handlers.ModeHandler
	StatusHandler *handlers.StatusHandler
	WSHandler     *handlers.WebSocketHandler
}

// New builds the application from configuration. Components are wired
// bottom-up: storage, queue, pipeline, execution mode, status distribution,
// then handlers.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	db, err := badgerstorage.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.DB = db

	a.EventService = events.NewService(logger)

	a.JobStorage = badgerstorage.NewJobStorage(db, logger)
	a.LockStorage = badgerstorage.NewLockStorage(db, logger)
	a.AssetStorage = badgerstorage.NewAssetStorage(db, logger)
	a.ArtifactStorage = badgerstorage.NewArtifactStorage(db, logger)
	a.UsageStorage = badgerstorage.NewUsageStorage(db, logger)

	a.Guard = dedup.NewGuard(a.LockStorage, cfg.DedupTTLDuration(), logger)

	a.QueueManager = queue.NewManager(a.JobStorage, a.Guard, a.EventService, pipeline.StageInitialising, logger)

	a.Generator, err = llm.NewGenerator(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM generator: %w", err)
	}

	// Image generation is optional: without a Gemini key, jobs requesting an
	// image fail at that stage with a clear error.
	var imageGen interfaces.ImageGenerator
	a.ImageService, err = imagegen.NewService(ctx, &cfg.Gemini, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Image generation disabled")
		imageGen = unavailableImageGenerator{}
	} else {
		imageGen = a.ImageService
	}

	a.ArtifactSvc = artifacts.NewService(a.ArtifactStorage, logger)
	a.Mailer = mailer.NewService(&cfg.SMTP, logger)
	a.UsageService = usage.NewService(a.UsageStorage, logger)

	a.Executor = pipeline.NewExecutor(
		a.QueueManager,
		a.Generator,
		imageGen,
		a.AssetStorage,
		a.ArtifactSvc,
		a.Mailer,
		a.UsageService,
		cfg.StageTimeoutDuration(),
		logger,
	)

	a.ModeController = mode.NewController(
		a.QueueManager,
		a.Executor,
		a.EventService,
		cfg.Scheduler.Schedule,
		cfg.Scheduler.Automatic,
		common.ParseDurationOr(cfg.Status.AutomaticPollInterval, 0),
		common.ParseDurationOr(cfg.Status.ManualPollInterval, 0),
		logger,
	)
	a.QueueManager.SetExecutionPolicy(a.ModeController)

	push := status.NewPushAdapter(a.QueueManager, a.EventService, common.ParseDurationOr(cfg.Status.ThrottleInterval, 0), logger)
	poll := status.NewPollAdapter(a.QueueManager, a.ModeController.PollInterval(), common.ParseDurationOr(cfg.Status.HiddenGracePeriod, 0), logger)
	a.Distributor = status.NewDistributor(push, poll, logger)

	a.APIHandler = handlers.NewAPIHandler(logger)
	a.JobHandler = handlers.NewJobHandler(a.QueueManager, a.ModeController, &cfg.Queue, logger)
	a.ModeHandler = handlers.NewModeHandler(a.ModeController, a.Distributor, logger)
	a.StatusHandler = handlers.NewStatusHandler(a.QueueManager, a.ModeController, logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Distributor, logger)

	return a, nil
}

// Start performs startup recovery and begins the execution mode controller
func (a *App) Start(ctx context.Context) error {
	if _, err := a.QueueManager.RecoverOrphans(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}
	if _, err := a.Guard.PurgeExpired(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to purge expired dedup locks")
	}

	if err := a.ModeController.Start(); err != nil {
		return err
	}

	if err := a.EventService.Publish(ctx, interfaces.Event{Type: interfaces.EventServerStarted}); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to publish startup event")
	}
	return nil
}

// Close shuts components down in reverse dependency order
func (a *App) Close() error {
	a.ModeController.Stop()
	a.Distributor.UnsubscribeAll()

	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close event service")
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}

// unavailableImageGenerator stands in when no image provider is configured
type unavailableImageGenerator struct{}

func (unavailableImageGenerator) GenerateImage(ctx context.Context, prompt string) (*interfaces.GeneratedImage, error) {
	return nil, fmt.Errorf("image generation is not configured")
}
