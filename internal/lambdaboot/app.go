package lambdaboot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/beanvault/wallpaper-ai/internal/api"
	"github.com/beanvault/wallpaper-ai/internal/blob"
	"github.com/beanvault/wallpaper-ai/internal/catalog"
	"github.com/beanvault/wallpaper-ai/internal/config"
	"github.com/beanvault/wallpaper-ai/internal/events"
	"github.com/beanvault/wallpaper-ai/internal/imaging"
	"github.com/beanvault/wallpaper-ai/internal/logging"
	"github.com/beanvault/wallpaper-ai/internal/pipeline"
	"github.com/beanvault/wallpaper-ai/internal/prompt"
	"github.com/beanvault/wallpaper-ai/internal/replicate"
	"github.com/beanvault/wallpaper-ai/internal/webhook"
)

// App is the fully wired service.
type App struct {
	Config    *config.Config
	Catalog   catalog.Store
	Blobs     blob.Store
	Generator *pipeline.Generator
	Upscaler  *pipeline.Upscaler
	Finalizer *pipeline.Finalizer
	Composer  prompt.Composer
	Router    http.Handler

	closers []func() error
}

// Build resolves secrets and constructs every component described by cfg.
// cfg must already be valid.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	awsCfg, err := InitAWS(ctx)
	if err != nil {
		return nil, err
	}
	if err := LoadSecrets(ctx, ssm.NewFromConfig(awsCfg), cfg); err != nil {
		return nil, err
	}
	return BuildWith(ctx, cfg, awsCfg)
}

// BuildWith is Build with an already loaded AWS config and resolved secrets.
func BuildWith(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (*App, error) {
	app := &App{Config: cfg}

	store, err := app.openCatalog(ctx, awsCfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Catalog = store

	s3Blobs := blob.NewS3Store(InitS3(awsCfg, cfg), cfg.Bucket, cfg.PublicBaseURL)
	app.Blobs = s3Blobs

	fetcher := imaging.NewHTTPFetcher()
	downscaler, err := NewDownscaler(cfg, fetcher)
	if err != nil {
		app.Close()
		return nil, err
	}

	var publisher pipeline.EventPublisher
	if cfg.EventBusName != "" {
		publisher = events.NewPublisher(eventbridge.NewFromConfig(awsCfg), cfg.EventBusName)
	}

	client := replicate.NewClient(cfg.ReplicateAPIToken, cfg.ReplicateBaseURL)
	app.Generator = pipeline.NewGenerator(client, cfg.GenerationModel, cfg.BaseURL)
	app.Upscaler = pipeline.NewUpscaler(client, cfg.UpscaleVersion, cfg.BaseURL, cfg.UpscaleAckTimeout)
	app.Finalizer = pipeline.NewFinalizer(pipeline.FinalizerDeps{
		Counter:    store,
		Catalog:    store,
		Blobs:      s3Blobs,
		PublicURL:  s3Blobs.URL,
		Fetcher:    fetcher,
		Downscaler: downscaler,
		Events:     publisher,
		FreeRatio:  cfg.FreeRatio,
	})

	if cfg.GeminiAPIKey != "" {
		composer, err := prompt.NewGeminiComposer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Composer = composer
	} else {
		log.Warn().Msg("Gemini API key not configured; generation requires an explicit prompt")
	}

	app.Router = api.NewRouter(api.Deps{
		Catalog:    store,
		Generator:  app.Generator,
		Composer:   app.Composer,
		Webhooks:   webhook.NewHandler(app.Upscaler, app.Finalizer, cfg.WebhookSecret),
		AdminToken: cfg.AdminToken,
	})
	return app, nil
}

func (a *App) openCatalog(ctx context.Context, awsCfg aws.Config) (catalog.Store, error) {
	cfg := a.Config
	var store catalog.Store
	switch cfg.CatalogBackend {
	case config.BackendSQLite:
		s, err := catalog.OpenSQLStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = s
	case config.BackendDynamo:
		store = catalog.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
	}
	a.closers = append(a.closers, store.Close)

	if cfg.RedisAddr == "" {
		return store, nil
	}
	rdb, err := InitRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	return catalog.NewCachedStore(store, catalog.NewRedisCache(rdb), cfg.CacheTTL), nil
}

// NewDownscaler returns the imgproxy-backed downscaler when a proxy URL is
// configured and the local resizer otherwise.
func NewDownscaler(cfg *config.Config, fetcher imaging.Fetcher) (imaging.Downscaler, error) {
	if cfg.ImgproxyURL == "" {
		return imaging.NewLocalDownscaler(cfg.DownscaleWidth, cfg.DownscaleHeight), nil
	}
	proxy, err := imaging.NewProxy(cfg.ImgproxyURL, cfg.ImgproxyKey, cfg.ImgproxySalt)
	if err != nil {
		return nil, err
	}
	return imaging.NewProxyDownscaler(proxy, fetcher, cfg.DownscaleWidth, cfg.DownscaleHeight), nil
}

// StartupLogger describes the wired app without exposing secrets.
func (a *App) StartupLogger(s *logging.StartupLogger) *logging.StartupLogger {
	cfg := a.Config
	s.Bucket("wallpapers", cfg.Bucket).
		Endpoint("replicate", cfg.ReplicateBaseURL).
		Feature("cache", cfg.RedisAddr != "").
		Feature("events", cfg.EventBusName != "").
		Feature("imgproxy", cfg.ImgproxyURL != "").
		Feature("promptComposer", a.Composer != nil).
		Feature("webhookSignature", cfg.WebhookSecret != "").
		Feature("adminToken", cfg.AdminToken != "").
		Config("catalogBackend", cfg.CatalogBackend).
		Config("baseUrl", cfg.BaseURL).
		Config("generationModel", cfg.GenerationModel).
		Config("upscaleAckTimeout", cfg.UpscaleAckTimeout.String())

	switch cfg.CatalogBackend {
	case config.BackendDynamo:
		s.Table("catalog", cfg.DynamoTable)
	case config.BackendSQLite:
		s.Table("catalog", cfg.SQLitePath)
	}
	if cfg.S3Endpoint != "" {
		s.Endpoint("s3", cfg.S3Endpoint)
	}
	if cfg.ImgproxyURL != "" {
		s.Endpoint("imgproxy", cfg.ImgproxyURL)
	}
	if cfg.RedisAddr != "" {
		s.Endpoint("redis", cfg.RedisAddr)
	}
	if cfg.EventBusName != "" {
		s.Config("eventBus", cfg.EventBusName)
	}
	for label, path := range map[string]string{
		"replicateToken": cfg.ReplicateTokenParam,
		"webhookSecret":  cfg.WebhookSecretParam,
		"geminiKey":      cfg.GeminiKeyParam,
	} {
		if path != "" {
			s.SSMParam(label, path)
		}
	}
	return s
}

// Close releases the catalog and cache connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
