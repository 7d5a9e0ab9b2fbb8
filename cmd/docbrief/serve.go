package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/docbrief/docbrief/internal/config"
	larkpkg "github.com/docbrief/docbrief/internal/lark"
	"github.com/docbrief/docbrief/internal/logger"
	"github.com/docbrief/docbrief/internal/pipeline"
	"github.com/docbrief/docbrief/internal/server"
	"github.com/docbrief/docbrief/internal/stager"
	"github.com/docbrief/docbrief/internal/storage"
	"github.com/docbrief/docbrief/internal/storage/providers/gcs"
	"github.com/docbrief/docbrief/internal/storage/providers/localfs"
	"github.com/docbrief/docbrief/internal/understanding"
	"github.com/docbrief/docbrief/internal/webhook"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStore,
			provideLarkClient,
			provideUnderstandingClient,
			provideDetector,
			provideStager,
			provideOrchestrator,
			provideServerHandler(provideWebhookHandler),
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(cfg config.Config) (storage.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Provider)) {
	case "", "local":
		return localfs.New(cfg.Storage.DataRoot)
	case "gcs":
		return gcs.New(context.Background(), cfg.Storage.Bucket)
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Storage.Provider)
	}
}

func provideLarkClient(log *slog.Logger, cfg config.Config) (*larkpkg.Client, error) {
	return larkpkg.New(log, cfg.Lark.AppID, cfg.Lark.AppSecret, cfg.Lark.Region)
}

func provideUnderstandingClient(log *slog.Logger, cfg config.Config) (*understanding.Client, error) {
	u := cfg.Understanding
	return understanding.NewClient(log, u.BaseURL, u.APIKey, u.Model, u.Timeout())
}

func provideDetector(cfg config.Config) *pipeline.Detector {
	return pipeline.NewDetector(cfg.Pipeline.TriggerPhrases)
}

func provideStager(log *slog.Logger, cfg config.Config, store storage.Provider, client *larkpkg.Client, detector *pipeline.Detector) *stager.Stager {
	return stager.New(log, store, client, cfg.Storage.Prefix, cfg.Pipeline.FileExtension, detector.Hint())
}

func provideOrchestrator(log *slog.Logger, cfg config.Config, store storage.Provider, client *larkpkg.Client, summarizer *understanding.Client) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(log, client, client, client, store, summarizer, cfg.Storage.Prefix, cfg.Pipeline.FileExtension)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, client *larkpkg.Client, fileStager *stager.Stager, detector *pipeline.Detector, orchestrator *pipeline.Orchestrator) *webhook.Handler {
	return webhook.NewHandler(log, cfg.Lark.VerificationToken, client, fileStager, detector, orchestrator)
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config.Server.Addr, params.Handlers)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
