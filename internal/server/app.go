// Package server wires the clouddrive components together and runs the HTTP
// API, the gRPC health endpoint and the token janitor until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/dmitrijs2005/clouddrive/internal/server/config"
	"github.com/dmitrijs2005/clouddrive/internal/server/folderlock"
	"github.com/dmitrijs2005/clouddrive/internal/server/httpapi"
	"github.com/dmitrijs2005/clouddrive/internal/server/metrics"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
	"github.com/dmitrijs2005/clouddrive/internal/server/notify"
	"github.com/dmitrijs2005/clouddrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/clouddrive/internal/server/services"
	"github.com/dmitrijs2005/clouddrive/internal/server/storage"
	"github.com/dmitrijs2005/clouddrive/internal/server/tokens"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/clouddrive/internal/server/grpc"
)

const (
	dbConnectTimeout = 30 * time.Second
	purgeInterval    = 10 * time.Minute
	mailTimeout      = 10 * time.Second
	mailInflight     = 64
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  redis.UniversalClient
	mailer notify.Dispatcher
	tokens *tokens.Manager
	http   *httpapi.Server
	grpc   *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.New(c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := openDB(ctx, c.DatabaseDSN, dbConnectTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}
	if err := app.wire(ctx, repomanager.NewPostgresRepositoryManager()); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

// wire builds every component on top of the open database.
func (app *App) wire(ctx context.Context, rm repomanager.RepositoryManager) error {
	c := app.config

	if err := rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	if c.TokenStore == config.TokenStoreRedis || c.Notifier == config.NotifierRedis {
		app.redis = newRedis(c.RedisAddr)
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis init error: %w", err)
		}
	}

	var store tokens.Store = rm.Tokens(app.db)
	if c.TokenStore == config.TokenStoreRedis {
		store = tokens.NewRedisStore(app.redis)
	}
	app.tokens = tokens.NewManager(store, tokens.Options{
		SecretKey:   c.SecretKey,
		DownloadTTL: c.DownloadTokenValidityDuration,
		VideoTTL:    c.VideoTokenValidityDuration,
		LinkTTL:     c.PublicLinkValidityDuration,
	})
	app.tokens.SetObserver(metrics.RecordTokenValidation[models.TokenKind])

	backend, err := storage.New(ctx, c, rm.Files(app.db), rm.Chunks(app.db), app.logger)
	if err != nil {
		return fmt.Errorf("storage init error: %w", err)
	}

	mailer, err := app.newMailer()
	if err != nil {
		return fmt.Errorf("notifier init error: %w", err)
	}
	app.mailer = notify.Async(mailer, app.logger, mailTimeout, mailInflight)

	locks := folderlock.New(rm.Folders(app.db))

	router := httpapi.NewRouter(httpapi.Deps{
		Chunks:       services.NewChunkService(app.db, rm, backend, app.tokens, locks, app.logger),
		Files:        services.NewFileService(app.db, rm, backend, app.tokens, locks, app.mailer),
		Folders:      services.NewFolderService(app.db, rm, locks),
		SecretKey:    c.SecretKey,
		VideoTTL:     c.VideoTokenValidityDuration,
		CookieSecure: c.CookieSecure,
		Logger:       app.logger,
	})
	app.http = httpapi.NewServer(c.EndpointAddrHTTP, router, app.logger)
	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, app.logger, c.SecretKey)

	app.logger.Info(ctx, "components ready", "storage", backend.Type(), "token_store", c.TokenStore, "notifier", c.Notifier)
	return nil
}

func (app *App) newMailer() (notify.Dispatcher, error) {
	switch app.config.Notifier {
	case config.NotifierLog, "":
		return notify.NewLogDispatcher(app.logger), nil
	case config.NotifierRedis:
		return notify.NewRedisDispatcher(app.redis, notify.DefaultQueueKey), nil
	case config.NotifierNATS:
		d, err := notify.ConnectNATS(app.config.NATSURL)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown notifier %q", app.config.Notifier)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runJanitor purges expired tokens until ctx is done.
func (app *App) runJanitor(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := app.tokens.Purge(ctx)
			if err != nil {
				app.logger.Warn(ctx, "token purge failed", "error", err)
				continue
			}
			metrics.RecordTokensPurged(n)
			if n > 0 {
				app.logger.Info(ctx, "expired tokens purged", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.http.Run(gctx) })
	g.Go(func() error { return app.grpc.Run(gctx) })
	g.Go(func() error { return app.runJanitor(gctx, purgeInterval) })

	err := g.Wait()
	app.close(context.WithoutCancel(ctx))
	return err
}

func (app *App) close(ctx context.Context) {
	if app.mailer != nil {
		if err := app.mailer.Close(); err != nil {
			app.logger.Warn(ctx, "mailer close", "error", err)
		}
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
	app.logger.Info(ctx, "App stopped")
}
