package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/parleychat/parley/pkg/parley/auth"
	"github.com/parleychat/parley/pkg/parley/config"
	"github.com/parleychat/parley/pkg/parley/database"
	"github.com/parleychat/parley/pkg/parley/logging"
	"github.com/parleychat/parley/pkg/parley/models"
	"github.com/parleychat/parley/pkg/parley/notifications"
	"github.com/parleychat/parley/pkg/parley/realtime"
	"github.com/parleychat/parley/pkg/parley/server"
	"github.com/parleychat/parley/pkg/parley/uploads"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	_ "github.com/parleychat/parley/api/swagger"
)

// @title Parley API
// @version 1.0
// @description Chat backend with direct messages, groups, uploads and push notifications.

// @contact.name Parley Support
// @contact.url https://github.com/parleychat/parley

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	app := &cli.App{
		Name:  "parley-server",
		Usage: "chat backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"PARLEY_CONFIG"},
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and WebSocket server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("parley-server failed")
	}
}

// bootstrap loads configuration, sets up logging and opens the migrated database
func bootstrap(c *cli.Context) (*config.Config, *gorm.DB, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup, err := logging.Setup(logging.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		ErrorFile: cfg.Logging.ErrorFile,
		SentryDSN: cfg.Logging.SentryDSN,
		Env:       cfg.Environment,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("setup logging: %w", err)
	}

	db, err := database.Open(database.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		database.Close(db)
		cleanup()
		return nil, nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	logrus.Info("Database migrations completed")

	return cfg, db, func() {
		database.Close(db)
		cleanup()
	}, nil
}

func migrate(c *cli.Context) error {
	_, _, cleanup, err := bootstrap(c)
	if err != nil {
		return err
	}
	cleanup()
	return nil
}

func serve(c *cli.Context) error {
	cfg, db, cleanup, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer cleanup()

	auth.Configure(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pusher notifications.Pusher
	if cfg.Push.Enabled {
		fcm, err := notifications.NewFCMPusher(ctx, cfg.Push.ProjectID, cfg.Push.CredentialsFile)
		if err != nil {
			return fmt.Errorf("init push notifications: %w", err)
		}
		pusher = fcm
		logrus.WithField("project", cfg.Push.ProjectID).Info("Push notifications enabled")
	} else {
		logrus.Info("Push notifications disabled")
	}
	dispatcher := notifications.NewDispatcher(db, pusher, cfg.Timeouts.Notification)

	var backplane realtime.Backplane
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		backplane = realtime.NewRedisBackplane(client, cfg.Redis.Channel)
		logrus.WithField("address", cfg.Redis.Address).Info("Redis backplane enabled")
	}
	hub := realtime.NewHub(backplane)
	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("backplane", err, nil)
		}
	}()

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	store := uploads.NewStore(cfg.Uploads.Dir, cfg.Uploads.URLPrefix, cfg.Uploads.MaxBytes)

	router := server.NewRouter(server.Deps{
		DB:             db,
		Hub:            hub,
		Dispatcher:     dispatcher,
		Store:          store,
		TxTimeout:      cfg.Timeouts.Transaction,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("Starting Parley server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
	case <-ctx.Done():
	}

	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("shutdown", err, nil)
	}
	hub.Close()
	dispatcher.Wait()
	return nil
}
