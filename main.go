package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"gorm.io/gorm"

	"appcatalog/activity"
	"appcatalog/admin"
	"appcatalog/assets"
	"appcatalog/auth"
	"appcatalog/backup"
	"appcatalog/catalog"
	"appcatalog/config"
	"appcatalog/db"
	"appcatalog/download"
	"appcatalog/handlers"
	"appcatalog/messages"
	"appcatalog/middleware"
	"appcatalog/models"
	"appcatalog/settings"
)

func main() {
	root := &cli.Command{
		Name:  "appcatalog",
		Usage: "Software catalog server",
		Flags: serveFlags(),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server",
				Flags:  serveFlags(),
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "Create or update the database schema and exit",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					_, _, err := setup(cmd)
					return err
				},
			},
			{
				Name:  "create-admin",
				Usage: "Create an administrator or reset its password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Value: "admin"},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
				},
				Action: createAdmin,
			},
		},
		Action: serve,
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (overrides APP_ADDR)"},
		&cli.StringFlag{Name: "dsn", Usage: "SQLite path or postgres DSN (overrides DATABASE_DSN)"},
	}
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// setup loads configuration and opens a migrated database.
func setup(cmd *cli.Command) (config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	if v := cmd.String("addr"); v != "" {
		cfg.Addr = v
	}
	if v := cmd.String("dsn"); v != "" {
		cfg.DatabaseDSN = v
	}

	conn, err := db.Open(cfg.DatabaseDSN, newLogger(cfg))
	if err != nil {
		return cfg, nil, err
	}
	if err := models.Migrate(conn); err != nil {
		return cfg, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, conn, nil
}

func createAdmin(ctx context.Context, cmd *cli.Command) error {
	cfg, conn, err := setup(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	svc := auth.NewService(conn, cfg.JWTSecret, cfg.TokenTTL, log)
	user, err := svc.EnsureAdmin(ctx, cmd.String("username"), cmd.String("email"), cmd.String("password"))
	if err != nil {
		return err
	}
	log.WithField("user_id", user.ID).WithField("username", user.Username).Info("admin ready")
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, conn, err := setup(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	authSvc := auth.NewService(conn, cfg.JWTSecret, cfg.TokenTTL, log)
	if err := bootstrapAdmin(ctx, cfg, authSvc, log); err != nil {
		return err
	}

	store := settings.New(conn)
	files, err := assets.New(cfg.UploadRoot, cfg.MaxAppSizeMB, cfg.MaxImageSizeMB, store, log)
	if err != nil {
		return err
	}
	audit := activity.New(conn, log)

	h := &handlers.Handler{
		Catalog:   catalog.NewService(conn, files, cfg.SiteURL),
		Admin:     admin.New(conn, files, audit, log),
		Downloads: download.New(conn, files, cfg.DownloadMaxBytes, log),
		Auth:      authSvc,
		Activity:  audit,
		Settings:  store,
		Messages:  messages.New(conn, audit, log),
		Backup:    backup.New(conn, files, audit, log),
		Log:       log,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
	limiter.StartCleanup(ctx, 5*time.Minute)

	router, err := h.Router(handlers.RouterOptions{
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		UploadRoot:     files.Root(),
		Limiter:        limiter,
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// bootstrapAdmin seeds the first administrator from ADMIN_PASSWORD on an
// empty users table.
func bootstrapAdmin(ctx context.Context, cfg config.Config, svc *auth.Service, log *logrus.Logger) error {
	if cfg.AdminPassword == "" {
		return nil
	}
	exists, err := svc.HasUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if exists {
		return nil
	}
	user, err := svc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	log.WithField("username", user.Username).Info("bootstrap admin created")
	return nil
}
