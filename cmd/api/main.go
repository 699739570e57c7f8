package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vaidashi/storefront-api/internal/api"
	"github.com/vaidashi/storefront-api/internal/config"
	"github.com/vaidashi/storefront-api/internal/database"
	"github.com/vaidashi/storefront-api/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "storefront-api",
		Usage: "storefront order, catalog and payment API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Value:   ".env",
				Usage:   "dotenv file loaded before the environment",
				EnvVars: []string{"ENV_FILE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP server and background workers",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "skip-migrations", Usage: "do not apply migrations on startup"},
					&cli.DurationFlag{Name: "shutdown-timeout", Value: 15 * time.Second},
				},
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "down", Usage: "roll back this many migrations instead"},
				},
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(c *cli.Context) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, logger.NewLogger(cfg.LogLevel, cfg.LogFormat), nil
}

func serve(c *cli.Context) error {
	cfg, l, err := setup(c)
	if err != nil {
		return err
	}

	l.Info("Starting API server...", "env", cfg.Env, "broker", cfg.Broker)

	if !c.Bool("skip-migrations") {
		if err := runMigrations(cfg, l, 0); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := api.Bootstrap(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	l.Info(fmt.Sprintf("Server is starting on port %d", cfg.Port))
	return runUntilStopped(ctx, server, c.Duration("shutdown-timeout"), l)
}

type runner interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// runUntilStopped serves until ctx is done or the listener fails, then shuts
// down. A listener failure is returned so the process exits non-zero.
func runUntilStopped(ctx context.Context, server runner, shutdownTimeout time.Duration, l logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		l.Info("Shutting down server...")
	case serveErr = <-errCh:
		l.Error("Server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("Server forced to shutdown", "error", err)
		return errors.Join(serveErr, err)
	}

	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}

	l.Info("Server exiting")
	return nil
}

func migrate(c *cli.Context) error {
	cfg, l, err := setup(c)
	if err != nil {
		return err
	}

	return runMigrations(cfg, l, c.Int("down"))
}

// runMigrations applies every pending migration, or rolls back `down` steps
func runMigrations(cfg *config.Config, l logger.Logger, down int) error {
	db, err := database.New(cfg, l)
	if err != nil {
		return err
	}
	defer db.Close()

	if down > 0 {
		return db.RollbackMigrations(down)
	}
	return db.RunMigrations()
}
