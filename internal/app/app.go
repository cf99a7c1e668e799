package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsdesk/opsdesk/internal/access"
	"github.com/opsdesk/opsdesk/internal/config"
	"github.com/opsdesk/opsdesk/internal/db"
	"github.com/opsdesk/opsdesk/internal/members"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds the application state
type App struct {
	Config *config.Config
	DB     *pgxpool.Pool
	Router http.Handler

	server *http.Server
}

// New connects to the database and builds the router.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	setupLogger(cfg)

	log.Info().Msg("Initializing OpsDesk application")
	log.Info().Interface("config", cfg.RedactedValues()).Msg("Configuration loaded")

	pool, err := db.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if cfg.IsDev() {
		log.Info().Msg("Development mode: running migrations automatically")
		if err := db.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	} else {
		log.Info().Msg("Production mode: migrations must be run manually")
	}

	loader := access.NewLoader(members.NewDirectory(pool), UnlinkedPolicy(cfg))

	a := &App{
		Config: cfg,
		DB:     pool,
		Router: NewRouter(pool, loader, cfg),
	}

	log.Info().Msg("Application initialized successfully")
	return a, nil
}

// UnlinkedPolicy maps OD_UNLINKED_ROWS_VISIBLE onto the project filter policy.
func UnlinkedPolicy(cfg *config.Config) access.UnlinkedPolicy {
	if cfg.UnlinkedRowsVisible {
		return access.UnlinkedVisible
	}
	return access.UnlinkedHidden
}

// Start blocks serving HTTP until Shutdown is called.
func (a *App) Start() error {
	log.Info().Str("addr", a.Config.HTTPAddr).Msg("Starting HTTP server")

	a.server = &http.Server{
		Addr:         a.Config.HTTPAddr,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a.server.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the pool.
func (a *App) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down application")

	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}
	if a.DB != nil {
		log.Info().Msg("Closing database connection")
		a.DB.Close()
	}
	return err
}

func setupLogger(cfg *config.Config) {
	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Debug().Str("level", cfg.LogLevel).Msg("Logger configured")
}
