// Package app wires the store, engine, platform client, hub client, poll job and webhook
// receiver from a Config. The HTTP server and the operator CLI share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/onnwee/streamsync/config"
	"github.com/onnwee/streamsync/db"
	"github.com/onnwee/streamsync/stream"
	"github.com/onnwee/streamsync/syncjob"
	"github.com/onnwee/streamsync/webhook"
	"github.com/onnwee/streamsync/websub"
	"github.com/onnwee/streamsync/youtubeapi"
)

// App holds the long-lived components of the service.
type App struct {
	Config  *config.Config
	Store   *db.StreamStore
	Engine  *stream.Engine
	Reader  *stream.Reader
	YouTube *youtubeapi.Client
	Hub     *websub.Client
	Sync    *syncjob.Job
	Webhook *webhook.Receiver
}

// Open connects to the configured database, brings the schema up to date and wires the
// components on top of it. Close releases the connection.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	dialect, err := db.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	database, err := db.Connect(dialect, cfg.DBDsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"), slog.String("driver", string(dialect)))
	if err := db.Setup(ctx, database, dialect); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	a, err := New(ctx, cfg, db.NewStreamStore(database, dialect))
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return a, nil
}

// New wires the components over an existing store.
func New(ctx context.Context, cfg *config.Config, store *db.StreamStore) (*App, error) {
	yt, err := youtubeapi.New(ctx, youtubeapi.Options{
		APIKey:  cfg.YouTubeAPIKey,
		BaseURL: cfg.YouTubeAPIBaseURL,
		Timeout: cfg.UpstreamTimeout,
	})
	if err != nil {
		return nil, err
	}
	if !yt.Configured() {
		slog.Warn("YOUTUBE_API_KEY not set; sync and webhook processing will fail until it is configured")
	}
	engine := stream.NewEngine(store, stream.WithConcurrency(cfg.UpsertConcurrency))
	hub := websub.NewClient(cfg.HubURL, cfg.UpstreamTimeout)
	job := syncjob.New(yt, engine, hub, syncjob.Options{
		ChannelID:           cfg.YouTubeChannelID,
		CallbackURL:         cfg.CallbackURL(),
		CompletedMaxResults: cfg.CompletedMaxResults,
		Marker:              store,
	})
	return &App{
		Config:  cfg,
		Store:   store,
		Engine:  engine,
		Reader:  stream.NewReader(store),
		YouTube: yt,
		Hub:     hub,
		Sync:    job,
		Webhook: webhook.NewReceiver(yt, engine),
	}, nil
}

// DB exposes the underlying pool for health checks and pool metrics.
func (a *App) DB() *sql.DB { return a.Store.DB() }

// Close closes the database pool.
func (a *App) Close() error { return a.Store.DB().Close() }
