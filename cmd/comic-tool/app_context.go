package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"comic-tool/cmd/comic-tool/handlers"
	"comic-tool/cmd/comic-tool/processors"
	"comic-tool/cmd/comic-tool/utils"
	"comic-tool/internal"
	"comic-tool/internal/archive"
	"comic-tool/internal/backup"
	"comic-tool/internal/batch"
	"comic-tool/internal/config"
	"comic-tool/internal/editor"
	"comic-tool/internal/session"
)

// AppContext holds the engine components built from one configuration.
// CLI commands use the engine fields directly; serve also uses the
// server fields.
type AppContext struct {
	Config *config.Config
	Logger *utils.SlogLogger

	Tools     archive.Tools
	Extractor *archive.Extractor
	Builder   *archive.Builder
	Backups   *backup.Manager
	Saver     *editor.Saver

	// Server state, set by InitServer.
	ProcessManager *internal.ProcessManager
	Sessions       *session.Registry
	Runner         *processors.Runner
	CookieStore    *sessions.CookieStore
	Handler        *handlers.Handler
	StartTime      time.Time
}

// NewAppContext wires the engine components from cfg. ctx is only used to
// load the backup mirror's credentials.
func NewAppContext(ctx context.Context, cfg *config.Config, logger *utils.SlogLogger) (*AppContext, error) {
	app := &AppContext{
		Config:    cfg,
		Logger:    logger,
		Tools:     archive.DetectTools(cfg.ToolOptions()),
		StartTime: time.Now(),
	}

	app.Extractor = &archive.Extractor{
		StagingRoot: cfg.Paths.StagingDir,
		Tools:       app.Tools,
		Parallelism: cfg.Archive.Parallelism,
		Logger:      logger,
	}
	app.Builder = &archive.Builder{
		Tools:       app.Tools,
		Compression: cfg.Compression(),
		Logger:      logger,
	}
	app.Backups = backup.NewManager(cfg.Paths.BackupsDir, logger)
	app.Backups.KeepLast = cfg.Backup.KeepLast
	if cfg.S3.Bucket != "" {
		mirror, err := backup.NewS3Mirror(ctx, backup.S3Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("configure backup mirror: %w", err)
		}
		app.Backups.Mirror = mirror
	}

	app.Saver = &editor.Saver{Builder: app.Builder, Logger: logger}
	if cfg.Backup.Enabled {
		app.Saver.Backups = app.Backups
	}
	return app, nil
}

// InitServer loads the process history and builds the HTTP handler. ctx
// bounds background batches started through the server.
func (app *AppContext) InitServer(ctx context.Context) error {
	cfg, logger := app.Config, app.Logger

	pm, err := internal.NewProcessManager(cfg.Paths.ProcessHistory)
	if err != nil {
		return err
	}
	app.ProcessManager = pm
	app.Runner = processors.NewRunner(ctx, pm, logger.LogFunc())

	idle := time.Duration(cfg.Server.SessionIdleMinutes) * time.Minute
	app.Sessions = session.NewRegistry(app.Extractor, idle, logger)

	store, err := newCookieStore(cfg.Server.SessionSecret)
	if err != nil {
		return err
	}
	app.CookieStore = store

	app.Handler = &handlers.Handler{
		Sessions:        app.Sessions,
		Saver:           app.Saver,
		Backups:         app.Backups,
		Processes:       pm,
		Runner:          app.Runner,
		Pipeline:        app.Pipeline(),
		BackupByDefault: cfg.Backup.Enabled,
		Tools:           app.Tools,
		Cookies:         store,
		Logger:          logger.LogFunc(),
	}
	return nil
}

// Pipeline returns a batch pipeline over the app's components.
func (app *AppContext) Pipeline() batch.Pipeline {
	return batch.Pipeline{
		Extractor: app.Extractor,
		Builder:   app.Builder,
		Backups:   app.Backups,
		Logger:    app.Logger,
	}
}

// newCookieStore signs the editing-session cookie with secret, or with a
// random key when none is configured.
func newCookieStore(secret string) (*sessions.CookieStore, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
	}
	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}

// Close releases open editing sessions and waits for background batches.
func (app *AppContext) Close() {
	if app.Sessions != nil {
		app.Sessions.CloseAll()
	}
	if app.Runner != nil {
		app.Runner.Wait()
	}
}
