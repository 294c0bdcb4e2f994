// Package bootstrap wires the application pieces in dependency order so both
// the full-screen UI and the plain REPL start from the same graph.
package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"refind/internal/api"
	"refind/internal/claims"
	"refind/internal/config"
	"refind/internal/logging"
	"refind/internal/session"
	"refind/internal/storage"
)

// BuildResult 与 UI 无关的构建结果 / BuildResult is UI-agnostic; both front
// ends construct themselves from it. Caller must defer result.Close().
type BuildResult struct {
	Config  config.Config
	Client  *api.Client
	Session *session.Manager
	Tokens  *session.TokenStore
	Claims  *claims.Workflow
	Logger  *slog.Logger

	logCloser io.Closer
	store     *storage.SQLiteStore
}

// Options tunes Build per front end.
type Options struct {
	// LogToFile directs logs into the data directory. The full-screen UI
	// needs this; the REPL logs to stderr.
	LogToFile bool
	Debug     bool
}

// Build 按依赖顺序初始化 / Build initializes in dependency order: logger,
// store, token store, API client, session manager, claim workflow.
func Build(cfg config.Config, opts Options) (*BuildResult, error) {
	logPath := ""
	if opts.LogToFile {
		logPath = cfg.LogPath()
	}
	logger, logCloser, err := logging.New(logging.Options{
		Path:  logPath,
		MaxMB: cfg.Storage.LogMaxMB,
		Debug: opts.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, fmt.Errorf("init storage: %w", err)
	}

	tokens := session.NewTokenStore(store, logger)

	var mgr *session.Manager
	client, err := api.New(api.Options{
		BaseURL: cfg.Server.BaseURL,
		Tokens:  tokens,
		Logger:  logger,
		OnAuthLost: func() {
			if mgr != nil {
				mgr.HandleAuthLost()
			}
		},
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.Server.TimeoutMS) * time.Millisecond},
	})
	if err != nil {
		_ = store.Close()
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, fmt.Errorf("init api client: %w", err)
	}
	mgr = session.NewManager(client, tokens, logger)

	return &BuildResult{
		Config:    cfg,
		Client:    client,
		Session:   mgr,
		Tokens:    tokens,
		Claims:    claims.New(client, logger),
		Logger:    logger,
		logCloser: logCloser,
		store:     store,
	}, nil
}

// Close releases the store and the log file.
func (r *BuildResult) Close() error {
	err := r.store.Close()
	if r.logCloser != nil {
		if cerr := r.logCloser.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
