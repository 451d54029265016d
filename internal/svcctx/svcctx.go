// Package svcctx carries the process-wide services through a context so
// commands and watchers extract only what they need.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/studio/internal/config"
	"github.com/jackzampolin/studio/internal/home"
	"github.com/jackzampolin/studio/internal/jobs"
	"github.com/jackzampolin/studio/internal/pipeline"
	"github.com/jackzampolin/studio/internal/session"
	"github.com/jackzampolin/studio/internal/storage"
)

// Services holds all core services that flow through context.
type Services struct {
	Config   *config.Manager
	Home     *home.Dir
	Store    storage.Store
	Ledger   session.Ledger
	Producer *pipeline.Producer
	Executor *jobs.Executor
	Logger   *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// StoreFrom extracts the object store from context.
func StoreFrom(ctx context.Context) storage.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// LedgerFrom extracts the session ledger from context.
func LedgerFrom(ctx context.Context) session.Ledger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Ledger
	}
	return nil
}

// ProducerFrom extracts the session producer from context.
func ProducerFrom(ctx context.Context) *pipeline.Producer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Producer
	}
	return nil
}

// ExecutorFrom extracts the session executor from context.
func ExecutorFrom(ctx context.Context) *jobs.Executor {
	if s := ServicesFrom(ctx); s != nil {
		return s.Executor
	}
	return nil
}

// LoggerFrom extracts the logger from context, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
