package localstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gondolapp/gondolapp/internal/catalog"
	"github.com/gondolapp/gondolapp/internal/expiration"
	"github.com/gondolapp/gondolapp/internal/platform/db"
	"github.com/gondolapp/gondolapp/internal/restock"
)

// Engine is everything a node persists locally.
type Engine interface {
	catalog.Store
	restock.RepositoryPort
	expiration.RepositoryPort
}

// Options selects and configures an engine.
type Options struct {
	Driver   string
	DSN      string
	MaxConns int32
	// Dir is the badger data directory; empty keeps it in memory.
	Dir    string
	Logger *slog.Logger
}

// Open builds the engine named by opts.Driver. The returned close function
// is never nil.
func Open(ctx context.Context, opts Options) (Engine, func(), error) {
	switch opts.Driver {
	case "memory":
		return NewMemory(), func() {}, nil
	case "postgres":
		pool, err := db.New(ctx, opts.DSN, opts.MaxConns)
		if err != nil {
			return nil, func() {}, err
		}
		engine := NewPostgres(pool)
		if err := engine.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		return engine, pool.Close, nil
	case "badger":
		engine, err := OpenBadger(opts.Dir, opts.Logger)
		if err != nil {
			return nil, func() {}, err
		}
		closeFn := func() {
			if err := engine.Close(); err != nil && opts.Logger != nil {
				opts.Logger.Warn("badger close", slog.Any("error", err))
			}
		}
		return engine, closeFn, nil
	default:
		return nil, func() {}, fmt.Errorf("localstore: unknown driver %q", opts.Driver)
	}
}
