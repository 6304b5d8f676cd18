package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/concierge-sh/concierge/internal/adapters/file"
	"github.com/concierge-sh/concierge/internal/adapters/postgres"
	redisstore "github.com/concierge-sh/concierge/internal/adapters/redis"
	"github.com/concierge-sh/concierge/internal/compiler"
	"github.com/concierge-sh/concierge/internal/logging"
	"github.com/concierge-sh/concierge/pkg/domain"
	"github.com/concierge-sh/concierge/pkg/persistence/middleware"
	"github.com/concierge-sh/concierge/pkg/ports"
	"github.com/concierge-sh/concierge/pkg/registry"
	"github.com/concierge-sh/concierge/pkg/schema"
)

func buildLogger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return logging.New(l)
}

// buildStore creates the session store selected by --store, wrapped in the
// persistence middlewares the flags ask for. The returned cleanup function
// closes the backend connection; it is a no-op for memory and file.
// Memory-backed sessions are ephemeral, so nil is returned to keep the
// engine purely in-process.
func buildStore(ctx context.Context, cmd *cobra.Command) (ports.StateStore, func(), error) {
	backend, _ := cmd.Flags().GetString("store")

	var store ports.StateStore
	cleanup := func() {}

	switch backend {
	case "memory":
		return nil, cleanup, nil
	case "file":
		dir, _ := cmd.Flags().GetString("file-dir")
		store = file.New(dir)
	case "redis":
		addr, _ := cmd.Flags().GetString("redis-addr")
		rs := redisstore.New(addr, "", 0)
		store, cleanup = rs, func() { _ = rs.Close() }
	case "postgres":
		dsn, _ := cmd.Flags().GetString("postgres-dsn")
		if dsn == "" {
			return nil, nil, fmt.Errorf("--postgres-dsn is required for --store=postgres")
		}
		ps, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := ps.CreateSchema(ctx); err != nil {
			ps.Close()
			return nil, nil, fmt.Errorf("failed to create schema: %w", err)
		}
		store, cleanup = ps, ps.Close
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}

	wrapped, err := wrapStore(cmd, store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return wrapped, cleanup, nil
}

// wrapStore applies the --mask and --encrypt-key middlewares. Masking runs
// before encryption so masked values are what get sealed.
func wrapStore(cmd *cobra.Command, store ports.StateStore) (ports.StateStore, error) {
	var mws []middleware.Middleware

	if patterns, _ := cmd.Flags().GetStringSlice("mask"); len(patterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(patterns))
	}
	if encoded, _ := cmd.Flags().GetString("encrypt-key"); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("--encrypt-key must be base64: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("--encrypt-key must decode to 32 bytes, got %d", len(key))
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}

	return middleware.Chain(store, mws...), nil
}

// buildWorkflow loads the definition named by --workflow, or falls back to
// the built-in demo workflow.
func buildWorkflow(cmd *cobra.Command) (*domain.Workflow, error) {
	path, _ := cmd.Flags().GetString("workflow")
	if path == "" {
		return demoWorkflow()
	}

	def, err := compiler.Load(path)
	if err != nil {
		return nil, err
	}
	ops, err := captureOperations(def)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(def, ops)
}

// captureOperations builds a registry for definitions that declare
// operations without shipping code: each operation checks its arguments
// against the declared schema, merges them into the stage's local data, and
// echoes them back. That is enough for data-capture flows, the common case
// for declarative definitions.
func captureOperations(def *compiler.Definition) (map[string]*domain.Operation, error) {
	reg := registry.New()
	for _, sd := range def.Stages {
		for _, od := range sd.Operations {
			if _, ok := reg.Get(od.Name); ok {
				continue
			}
			argSchema, err := schema.ForArgs(od.Args)
			if err != nil {
				return nil, fmt.Errorf("stage %q operation %q: %w", sd.Name, od.Name, err)
			}
			description := od.Description
			if description == "" {
				description = fmt.Sprintf("Record the provided arguments as %s data.", od.Name)
			}
			err = reg.RegisterFunc(od.Name, description,
				func(ctx context.Context, state *domain.State, args map[string]any) (any, error) {
					if err := argSchema.Validate(args); err != nil {
						return nil, err
					}
					state.Merge(args)
					return args, nil
				},
				od.Args...,
			)
			if err != nil {
				return nil, err
			}
		}
	}
	return reg.Map(), nil
}
