// Package registry discovers the handlers this node runs and publishes
// their metadata.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mattjoyce/meshmgr/internal/agent"
	"github.com/mattjoyce/meshmgr/internal/agent/builtin"
	"github.com/mattjoyce/meshmgr/internal/agent/execagent"
	"github.com/mattjoyce/meshmgr/internal/config"
	"github.com/mattjoyce/meshmgr/internal/log"
	"github.com/mattjoyce/meshmgr/internal/metadata"
)

// Registry combines the built-in table with exec agents found on disk.
type Registry struct {
	agents   config.AgentsConfig
	builtins func() *agent.Table
	store    metadata.Store
	by       string
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithBuiltins replaces the built-in registration table.
func WithBuiltins(fn func() *agent.Table) Option {
	return func(r *Registry) { r.builtins = fn }
}

// WithStore enables metadata publication to store.
func WithStore(store metadata.Store) Option {
	return func(r *Registry) { r.store = store }
}

// New creates a registry over cfg.Agents.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		agents:   cfg.Agents,
		builtins: builtin.Table,
		by:       cfg.Service.Name,
		logger:   log.WithComponent(logger, "registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover returns the id → descriptor mapping of handlers to run and syncs
// their metadata. It never fails: a discovery that cannot complete is logged
// at CRITICAL and yields an empty mapping, and a failed sync is logged.
func (r *Registry) Discover(ctx context.Context) map[string]agent.Descriptor {
	handlers, err := r.Handlers()
	if err != nil {
		log.Critical(r.logger, "critical error loading agents", "error", err)
		return map[string]agent.Descriptor{}
	}

	if _, err := r.SyncMetadata(ctx, handlers); err != nil {
		r.logger.Error("metadata sync failed", "error", err)
	}

	ids := make([]string, 0, len(handlers))
	for id := range handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	r.logger.Info("found agents", "count", len(ids), "agent_ids", ids)
	return handlers
}

// Handlers returns the runnable handlers: the full table minus the ids
// disabled in configuration.
func (r *Registry) Handlers() (map[string]agent.Descriptor, error) {
	tbl, err := r.Table()
	if err != nil {
		return nil, err
	}

	handlers := tbl.Snapshot()
	for _, id := range r.agents.Disabled {
		if _, ok := handlers[id]; ok {
			delete(handlers, id)
			r.logger.Info("agent disabled by configuration", "agent_id", id)
		}
	}
	return handlers, nil
}

// Table builds the full registration table without syncing metadata.
// Built-in handlers win over exec agents with the same id.
func (r *Registry) Table() (*agent.Table, error) {
	tbl := r.builtins()
	if len(r.agents.PluginDirs) == 0 {
		return tbl, nil
	}

	plugins, err := execagent.Discover(r.agents.PluginDirs, r.logger)
	if err != nil {
		return nil, fmt.Errorf("discover exec agents: %w", err)
	}
	for _, d := range execagent.Descriptors(plugins, r.agents.ExecTimeout, r.logger) {
		if err := tbl.Add(d); err != nil {
			r.logger.Warn("skipping exec agent", "agent_id", d.ID, "path", d.Module, "error", err)
		}
	}
	return tbl, nil
}

// SyncMetadata publishes every handler not on the denylist. It is a no-op
// without a store.
func (r *Registry) SyncMetadata(ctx context.Context, handlers map[string]agent.Descriptor) (metadata.Result, error) {
	if r.store == nil {
		r.logger.Debug("metadata sync disabled")
		return metadata.Result{}, nil
	}

	ids := make([]string, 0, len(handlers))
	for id := range handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make(map[string]*metadata.Entry, len(handlers))
	for _, id := range ids {
		if !metadata.Publishable(id, r.agents.MetadataDenylist) {
			continue
		}
		entry, err := r.buildEntry(ctx, handlers[id])
		if err != nil {
			r.logger.Warn("skipping metadata for agent", "agent_id", id, "error", err)
			continue
		}
		r.logger.Debug("updating metadata for agent", "agent_id", id)
		entries[id] = entry
	}

	return metadata.NewSyncer(r.store, r.by, r.logger).Sync(ctx, entries)
}

// buildEntry shields discovery from a handler whose constructor or
// metadata panics.
func (r *Registry) buildEntry(ctx context.Context, d agent.Descriptor) (e *metadata.Entry, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w while reading metadata: %v", agent.ErrPanic, p)
		}
	}()
	return metadata.BuildEntry(ctx, d)
}

// OpenStore builds the metadata store selected by cfg, or nil for none.
func OpenStore(ctx context.Context, cfg config.MetadataConfig) (metadata.Store, error) {
	switch cfg.Store {
	case "", config.MetadataStoreNone:
		return nil, nil
	case config.MetadataStoreFile:
		return metadata.NewFileStore(cfg.File.Path), nil
	case config.MetadataStoreS3:
		return metadata.NewS3Store(ctx, metadata.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Key:       cfg.S3.Key,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown metadata store %q", cfg.Store)
	}
}
