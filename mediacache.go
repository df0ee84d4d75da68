// Package mediacache wires the media gallery cache subsystem: a
// session-scoped cache for signed URLs and metadata, a pressure-driven
// memory manager, and a behavior-driven prefetcher, all constructed
// from a single configuration.
package mediacache

import (
	"context"
	"fmt"
	"os"

	"github.com/mediacache/mediacache/internal/cache"
	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/internal/memory"
	"github.com/mediacache/mediacache/internal/metrics"
	"github.com/mediacache/mediacache/internal/prefetch"
	"github.com/mediacache/mediacache/internal/storage/s3"
	"github.com/mediacache/mediacache/internal/store"
	"github.com/mediacache/mediacache/pkg/types"
	"github.com/mediacache/mediacache/pkg/utils"
)

// Config is the subsystem configuration
type Config = config.Configuration

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return config.NewDefault()
}

// Options carries optional capability overrides. Every nil field gets a
// default: an in-memory session store sized from the configuration, the
// runtime heap probe, and an S3 resolver when a bucket is configured.
// The offline store has no default; without one, offline mode is a
// logged no-op.
type Options struct {
	Resolver      types.URLResolver
	SessionStore  types.Store
	BehaviorStore types.Store
	Offline       types.OfflineStore
	Probe         types.MemoryProbe
}

// Subsystem bundles the constructed components. Components are wired
// once here; none of them reaches for a global.
type Subsystem struct {
	Session  *cache.SessionCache
	Memory   *memory.Manager
	Prefetch *prefetch.Prefetcher

	logger    *utils.StructuredLogger
	collector *metrics.Collector
}

// New constructs the subsystem from a validated configuration
func New(ctx context.Context, cfg *Config, opts Options) (*Subsystem, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := buildLogger(cfg.Global)
	if err != nil {
		return nil, err
	}

	collector, err := metrics.NewCollector(cfg.Monitoring.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build metrics collector: %w", err)
	}

	sessionStore := opts.SessionStore
	if sessionStore == nil {
		capacity, err := config.ParseSize(cfg.Session.MaxCacheSize)
		if err != nil {
			return nil, fmt.Errorf("invalid session cache size: %w", err)
		}
		sessionStore = store.NewMemoryStore(capacity)
	}

	behaviorStore := opts.BehaviorStore
	if behaviorStore == nil {
		behaviorStore = sessionStore
	}

	resolver := opts.Resolver
	if resolver == nil {
		if cfg.Resolver.Bucket == "" {
			return nil, fmt.Errorf("no resolver: configure a bucket or inject one")
		}
		resolver, err = s3.NewResolver(ctx, cfg.Resolver, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build S3 resolver: %w", err)
		}
	}

	probe := opts.Probe
	if probe == nil {
		probe = memory.RuntimeProbe{}
	}

	sessionCache := cache.NewSessionCache(sessionStore, cfg.Session, logger, collector)
	manager := memory.NewManager(cfg.Memory, probe, sessionCache, logger, collector)
	prefetcher := prefetch.NewPrefetcher(cfg.Prefetch, manager, sessionCache, resolver, behaviorStore, opts.Offline, logger, collector)

	if err := collector.Start(); err != nil {
		manager.Close()
		prefetcher.Close()
		return nil, fmt.Errorf("failed to start metrics endpoint: %w", err)
	}

	logger.Info("Cache subsystem initialized", map[string]interface{}{
		"url_ttl":      cfg.Session.URLTTL.String(),
		"metadata_ttl": cfg.Session.MetadataTTL.String(),
		"prefetch":     cfg.Prefetch.Enabled,
	})

	return &Subsystem{
		Session:   sessionCache,
		Memory:    manager,
		Prefetch:  prefetcher,
		logger:    logger,
		collector: collector,
	}, nil
}

// Logger returns the subsystem's root logger
func (s *Subsystem) Logger() *utils.StructuredLogger {
	return s.logger
}

// Close tears the subsystem down in dependency order
func (s *Subsystem) Close(ctx context.Context) error {
	s.Prefetch.Close()
	s.Memory.Close()
	return s.collector.Stop(ctx)
}

func buildLogger(cfg config.GlobalConfig) (*utils.StructuredLogger, error) {
	level, err := utils.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	format := utils.FormatText
	if cfg.LogFormat == "json" {
		format = utils.FormatJSON
	}

	return utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:  level,
		Output: os.Stdout,
		Format: format,
	}), nil
}
