package gvl

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Loader fetches a fresh vendor list snapshot.
type Loader interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// FetchMetrics records vendor list load outcomes and cache behavior.
type FetchMetrics interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// Metric labels for vendor list loads.
const (
	metricProvider  = "global-vendor-list"
	metricOperation = "fetch-vendor-list"
)

// ServiceConfig holds configuration for the vendor list service.
type ServiceConfig struct {
	Loader   Loader
	Logger   zerolog.Logger
	CacheTTL time.Duration // How long a fetched snapshot stays fresh

	// Metrics is optional; nil disables provider metrics.
	Metrics FetchMetrics
}

// Service caches the vendor list with a TTL and degrades to an empty
// snapshot when the list cannot be loaded. Consumers never see a load
// error; an empty vendor list is the degraded mode.
type Service struct {
	loader   Loader
	logger   zerolog.Logger
	cacheTTL time.Duration
	metrics  FetchMetrics

	mu          sync.RWMutex
	snapshot    *Snapshot
	cacheExpiry time.Time
	loadSeq     uint64
}

// NewService creates a new vendor list service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 24 * time.Hour
	}

	return &Service{
		loader:   cfg.Loader,
		logger:   cfg.Logger,
		cacheTTL: cacheTTL,
		metrics:  cfg.Metrics,
	}
}

// Snapshot returns the current vendor list. A cached snapshot is served
// while fresh; otherwise one load is attempted and a failure yields an
// empty snapshot for this call without poisoning the cache.
func (s *Service) Snapshot(ctx context.Context) *Snapshot {
	if snap := s.getCached(); snap != nil {
		if s.metrics != nil {
			s.metrics.RecordCacheHit(metricProvider, metricOperation)
		}
		return snap
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(metricProvider, metricOperation)
	}

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("vendor list load failed, serving empty snapshot")
		return NewSnapshot()
	}

	if snap := s.getCached(); snap != nil {
		return snap
	}
	return NewSnapshot()
}

// Refresh fetches the vendor list and replaces the cache. A refresh that is
// superseded by a later one discards its result: stale fetches never
// overwrite fresher data.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	start := time.Now()
	snapshot, err := s.loader.Fetch(ctx)
	if s.metrics != nil {
		s.metrics.RecordRequest(metricProvider, metricOperation, time.Since(start), err)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.loadSeq {
		s.logger.Debug().
			Int("vendor_list_version", snapshot.VendorListVersion).
			Msg("discarding superseded vendor list fetch")
		return nil
	}
	s.snapshot = snapshot
	s.cacheExpiry = time.Now().Add(s.cacheTTL)
	s.logger.Info().
		Int("vendor_list_version", snapshot.VendorListVersion).
		Int("vendors", len(snapshot.Vendors)).
		Msg("vendor list refreshed")
	return nil
}

// Invalidate clears the cached snapshot, forcing a reload on next access.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.cacheExpiry = time.Time{}
}

// getCached returns the cached snapshot if still fresh.
func (s *Service) getCached() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil || time.Now().After(s.cacheExpiry) {
		return nil
	}
	return s.snapshot
}
