package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jo-hoe/venicebridges/internal/backend/auth"
	"github.com/jo-hoe/venicebridges/internal/backend/bridge"
	"github.com/jo-hoe/venicebridges/internal/backend/commandstructure"
	"github.com/jo-hoe/venicebridges/internal/backend/gallery"
	"github.com/jo-hoe/venicebridges/internal/backend/quota"
	"github.com/jo-hoe/venicebridges/internal/backend/storage"
	"github.com/jo-hoe/venicebridges/internal/common"
	"github.com/jo-hoe/venicebridges/internal/metrics"

	_ "github.com/jo-hoe/venicebridges/internal/backend/commands"
)

const (
	uploadKindPending = "pending"
	uploadKindAdmin   = "admin"
)

// Components are the pluggable backends of a CoreService.
type Components struct {
	Store      storage.ObjectStore
	QuotaStore quota.Store
	Source     bridge.Source
}

// CoreService ties the catalog, gallery, quota and admin gate together.
type CoreService struct {
	config   *ServiceConfig
	catalog  *bridge.Catalog
	source   bridge.Source
	store    storage.ObjectStore
	gallery  *gallery.Gallery
	limiter  *quota.Limiter
	quota    quota.Store
	auth     *auth.Authenticator
	pipeline *commandstructure.CommandInvoker
	metrics  *metrics.Metrics
}

// NewCoreService builds the configured backends and loads the catalog once.
func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	components, err := buildComponents(ctx, config)
	if err != nil {
		return nil, err
	}
	service, err := NewCoreServiceWithComponents(ctx, config, components)
	if err != nil {
		_ = components.QuotaStore.Close()
		return nil, err
	}
	return service, nil
}

// NewCoreServiceWithComponents wires already constructed backends.
func NewCoreServiceWithComponents(ctx context.Context, config *ServiceConfig, c Components) (*CoreService, error) {
	authenticator, err := auth.NewAuthenticator(config.Admin)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize admin authentication: %w", err)
	}
	pipeline, err := commandstructure.NewCommandInvokerFromConfigs(commandstructure.DefaultRegistry, config.Upload.Commands)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload pipeline: %w", err)
	}

	m := metrics.New()
	catalog := bridge.NewCatalog()
	catalog.OnRefresh = func(count int, err error) {
		m.CatalogBridges.Set(float64(count))
		if err != nil {
			m.CatalogRefreshFailure.Inc()
		}
	}

	service := &CoreService{
		config:   config,
		catalog:  catalog,
		source:   c.Source,
		store:    c.Store,
		gallery:  gallery.New(c.Store),
		limiter:  quota.NewLimiter(c.QuotaStore, config.Quota.Limit),
		quota:    c.QuotaStore,
		auth:     authenticator,
		pipeline: pipeline,
		metrics:  m,
	}

	if err := catalog.Refresh(ctx, c.Source); err != nil {
		if config.Catalog.RefreshInterval <= 0 {
			return nil, fmt.Errorf("failed to load bridge catalog: %w", err)
		}
		log.Error().Err(err).Dur("retry_in", config.Catalog.RefreshInterval).
			Msg("initial catalog load failed, starting with an empty catalog")
	}
	log.Info().Int("bridges", catalog.Len()).Str("catalog", config.Catalog.Type).
		Strs("pipeline", pipeline.Names()).Msg("core service initialized")
	return service, nil
}

func buildComponents(ctx context.Context, config *ServiceConfig) (Components, error) {
	store, err := newObjectStore(ctx, config.Storage)
	if err != nil {
		return Components{}, fmt.Errorf("failed to initialize storage: %w", err)
	}
	source, err := newBridgeSource(config.Catalog)
	if err != nil {
		return Components{}, err
	}
	quotaStore, err := newQuotaStore(ctx, config.Quota)
	if err != nil {
		return Components{}, fmt.Errorf("failed to initialize quota store: %w", err)
	}
	log.Info().Str("storage", config.Storage.Type).Str("quota", config.Quota.Type).Msg("backends initialized")
	return Components{Store: store, QuotaStore: quotaStore, Source: source}, nil
}

func newObjectStore(ctx context.Context, cfg StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Type {
	case StorageS3:
		return storage.NewS3Store(ctx, cfg.S3Config)
	case StorageMemory:
		return storage.NewMemoryStore(cfg.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func newBridgeSource(cfg CatalogConfig) (bridge.Source, error) {
	switch cfg.Type {
	case CatalogFeatureService:
		return bridge.NewFeatureServiceSource(cfg.URL, cfg.Fields, cfg.Timeout), nil
	case CatalogGeoJSON:
		return bridge.NewGeoJSONSource(cfg.Path, cfg.Fields), nil
	default:
		return nil, fmt.Errorf("unsupported catalog type: %s", cfg.Type)
	}
}

func newQuotaStore(ctx context.Context, cfg QuotaConfig) (quota.Store, error) {
	switch cfg.Type {
	case QuotaMemory:
		return quota.NewMemoryStore(), nil
	case QuotaRedis:
		return quota.NewRedisStore(ctx, cfg.Redis)
	case QuotaSQLite, QuotaPostgres:
		return quota.OpenSQLStore(ctx, cfg.Type, cfg.ConnectionString)
	default:
		return nil, fmt.Errorf("unsupported quota type: %s", cfg.Type)
	}
}

// Run refreshes the catalog periodically until ctx is done. It returns at once
// when no refresh interval is configured.
func (s *CoreService) Run(ctx context.Context) {
	if s.config.Catalog.RefreshInterval <= 0 {
		return
	}
	s.catalog.Watch(ctx, s.source, s.config.Catalog.RefreshInterval)
}

func (s *CoreService) Config() *ServiceConfig {
	return s.config
}

func (s *CoreService) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *CoreService) Auth() *auth.Authenticator {
	return s.auth
}

// Store exposes the object store for serving images from memory storage.
func (s *CoreService) Store() storage.ObjectStore {
	return s.store
}

func (s *CoreService) ListBridges() []bridge.Bridge {
	return s.catalog.List()
}

func (s *CoreService) GetBridge(id string) (bridge.Bridge, error) {
	return s.catalog.Get(id)
}

func (s *CoreService) NearestBridge(lat, lon float64) (bridge.Bridge, float64, error) {
	return s.catalog.Nearest(lat, lon)
}

func (s *CoreService) HitTest(lat, lon float64) (bridge.Bridge, float64, error) {
	return s.catalog.HitTest(lat, lon, s.config.HitTest.ToleranceMeters)
}

func (s *CoreService) ListImages(ctx context.Context, bridgeID string) ([]gallery.Image, error) {
	if _, err := s.catalog.Get(bridgeID); err != nil {
		return nil, err
	}
	return s.gallery.ListApproved(ctx, bridgeID)
}

func (s *CoreService) QuotaStatus(ctx context.Context, clientIP, bridgeID string) (quota.Usage, error) {
	if _, err := s.catalog.Get(bridgeID); err != nil {
		return quota.Usage{}, err
	}
	return s.limiter.Status(ctx, clientIP, bridgeID)
}

// SubmitImage reserves the caller's quota, converts the upload and stores it
// for moderation. The reservation is released when anything after it fails.
func (s *CoreService) SubmitImage(ctx context.Context, clientIP, bridgeID string, data []byte) (img gallery.Image, usage quota.Usage, err error) {
	defer func() { s.metrics.ObserveUpload(uploadKindPending, err) }()

	if _, err = s.catalog.Get(bridgeID); err != nil {
		return gallery.Image{}, quota.Usage{}, err
	}

	usage, err = s.limiter.Reserve(ctx, clientIP, bridgeID)
	if errors.Is(err, common.ErrQuotaExceeded) {
		s.metrics.QuotaRejections.Inc()
		log.Info().Str("bridge_id", bridgeID).Str("client_ip", clientIP).Msg("upload quota exceeded")
		return gallery.Image{}, usage, err
	}
	if err != nil {
		return gallery.Image{}, quota.Usage{}, err
	}

	img, err = s.processAndStore(ctx, bridgeID, data, s.gallery.SubmitPending)
	if err != nil {
		if releaseErr := s.limiter.Release(ctx, clientIP, bridgeID); releaseErr != nil {
			log.Error().Str("bridge_id", bridgeID).Err(releaseErr).Msg("failed to release upload quota")
		} else if usage.Count > 0 {
			usage.Count--
			usage.Remaining++
		}
		return gallery.Image{}, usage, err
	}
	return img, usage, nil
}

// UploadApproved stores an admin upload straight into the gallery. Admin
// uploads are not counted against any quota.
func (s *CoreService) UploadApproved(ctx context.Context, bridgeID string, data []byte) (img gallery.Image, err error) {
	defer func() { s.metrics.ObserveUpload(uploadKindAdmin, err) }()

	if _, err = s.catalog.Get(bridgeID); err != nil {
		return gallery.Image{}, err
	}
	return s.processAndStore(ctx, bridgeID, data, s.gallery.UploadApproved)
}

func (s *CoreService) ListPending(ctx context.Context) ([]gallery.Image, error) {
	return s.gallery.ListPending(ctx)
}

func (s *CoreService) Approve(ctx context.Context, pendingKey string) (img gallery.Image, err error) {
	defer func() { s.metrics.ObserveModeration("approve", err) }()
	return s.gallery.Approve(ctx, pendingKey)
}

func (s *CoreService) Reject(ctx context.Context, pendingKey string) (err error) {
	defer func() { s.metrics.ObserveModeration("reject", err) }()
	return s.gallery.Reject(ctx, pendingKey)
}

func (s *CoreService) processAndStore(ctx context.Context, bridgeID string, data []byte,
	put func(context.Context, string, []byte) (gallery.Image, error)) (gallery.Image, error) {
	start := time.Now()
	processed, err := s.pipeline.Execute(data)
	if err != nil {
		return gallery.Image{}, err
	}
	img, err := put(ctx, bridgeID, processed)
	if err != nil {
		return gallery.Image{}, err
	}
	log.Debug().Str("bridge_id", bridgeID).Str("key", img.Key).Dur("duration", time.Since(start)).
		Msg("upload processed")
	return img, nil
}

// Close releases the quota store.
func (s *CoreService) Close() error {
	if s.quota == nil {
		return nil
	}
	return s.quota.Close()
}
