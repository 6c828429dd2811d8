package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/pickem/backend/internal/awardpolicy"
	"github.com/wonny/pickem/backend/internal/external/quotes"
	"github.com/wonny/pickem/backend/internal/pricing"
	"github.com/wonny/pickem/backend/internal/realtime"
	"github.com/wonny/pickem/backend/internal/settlement"
	"github.com/wonny/pickem/backend/internal/store"
	"github.com/wonny/pickem/backend/pkg/config"
	"github.com/wonny/pickem/backend/pkg/database"
	"github.com/wonny/pickem/backend/pkg/httputil"
	"github.com/wonny/pickem/backend/pkg/logger"
	"github.com/wonny/pickem/backend/pkg/redis"
)

const redisPrefix = "pickem"

// app holds the wired engine shared by every command
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	store    *store.PostgresStore
	redis    *redis.Client
	cache    pricing.Cache
	resolver *pricing.Resolver
	settler  *settlement.Settler
	hub      *realtime.Hub
}

// buildApp wires config → logger → database → store → redis → pricing → settler.
// withHub attaches the websocket hub as the settlement notifier.
func buildApp(ctx context.Context, withHub bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("Connected to database")

	st := store.NewPostgresStore(db, cfg.Settlement.TxRetries)
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := st.Migrate(migrateCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rc, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: db, store: st, redis: rc}

	// 종가 캐시
	switch cfg.Pricing.CacheBackend {
	case "redis":
		a.cache = pricing.NewRedisCache(redis.NewCache(rc, redisPrefix), cfg.Pricing.CacheTTL)
	default:
		a.cache = pricing.NewMemoryCache(cfg.Pricing.CacheTTL, log)
	}

	opts := []pricing.Option{pricing.WithCache(a.cache)}
	if cfg.Pricing.QuoteURL != "" {
		httpClient := httputil.New(cfg, log)
		if rc.Enabled() {
			httpClient = httpClient.WithRateLimiter(redis.NewRateLimiter(rc, redisPrefix), redis.QuoteRateLimit)
		}
		opts = append(opts, pricing.WithQuoteProvider(
			quotes.NewClient(httpClient, cfg.Pricing.QuoteURL, log), cfg.Pricing.QuoteTimeout,
		))
		log.WithField("url", cfg.Pricing.QuoteURL).Info("Quote provider enabled")
	}
	a.resolver = pricing.NewResolver(st, log, opts...)

	var notifier settlement.Notifier
	if withHub && cfg.Settlement.NotificationsEnabled {
		a.hub = realtime.NewHub(log)
		notifier = a.hub
	}

	policy, err := loadAwardPolicy(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	snap, err := awardpolicy.NewSnapshot(policy, nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("hash award policy: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"policy_id":   snap.PolicyID,
		"policy_hash": snap.PolicyHash,
	}).Info("Award policy loaded")

	a.settler = settlement.NewSettler(st, a.resolver, notifier, settlement.Config{
		AllInThreshold: policy.Awards.AllIn.Threshold,
		StatsEnabled:   cfg.Settlement.StatsEnabled,
		EnabledAwards:  policy.Enabled(),
		PolicyHash:     snap.PolicyHash,
	}, log)

	return a, nil
}

// loadAwardPolicy reads SETTLEMENT_AWARDS_FILE, or falls back to every award on
func loadAwardPolicy(cfg *config.Config) (*awardpolicy.Policy, error) {
	if cfg.Settlement.AwardsFile == "" {
		return awardpolicy.Default(cfg.Settlement.AllInThreshold), nil
	}
	policy, _, err := awardpolicy.Load(cfg.Settlement.AwardsFile)
	if err != nil {
		return nil, fmt.Errorf("load award policy %s: %w", cfg.Settlement.AwardsFile, err)
	}
	return policy, nil
}

func (a *app) Close() {
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
	a.db.Close()
}
