package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taste-trails/localguide/internal/cache"
	"github.com/taste-trails/localguide/internal/knowledge"
	"github.com/taste-trails/localguide/internal/model"
	"github.com/taste-trails/localguide/internal/observe"
	"github.com/taste-trails/localguide/internal/orchestrator"
	"github.com/taste-trails/localguide/internal/profile"
	"github.com/taste-trails/localguide/internal/provider"
	"github.com/taste-trails/localguide/internal/ratelimit"
	"github.com/taste-trails/localguide/internal/resilience"
	"github.com/taste-trails/localguide/internal/scorer"
	"github.com/taste-trails/localguide/pkg/places"
	"github.com/taste-trails/localguide/pkg/searchidx"
	"github.com/taste-trails/localguide/pkg/tastedive"
	"github.com/taste-trails/localguide/pkg/textgen"
)

// appEnv holds the wired application: the orchestrator plus the shared
// components the commands need direct access to.
type appEnv struct {
	Orchestrator *orchestrator.Orchestrator
	Collector    *observe.Collector

	store    profile.Store
	recorder *profile.Recorder
	cache    *cache.Cache
}

// Close releases the app's resources in drain order: pending profile
// events flush before the store closes.
func (e *appEnv) Close() {
	if e.recorder != nil {
		e.recorder.Stop()
	}
	if e.cache != nil {
		e.cache.Stop()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			zap.L().Warn("closing profile store", zap.Error(err))
		}
	}
}

// initApp validates config for the given mode and wires the full
// pipeline: store, gate, cache, breakers, provider adapters, and the
// orchestrator.
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, eris.Wrap(err, "app: migrate profile store")
	}
	recorder := profile.NewRecorder(store, 256)

	kb, err := knowledge.Load()
	if err != nil {
		store.Close()
		return nil, eris.Wrap(err, "app: load knowledge base")
	}

	responseCache := cache.New()
	responseCache.StartSweeper(time.Minute)

	breakers := resilience.NewProviderBreakers(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		CoolDown:         time.Duration(cfg.Circuit.CoolDownSecs) * time.Second,
		CoolDownCap:      time.Duration(cfg.Circuit.CoolDownCapSecs) * time.Second,
	}, func(providerID string, from, to resilience.CircuitState) {
		zap.L().Info("circuit state change",
			zap.String("provider", providerID),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	})

	var gate *ratelimit.Gate
	collector := observe.NewCollector(
		observe.WithCircuitProbe(breakers.States),
		observe.WithCacheProbe(responseCache.Stats),
		observe.WithQueueProbe(func() map[string]int {
			depths := make(map[string]int)
			for _, id := range []model.ProviderID{
				model.ProviderCultural, model.ProviderSearch,
				model.ProviderPlaces, model.ProviderTextGen,
			} {
				depths[string(id)] = gate.QueueDepth(string(id))
			}
			return depths
		}),
	)
	gate = newGate(collector)

	kbFallback := func(req provider.Request) (*provider.Payload, bool) {
		candidates := kb.Candidates(req.Query, cfg.Orchestrator.MaxCandidates)
		if len(candidates) == 0 {
			return nil, false
		}
		return &provider.Payload{Candidates: candidates}, true
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffSecs) * time.Second,
		JitterFraction: float64(cfg.Retry.JitterFractionPct) / 100,
	}

	registry := provider.NewRegistry()
	register := func(p provider.Provider, opts ...provider.AdapterOption) {
		opts = append(opts,
			provider.WithSink(collector),
			provider.WithRetryConfig(retryCfg),
		)
		registry.Register(provider.NewAdapter(
			p, gate, responseCache, breakers.Get(string(p.Name())), opts...))
	}

	register(
		provider.NewCulturalProvider(tastedive.NewClient(cfg.TasteDive.Key,
			tastedive.WithBaseURL(cfg.TasteDive.BaseURL))),
		provider.WithFallback(kbFallback),
	)
	register(
		provider.NewSearchProvider(searchidx.NewClient(cfg.SearchIndex.AppID, cfg.SearchIndex.APIKey,
			searchidx.WithIndex(cfg.SearchIndex.Index),
			searchidx.WithTimeout(time.Duration(cfg.SearchIndex.TimeoutMs)*time.Millisecond))),
		provider.WithFallback(kbFallback),
	)
	register(
		provider.NewPlacesProvider(places.NewClient(cfg.Places.Key,
			places.WithBaseURL(cfg.Places.BaseURL)),
			provider.WithRadius(cfg.Places.RadiusMeters)),
		provider.WithFallback(kbFallback),
	)
	// Language generation has no knowledge-base fallback: the
	// orchestrator downgrades to the structured summary instead.
	register(provider.NewTextGenProvider(textgen.NewClient(cfg.Anthropic.Key,
		textgen.WithModel(cfg.Anthropic.Model)),
		provider.WithMaxTokens(int64(cfg.Anthropic.MaxTokens))))

	orch := orchestrator.New(registry, kb, scorer.New(scorer.Config{
		Weights: scorer.Weights{
			Relevance:       cfg.Scorer.RelevanceWeight,
			CulturalMatch:   cfg.Scorer.CulturalWeight,
			Personalization: cfg.Scorer.PersonalizationWeight,
		},
		AuthenticBonus: cfg.Scorer.AuthenticBonus,
		HalfLifeDays:   int(cfg.Scorer.HalfLifeDays),
	}), orchestrator.Config{
		RequestBudget: cfg.Orchestrator.RequestBudget(),
		PolishTopN:    cfg.Orchestrator.PolishTopN,
		MaxCandidates: cfg.Orchestrator.MaxCandidates,
	},
		orchestrator.WithProfileStore(store),
		orchestrator.WithRecorder(recorder),
	)

	return &appEnv{
		Orchestrator: orch,
		Collector:    collector,
		store:        store,
		recorder:     recorder,
		cache:        responseCache,
	}, nil
}

func openStore(ctx context.Context) (profile.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return profile.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return profile.NewSQLite(cfg.Store.SQLitePath)
	}
}

// newGate builds the admission gate from the configured quotas, with
// every decision (permit, queued, rejected, timeout) routed to the
// collector.
func newGate(collector *observe.Collector) *ratelimit.Gate {
	return ratelimit.NewGate(gateConfigs(), ratelimit.WithDecisionSink(func(d ratelimit.Decision) {
		collector.RecordGateDecision(d.Provider, d.Outcome, d.QueueDepth, d.EstimatedWait)
	}))
}

// gateConfigs sizes each provider's token bucket and queue from config.
func gateConfigs() map[string]ratelimit.ProviderConfig {
	return map[string]ratelimit.ProviderConfig{
		string(model.ProviderCultural): {
			Rate:       rate.Limit(cfg.TasteDive.RatePerSec),
			Burst:      cfg.TasteDive.Burst,
			QueueDepth: cfg.TasteDive.QueueDepth,
		},
		string(model.ProviderSearch): {
			Rate:       rate.Limit(cfg.SearchIndex.RatePerSec),
			Burst:      cfg.SearchIndex.Burst,
			QueueDepth: cfg.SearchIndex.QueueDepth,
		},
		string(model.ProviderPlaces): {
			Rate:       rate.Limit(cfg.Places.RatePerSec),
			Burst:      cfg.Places.Burst,
			QueueDepth: cfg.Places.QueueDepth,
		},
		string(model.ProviderTextGen): {
			Rate:       rate.Limit(cfg.Anthropic.RatePerSec),
			Burst:      cfg.Anthropic.Burst,
			QueueDepth: cfg.Anthropic.QueueDepth,
		},
	}
}
