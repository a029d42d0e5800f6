// Package orchestrator runs one recommendation request end to end:
// concurrent provider dispatch, merging, scoring, and prose polishing,
// with every failure absorbed into a degraded-but-complete answer.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taste-trails/localguide/internal/knowledge"
	"github.com/taste-trails/localguide/internal/model"
	"github.com/taste-trails/localguide/internal/profile"
	"github.com/taste-trails/localguide/internal/provider"
	"github.com/taste-trails/localguide/internal/ratelimit"
	"github.com/taste-trails/localguide/internal/scorer"
)

// State is one phase of the per-request state machine.
type State string

const (
	StateReceived       State = "received"
	StateDispatching    State = "dispatching"
	StateMerging        State = "merging"
	StatePolishing      State = "polishing"
	StateComplete       State = "complete"
	StatePartialFailure State = "partial_failure"
)

// Config holds the orchestrator tunables.
type Config struct {
	// RequestBudget bounds one request's wall clock, dispatch through
	// polish. Default 5s.
	RequestBudget time.Duration

	// PolishTopN is how many ranked candidates are handed to language
	// generation. Default 5.
	PolishTopN int

	// MaxCandidates caps the response. Default 10.
	MaxCandidates int
}

func (c Config) withDefaults() Config {
	if c.RequestBudget <= 0 {
		c.RequestBudget = 5 * time.Second
	}
	if c.PolishTopN <= 0 {
		c.PolishTopN = 5
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 10
	}
	return c
}

// Orchestrator owns the per-request pipeline. Safe for concurrent use;
// all mutable state lives in the shared components it holds.
type Orchestrator struct {
	registry *provider.Registry
	kb       *knowledge.Base
	scorer   *scorer.Scorer
	profiles profile.Store
	recorder *profile.Recorder
	cfg      Config

	nowFunc func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProfileStore attaches the profile source. Without one every
// request runs anonymous.
func WithProfileStore(s profile.Store) Option {
	return func(o *Orchestrator) { o.profiles = s }
}

// WithRecorder attaches the fire-and-forget profile event recorder.
func WithRecorder(r *profile.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an Orchestrator over the given adapters and knowledge
// base.
func New(registry *provider.Registry, kb *knowledge.Base, sc *scorer.Scorer, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		kb:       kb,
		scorer:   sc,
		cfg:      cfg.withDefaults(),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetRecommendation answers one query. The returned error is reserved
// for programmer misuse (nil wiring); provider failures of any severity
// degrade the response instead.
func (o *Orchestrator) GetRecommendation(ctx context.Context, query model.Query, userID string) (*model.RankedRecommendation, error) {
	if o.registry == nil || o.kb == nil || o.scorer == nil {
		return nil, eris.New("orchestrator: not fully wired")
	}

	req := &request{
		id:      uuid.New().String(),
		query:   query,
		userID:  userID,
		started: o.nowFunc(),
		state:   StateReceived,
	}
	req.log("request received", zap.String("query", query.Text))

	budgetCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestBudget)
	defer cancel()

	prof := o.loadProfile(budgetCtx, userID)
	priority := ratelimit.PriorityAnonymous
	if prof.Authenticated {
		priority = ratelimit.PriorityAuthenticated
	}

	req.transition(StateDispatching)
	results := o.dispatch(budgetCtx, req, prof, priority)

	req.transition(StateMerging)
	merged, sources, degraded := o.merge(results, query, prof)

	if len(merged) == 0 {
		// Total failure: answer from local knowledge alone.
		req.transition(StatePartialFailure)
		return o.fallbackOnly(req, query, prof), nil
	}

	for i := range merged {
		o.scorer.Score(&merged[i], prof, merged[i].Scores.Relevance, req.started)
	}
	scorer.Rank(merged)
	if len(merged) > o.cfg.MaxCandidates {
		merged = merged[:o.cfg.MaxCandidates]
	}

	req.transition(StatePolishing)
	summary, kind := o.polish(budgetCtx, req, query, merged, priority)

	if kind == model.SummaryStructured || degraded {
		req.transition(StatePartialFailure)
	} else {
		req.transition(StateComplete)
	}

	o.emitSearchLogged(userID, query)

	rec := &model.RankedRecommendation{
		RequestID:   req.id,
		Candidates:  merged,
		Summary:     summary,
		SummaryKind: kind,
		Degraded:    degraded || kind == model.SummaryStructured,
		Sources:     sources,
		Elapsed:     o.nowFunc().Sub(req.started),
		GeneratedAt: o.nowFunc().UTC(),
	}
	if degraded {
		rec.Notice = "Some recommendation sources were unavailable; results may be incomplete."
	}
	return rec, nil
}

// dispatch fans the three data providers out concurrently and waits
// for all to settle or the budget to expire. An abandoned call's late
// result is discarded; the call itself still observes the cancellation
// and records exactly one failure on its breaker when it settles.
func (o *Orchestrator) dispatch(ctx context.Context, req *request, prof *model.UserProfile, priority ratelimit.Priority) []provider.Result {
	preq := provider.Request{Query: req.query, Profile: prof}
	results := make([]provider.Result, len(model.DataProviders))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range model.DataProviders {
		i, id := i, id
		a := o.registry.Get(id)
		if a == nil {
			results[i] = provider.Result{
				Provider: id,
				Kind:     provider.KindFailure,
				Failure:  provider.FailUpstream,
				Detail:   "provider not configured",
			}
			continue
		}
		g.Go(func() error {
			ch := make(chan provider.Result, 1)
			go func() { ch <- a.Call(gctx, preq, priority) }()
			select {
			case res := <-ch:
				results[i] = res
			case <-gctx.Done():
				results[i] = provider.Result{
					Provider: id,
					Kind:     provider.KindFailure,
					Failure:  provider.FailTimeout,
					Detail:   "request budget exhausted",
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		req.log("provider settled",
			zap.String("provider", string(res.Provider)),
			zap.String("outcome", res.Kind.String()),
			zap.Duration("latency", res.Latency),
		)
	}
	return results
}

// merge folds the settled results into one deduplicated candidate set.
// degraded is true when any provider fell back or failed.
func (o *Orchestrator) merge(results []provider.Result, query model.Query, prof *model.UserProfile) (merged []model.Candidate, sources []string, degraded bool) {
	index := make(map[string]int)
	seen := make(map[string]bool)

	for _, res := range results {
		if res.Kind != provider.KindSuccess {
			degraded = true
		}
		if !res.OK() || len(res.Payload.Candidates) == 0 {
			continue
		}
		src := string(res.Provider)
		if res.Kind == provider.KindDegraded {
			src = model.ProvenanceFallback
		}
		if !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
		for _, c := range res.Payload.Candidates {
			if excluded(c, prof) {
				continue
			}
			key := identityKey(c)
			if at, ok := index[key]; ok {
				mergeInto(&merged[at], c)
				continue
			}
			index[key] = len(merged)
			merged = append(merged, c)
		}
	}
	return merged, sources, degraded
}

// fallbackOnly builds the knowledge-base-only response used when all
// three data providers failed with no fallback payloads.
func (o *Orchestrator) fallbackOnly(req *request, query model.Query, prof *model.UserProfile) *model.RankedRecommendation {
	candidates := o.kb.Candidates(query, o.cfg.MaxCandidates)
	kept := candidates[:0]
	for _, c := range candidates {
		if !excluded(c, prof) {
			kept = append(kept, c)
		}
	}
	candidates = kept

	for i := range candidates {
		o.scorer.Score(&candidates[i], prof, candidates[i].Scores.Relevance, req.started)
	}
	scorer.Rank(candidates)

	var sources []string
	if len(candidates) > 0 {
		sources = []string{model.ProvenanceFallback}
	}
	return &model.RankedRecommendation{
		RequestID:   req.id,
		Candidates:  candidates,
		Summary:     structuredSummary(req.query, candidates),
		SummaryKind: model.SummaryStructured,
		Notice:      "Live recommendation sources are currently unavailable; showing local guide knowledge only.",
		Degraded:    true,
		Sources:     sources,
		Elapsed:     o.nowFunc().Sub(req.started),
		GeneratedAt: o.nowFunc().UTC(),
	}
}

// polish asks language generation for a prose summary of the ranked
// list. Any failure or budget exhaustion downgrades to the structured
// rendering; the candidates themselves are never at risk.
func (o *Orchestrator) polish(ctx context.Context, req *request, query model.Query, ranked []model.Candidate, priority ratelimit.Priority) (string, model.SummaryKind) {
	if ctx.Err() != nil {
		req.log("budget exhausted before polish")
		return structuredSummary(query, ranked), model.SummaryStructured
	}
	a := o.registry.Get(model.ProviderTextGen)
	if a == nil {
		return structuredSummary(query, ranked), model.SummaryStructured
	}

	topN := ranked
	if len(topN) > o.cfg.PolishTopN {
		topN = topN[:o.cfg.PolishTopN]
	}
	res := a.Call(ctx, provider.Request{
		Query:  query,
		Prompt: o.polishPrompt(query, topN),
	}, priority)

	if res.Kind == provider.KindSuccess && res.Payload != nil && strings.TrimSpace(res.Payload.Text) != "" {
		return res.Payload.Text, model.SummaryProse
	}
	req.log("polish unavailable", zap.String("outcome", res.Kind.String()), zap.String("detail", res.Detail))
	return structuredSummary(query, ranked), model.SummaryStructured
}

// polishPrompt renders the generation input: the question, the ranked
// picks, and the cultural context lines relevant to the query.
func (o *Orchestrator) polishPrompt(query model.Query, top []model.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Visitor question: %s\n\nRanked picks:\n", query.Text)
	for i, c := range top {
		fmt.Fprintf(&b, "%d. %s (%s", i+1, c.Name, c.Category)
		if c.Neighborhood != "" {
			fmt.Fprintf(&b, ", %s", c.Neighborhood)
		}
		b.WriteString(")")
		if c.Description != "" {
			fmt.Fprintf(&b, " - %s", c.Description)
		}
		b.WriteString("\n")
	}
	if snippets := o.kb.ContextSnippets(query); len(snippets) > 0 {
		b.WriteString("\nCultural context:\n")
		for _, s := range snippets {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	b.WriteString("\nWrite a short, friendly recommendation summary.")
	return b.String()
}

func (o *Orchestrator) loadProfile(ctx context.Context, userID string) *model.UserProfile {
	if o.profiles == nil || userID == "" {
		return model.AnonymousProfile()
	}
	prof, err := o.profiles.GetProfile(ctx, userID)
	if err != nil {
		zap.L().Warn("profile load failed, running anonymous",
			zap.String("user_id", userID), zap.Error(err))
		return model.AnonymousProfile()
	}
	return prof
}

func (o *Orchestrator) emitSearchLogged(userID string, query model.Query) {
	if o.recorder == nil || userID == "" {
		return
	}
	o.recorder.Submit(model.ProfileEvent{
		Kind:   model.EventSearchLogged,
		UserID: userID,
		Query:  query.Text,
	})
}

// request carries per-request bookkeeping through the state machine.
type request struct {
	id      string
	query   model.Query
	userID  string
	started time.Time
	state   State
}

func (r *request) transition(to State) {
	zap.L().Debug("request state",
		zap.String("request_id", r.id),
		zap.String("from", string(r.state)),
		zap.String("to", string(to)),
	)
	r.state = to
}

func (r *request) log(msg string, fields ...zap.Field) {
	fields = append([]zap.Field{zap.String("request_id", r.id)}, fields...)
	zap.L().Debug(msg, fields...)
}
