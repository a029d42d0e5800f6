package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taste-trails/localguide/internal/knowledge"
	"github.com/taste-trails/localguide/internal/model"
	"github.com/taste-trails/localguide/internal/observe"
	"github.com/taste-trails/localguide/internal/orchestrator"
	"github.com/taste-trails/localguide/internal/provider"
	"github.com/taste-trails/localguide/internal/scorer"
)

// newTestEnv wires an app with no providers configured: every request
// resolves from the knowledge base.
func newTestEnv(t *testing.T) *appEnv {
	t.Helper()
	return &appEnv{
		Orchestrator: orchestrator.New(
			provider.NewRegistry(), knowledge.MustLoad(),
			scorer.New(scorer.Config{}), orchestrator.Config{}),
		Collector: observe.NewCollector(),
	}
}

func TestServeHealth(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestServeStatus(t *testing.T) {
	env := newTestEnv(t)
	env.Collector.Record(observe.Event{Provider: "search-index", Outcome: observe.OutcomeSuccess})
	router := newRouter(env)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var snap observe.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.Providers["search-index"].Success)
}

func TestServeRecommendation_BadBody(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/recommendation",
		strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServeRecommendation_MissingQuery(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/recommendation",
		strings.NewReader(`{"user_id":"u1"}`)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "query is required")
}

func TestServeRecommendation_AnswersFromFallback(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/recommendation",
		strings.NewReader(`{"query":"traditional food in insadong"}`)))

	require.Equal(t, http.StatusOK, rr.Code)
	var rec model.RankedRecommendation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.True(t, rec.Degraded)
	assert.NotEmpty(t, rec.Candidates)
	assert.Equal(t, []string{model.ProvenanceFallback}, rec.Sources)
}
