package tastedive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimilar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/similar", r.URL.Path)
		assert.Equal(t, "korean street food", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("k"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"similar":{"info":[{"name":"korean street food","type":"theme"}],
			"results":[{"name":"Gwangjang Market","type":"place","wTeaser":"historic market"}]}}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.Similar(context.Background(), SimilarRequest{Query: "korean street food", Limit: 5})
	require.NoError(t, err)
	require.Len(t, resp.Similar.Results, 1)
	assert.Equal(t, "Gwangjang Market", resp.Similar.Results[0].Name)
	assert.Equal(t, "historic market", resp.Similar.Results[0].Description)
}

func TestSimilar_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Similar(context.Background(), SimilarRequest{Query: "anything"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestSimilar_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"similar": [not json`))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Similar(context.Background(), SimilarRequest{Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
