package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelichko/defect-classifier/internal/common"
)

func newClient(t *testing.T, baseURL string) *ChatClient {
	t.Helper()
	c, err := NewChatClient(Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   "test-model",
	}, nil)
	require.NoError(t, err)
	return c
}

func assistantEnvelope(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func TestNewChatClient_RequiresAPIKey(t *testing.T) {
	_, err := NewChatClient(Config{BaseURL: "http://x", Model: "m"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestChatClient_Split(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, assistantEnvelope(`{"results":[{"defects":[{"text":"Трещина в стене"}]}]}`))
	}))
	defer srv.Close()

	got, err := newClient(t, srv.URL).Split(context.Background(), []string{"трещина в стене"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Трещина в стене", got[0].Defects[0].Text)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "json_object", gotReq.ResponseFormat.Type)
	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
}

func TestChatClient_Classify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, assistantEnvelope(`{"results":[{"chosen":"Трещина в стене"}]}`))
	}))
	defer srv.Close()

	got, err := newClient(t, srv.URL).Classify(context.Background(), []ClassifyItem{
		{Defect: "трещина", Candidates: []string{"Трещина в стене", "НЕ ОПРЕДЕЛЕНО"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Трещина в стене", got[0].Chosen)
}

func TestChatClient_Non2xxIsExternalServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Split(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExternalService)
}

func TestChatClient_TruncatedBodyIsExternalServiceError(t *testing.T) {
	// Announce a body larger than what gets written: the client's body read
	// fails mid-stream, which must surface as a retryable external-service
	// error, not a parse error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[`))
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Split(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExternalService)
	assert.NotErrorIs(t, err, common.ErrParse)
}

func TestChatClient_NoChoicesIsExternalServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).Split(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExternalService)
}
