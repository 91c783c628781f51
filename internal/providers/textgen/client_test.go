package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSendsChatCompletion(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  [Verse] hello  "}}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL + "/v1/"}, WithHTTPClient(srv.Client()))
	temp := 0.7
	out, err := client.Generate(context.Background(), GenerateRequest{
		APIKey:       "sk-test",
		Prompt:       "write lyrics",
		SystemPrompt: "you are a songwriter",
		Temperature:  &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "[Verse] hello", out)

	assert.Equal(t, defaultModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "write lyrics", got.Messages[1].Content)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.7, *got.Temperature, 0.0001)
}

func TestGenerateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})

	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrAPIKeyRequired)

	_, err = client.Generate(context.Background(), GenerateRequest{APIKey: "k", Prompt: "x"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestDecodeJSON(t *testing.T) {
	type prefs struct {
		Mood  string `json:"mood"`
		Tempo string `json:"tempo"`
	}

	cases := []struct {
		name    string
		content string
	}{
		{"plain", `{"mood":"warm","tempo":"slow"}`},
		{"fenced", "```json\n{\"mood\":\"warm\",\"tempo\":\"slow\"}\n```"},
		{"prose", "Sure! Here you go: {\"mood\":\"warm\",\"tempo\":\"slow\"} Enjoy."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out prefs
			require.NoError(t, DecodeJSON(tc.content, &out))
			assert.Equal(t, prefs{Mood: "warm", Tempo: "slow"}, out)
		})
	}

	var out prefs
	assert.Error(t, DecodeJSON("no json here", &out))
	assert.Error(t, DecodeJSON("", &out))
}

type countingTransport struct {
	calls int
	next  http.RoundTripper
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls++
	return c.next.RoundTrip(r)
}

func TestWithHTTPClientReplacesTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	transport := &countingTransport{next: http.DefaultTransport}
	client := NewClient(Config{BaseURL: srv.URL}, WithHTTPClient(&http.Client{Transport: transport}), WithHTTPClient(nil))
	out, err := client.Generate(context.Background(), GenerateRequest{APIKey: "k", Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, transport.calls)
}
