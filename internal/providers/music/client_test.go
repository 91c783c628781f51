package music

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	var got submitPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/generate", r.URL.Path)
		assert.Equal(t, "Bearer suno-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"task-1"}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL}, WithHTTPClient(srv.Client()))
	taskID, err := client.Submit(context.Background(), SubmitRequest{
		APIKey:      "suno-key",
		CallbackURL: "https://gift.example.com/api/webhooks/music",
		Title:       strings.Repeat("a", 100),
		Style:       "pop, warm",
		Lyrics:      "[Verse] hi",
		VocalGender: "female",
	})
	require.NoError(t, err)
	assert.Equal(t, "task-1", taskID)

	assert.Len(t, got.Title, 80)
	assert.True(t, got.CustomMode)
	assert.Equal(t, defaultModel, got.Model)
	assert.Equal(t, "f", got.VocalGender)
	assert.Equal(t, "https://gift.example.com/api/webhooks/music", got.CallBackURL)
}

func TestSubmitProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":429,"msg":"insufficient credits"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Submit(context.Background(), SubmitRequest{APIKey: "k"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 429, statusErr.Code)
}

func TestPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/generate/record-info", r.URL.Path)
		assert.Equal(t, "task-1", r.URL.Query().Get("taskId"))
		_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"task-1","status":"SUCCESS","response":{"sunoData":[
			{"audioUrl":"https://cdn.example.com/a.mp3"},
			{"audioUrl":"","streamAudioUrl":"https://cdn.example.com/stream"},
			{"audioUrl":"https://cdn.example.com/b.mp3"}]}}}`))
	}))
	defer srv.Close()

	task, err := NewClient(Config{BaseURL: srv.URL}).Poll(context.Background(), "k", "task-1")
	require.NoError(t, err)
	assert.True(t, task.Ready())
	assert.False(t, task.Failed())
	assert.Equal(t, "https://cdn.example.com/a.mp3", task.TrackURL())
	assert.Equal(t, []string{"https://cdn.example.com/a.mp3", "https://cdn.example.com/b.mp3"}, task.TrackURLs)
}

func TestTaskFailed(t *testing.T) {
	assert.True(t, Task{Status: "GENERATE_AUDIO_FAILED"}.Failed())
	assert.False(t, Task{Status: "PENDING"}.Failed())
	assert.False(t, Task{Status: "PENDING"}.Ready())
}

func TestParseCallback(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"code":200,"msg":"ok","data":{"task_id":"task-9","callbackType":"complete","data":[{"audio_url":"https://cdn.example.com/x.mp3"},{"audio_url":""}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "task-9", cb.TaskID)
	assert.Equal(t, "complete", cb.Type)
	assert.Equal(t, []string{"https://cdn.example.com/x.mp3"}, cb.TrackURLs)

	cb, err = ParseCallback([]byte(`{"data":{}}`))
	require.NoError(t, err)
	assert.Empty(t, cb.TaskID)

	_, err = ParseCallback([]byte(`not json`))
	assert.Error(t, err)
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
		_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"task-9","status":"PENDING"}}`))
	}))
	defer srv.Close()

	transport := &countingTransport{next: http.DefaultTransport}
	client := NewClient(Config{BaseURL: srv.URL}, WithHTTPClient(&http.Client{Transport: transport}), WithHTTPClient(nil))
	task, err := client.Poll(context.Background(), "k", "task-9")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", task.Status)
	assert.Equal(t, 1, transport.calls)
}
