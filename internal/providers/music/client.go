// Package music is a client for a Suno-style asynchronous song generation API.
package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.sunoapi.org"
	defaultHTTPTimeout = 30 * time.Second
	defaultModel       = "V4_5"
	maxTitleRunes      = 80
)

var (
	ErrAPIKeyRequired = errors.New("music: api key required")
	ErrMissingTaskID  = errors.New("music: task id missing in response")
)

// Generator submits generation tasks and polls them.
type Generator interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Poll(ctx context.Context, apiKey, taskID string) (Task, error)
}

type SubmitRequest struct {
	APIKey       string
	CallbackURL  string
	Model        string
	Title        string
	Style        string
	Lyrics       string
	Instrumental bool
	VocalGender  string
}

// Task is the provider-side state of a generation task.
type Task struct {
	TaskID    string
	Status    string
	TrackURLs []string
}

// Ready reports whether at least one playable track exists.
func (t Task) Ready() bool { return len(t.TrackURLs) > 0 }

// TrackURL is the first produced track.
func (t Task) TrackURL() string {
	if len(t.TrackURLs) == 0 {
		return ""
	}
	return t.TrackURLs[0]
}

// Failed reports a provider-side failure status. Callers check Ready first.
func (t Task) Failed() bool {
	switch strings.ToUpper(t.Status) {
	case "CREATE_TASK_FAILED", "GENERATE_AUDIO_FAILED", "CALLBACK_EXCEPTION", "SENSITIVE_WORD_ERROR":
		return true
	}
	return false
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	client := &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type submitPayload struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl"`
	VocalGender  string `json:"vocalGender,omitempty"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// StatusError is a non-success response from the provider.
type StatusError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("music: http %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", ErrAPIKeyRequired
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = defaultModel
	}
	payload := submitPayload{
		Prompt:       req.Lyrics,
		Style:        req.Style,
		Title:        TruncateTitle(req.Title),
		CustomMode:   true,
		Instrumental: req.Instrumental,
		Model:        model,
		CallBackURL:  req.CallbackURL,
		VocalGender:  vocalGenderCode(req.VocalGender),
	}

	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/generate", req.APIKey, payload, &data); err != nil {
		return "", err
	}
	if strings.TrimSpace(data.TaskID) == "" {
		return "", ErrMissingTaskID
	}
	return data.TaskID, nil
}

type recordInfo struct {
	TaskID   string `json:"taskId"`
	Status   string `json:"status"`
	Response struct {
		SunoData []struct {
			AudioURL       string `json:"audioUrl"`
			StreamAudioURL string `json:"streamAudioUrl"`
		} `json:"sunoData"`
	} `json:"response"`
}

func (c *Client) Poll(ctx context.Context, apiKey, taskID string) (Task, error) {
	if strings.TrimSpace(apiKey) == "" {
		return Task{}, ErrAPIKeyRequired
	}
	path := "/api/v1/generate/record-info?taskId=" + url.QueryEscape(taskID)

	var data recordInfo
	if err := c.do(ctx, http.MethodGet, path, apiKey, nil, &data); err != nil {
		return Task{}, err
	}

	task := Task{TaskID: taskID, Status: strings.ToUpper(strings.TrimSpace(data.Status))}
	for _, track := range data.Response.SunoData {
		// Stream URLs appear before the final audio is rendered; only final audio counts.
		if u := strings.TrimSpace(track.AudioURL); u != "" {
			task.TrackURLs = append(task.TrackURLs, u)
		}
	}
	return task, nil
}

func (c *Client) do(ctx context.Context, method, path, apiKey string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("music: encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("music: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("music: request (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("music: read body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("music: decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices || (env.Code != 0 && env.Code != http.StatusOK) {
		return &StatusError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("music: decode data: %w", err)
	}
	return nil
}

// TruncateTitle limits a title to the provider's 80 character maximum.
func TruncateTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= maxTitleRunes {
		return title
	}
	return strings.TrimSpace(string(runes[:maxTitleRunes]))
}

func vocalGenderCode(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "male", "m", "pria", "laki-laki":
		return "m"
	case "female", "f", "wanita", "perempuan":
		return "f"
	}
	return ""
}
