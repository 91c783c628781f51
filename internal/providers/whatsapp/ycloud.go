package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ProviderYCloud = "ycloud"

// YCloudProvider sends through the YCloud WhatsApp API.
type YCloudProvider struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

func (p *YCloudProvider) Name() string { return ProviderYCloud }

type ycloudText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type ycloudMedia struct {
	Link string `json:"link"`
}

type ycloudRequest struct {
	From  string       `json:"from"`
	To    string       `json:"to"`
	Type  string       `json:"type"`
	Text  *ycloudText  `json:"text,omitempty"`
	Audio *ycloudMedia `json:"audio,omitempty"`
}

type ycloudResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *YCloudProvider) Send(ctx context.Context, msg Message) Result {
	res := p.send(ctx, ycloudRequest{
		From: p.from,
		To:   msg.To,
		Type: "text",
		Text: &ycloudText{Body: msg.Body, PreviewURL: true},
	})
	if !res.OK || msg.MediaURL == "" {
		return res
	}
	// The audio attachment is a convenience; the text already carries the link.
	_ = p.send(ctx, ycloudRequest{From: p.from, To: msg.To, Type: "audio", Audio: &ycloudMedia{Link: msg.MediaURL}})
	return res
}

func (p *YCloudProvider) send(ctx context.Context, payload ycloudRequest) Result {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Result{Error: fmt.Sprintf("encode body: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/whatsapp/messages/sendDirectly", bytes.NewReader(encoded))
	if err != nil {
		return Result{Error: fmt.Sprintf("new request: %v", err)}
	}
	req.Header.Set("X-API-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{Error: fmt.Sprintf("request: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var parsed ycloudResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode >= http.StatusMultipleChoices {
		message := strings.TrimSpace(string(body))
		if parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return Result{Error: fmt.Sprintf("http %d: %s", resp.StatusCode, message)}
	}
	if strings.EqualFold(parsed.Status, "failed") {
		return Result{ProviderMessageID: parsed.ID, Error: "message rejected by provider"}
	}
	return Result{OK: true, ProviderMessageID: parsed.ID}
}

type ycloudFactory struct {
	baseURL string
	timeout time.Duration
}

func NewYCloudFactory(baseURL string, timeout time.Duration) Factory {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.ycloud.com/v2"
	}
	return &ycloudFactory{baseURL: baseURL, timeout: timeout}
}

func (f *ycloudFactory) Provider() string { return ProviderYCloud }

func (f *ycloudFactory) New(cfg map[string]string) (Provider, error) {
	apiKey := strings.TrimSpace(cfg["api_key"])
	from := strings.TrimSpace(cfg["from"])
	if apiKey == "" || from == "" {
		return nil, ErrMissingConfig
	}
	baseURL := f.baseURL
	if override := strings.TrimRight(strings.TrimSpace(cfg["base_url"]), "/"); override != "" {
		baseURL = override
	}
	return &YCloudProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: f.timeout},
	}, nil
}
