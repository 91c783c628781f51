// Package whatsapp sends WhatsApp messages through a provider selected by tag.
package whatsapp

import (
	"context"
	"errors"
)

type Message struct {
	To       string
	Body     string
	MediaURL string
}

// Result reports the outcome of a send. Providers never return errors;
// failures are reported with OK=false.
type Result struct {
	OK                bool
	ProviderMessageID string
	Error             string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) Result
}

// Factory builds a provider from the decrypted settings config.
type Factory interface {
	Provider() string
	New(cfg map[string]string) (Provider, error)
}

var (
	ErrProviderNotFound = errors.New("whatsapp_provider_not_found")
	ErrMissingConfig    = errors.New("whatsapp_provider_config_missing")
)
