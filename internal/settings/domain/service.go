package domain

import (
	"context"
	"errors"
)

// UpdateRequest patches settings; nil fields are left unchanged and an empty
// string clears a secret.
type UpdateRequest struct {
	InstantEnabled     *bool             `json:"instant_enabled"`
	DeliveryDelayHours *int              `json:"delivery_delay_hours"`
	ManualConfirmation *bool             `json:"manual_confirmation"`
	TextAPIKey         *string           `json:"text_api_key"`
	TextModel          *string           `json:"text_model"`
	MusicAPIKey        *string           `json:"music_api_key"`
	MusicModel         *string           `json:"music_model"`
	MusicCallbackURL   *string           `json:"music_callback_url"`
	WhatsAppProvider   *string           `json:"whatsapp_provider"`
	WhatsAppConfig     map[string]string `json:"whatsapp_config"`
}

type Service interface {
	Resolve(ctx context.Context) (Resolved, error)
	View(ctx context.Context) (View, error)
	Update(ctx context.Context, req UpdateRequest) (View, error)
}

var (
	ErrEncryptionKeyMissing = errors.New("settings_encryption_key_missing")
	ErrInvalidCiphertext    = errors.New("settings_ciphertext_invalid")
	ErrInvalidDeliveryDelay = errors.New("invalid_delivery_delay")
	ErrInvalidProvider      = errors.New("invalid_whatsapp_provider")
	ErrInvalidCallbackURL   = errors.New("invalid_music_callback_url")
)
