package domain

import "time"

const SingletonID uint = 1

const (
	DefaultDeliveryDelayHours = 24
	DefaultWhatsAppProvider   = "mock"
)

// Settings is the singleton operational configuration row. API keys and the
// WhatsApp provider config are stored as encrypted envelopes.
type Settings struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	InstantEnabled     bool      `gorm:"not null;default:false" json:"instant_enabled"`
	DeliveryDelayHours int       `gorm:"not null;default:24" json:"delivery_delay_hours"`
	ManualConfirmation bool      `gorm:"not null;default:false" json:"manual_confirmation"`
	TextAPIKey         string    `gorm:"column:text_api_key;type:text" json:"-"`
	TextModel          string    `gorm:"column:text_model;type:varchar(128)" json:"text_model"`
	MusicAPIKey        string    `gorm:"column:music_api_key;type:text" json:"-"`
	MusicModel         string    `gorm:"column:music_model;type:varchar(64)" json:"music_model"`
	MusicCallbackURL   string    `gorm:"column:music_callback_url;type:text" json:"music_callback_url"`
	WhatsAppProvider   string    `gorm:"column:whatsapp_provider;type:varchar(32);not null;default:'mock'" json:"whatsapp_provider"`
	WhatsAppConfig     string    `gorm:"column:whatsapp_config;type:text" json:"-"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`
}

func (Settings) TableName() string { return "settings" }

func Defaults(now time.Time) Settings {
	return Settings{
		ID:                 SingletonID,
		DeliveryDelayHours: DefaultDeliveryDelayHours,
		WhatsAppProvider:   DefaultWhatsAppProvider,
		UpdatedAt:          now,
	}
}

// Resolved is the decrypted view consumed by the pipelines.
type Resolved struct {
	InstantEnabled     bool
	DeliveryDelay      time.Duration
	ManualConfirmation bool
	TextAPIKey         string
	TextModel          string
	MusicAPIKey        string
	MusicModel         string
	MusicCallbackURL   string
	WhatsAppProvider   string
	WhatsAppConfig     map[string]string
}

// View is the admin-facing projection with secrets masked.
type View struct {
	InstantEnabled     bool              `json:"instant_enabled"`
	DeliveryDelayHours int               `json:"delivery_delay_hours"`
	ManualConfirmation bool              `json:"manual_confirmation"`
	TextAPIKey         string            `json:"text_api_key"`
	TextModel          string            `json:"text_model"`
	MusicAPIKey        string            `json:"music_api_key"`
	MusicModel         string            `json:"music_model"`
	MusicCallbackURL   string            `json:"music_callback_url"`
	WhatsAppProvider   string            `json:"whatsapp_provider"`
	WhatsAppConfig     map[string]string `json:"whatsapp_config"`
	UpdatedAt          time.Time         `json:"updated_at"`
}
