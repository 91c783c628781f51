package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EventType string

const (
	EventGenerationStarted           EventType = "generation_started"
	EventPreferencesEnriched         EventType = "preferences_enriched"
	EventPreferencesEnrichmentFailed EventType = "preferences_enrichment_failed"
	EventLyricsGenerated             EventType = "lyrics_generated"
	EventMoodGenerated               EventType = "mood_generated"
	EventMusicTaskSubmitted          EventType = "music_task_submitted"
	EventMusicGenerationBlocked      EventType = "music_generation_blocked"
	EventMusicStatusPolled           EventType = "music_status_polled"
	EventMusicGenerated              EventType = "music_generated"
	EventGenerationCompleted         EventType = "generation_completed"
	EventGenerationFailed            EventType = "generation_failed"
	EventGenerationRetryableError    EventType = "generation_retryable_error"
	EventGenerationRetryRequested    EventType = "generation_retry_requested"
	EventMusicCallbackReceived       EventType = "music_callback_received"

	EventEmailSongSent          EventType = "email_song_sent"
	EventEmailSongFailed        EventType = "email_song_failed"
	EventWhatsAppReminderSent   EventType = "whatsapp_reminder_sent"
	EventWhatsAppReminderFailed EventType = "whatsapp_reminder_failed"
	EventDeliveryException      EventType = "delivery_exception"
	EventDeliveryRetryScheduled EventType = "delivery_retry_scheduled"
	EventDeliveryRetryableError EventType = "delivery_retryable_error"
	EventDeliveryFailed         EventType = "delivery_failed"
	EventDelivered              EventType = "delivered"
)

// DeliveryFailureTypes feed the delivery backoff schedule.
var DeliveryFailureTypes = []EventType{
	EventEmailSongFailed,
	EventWhatsAppReminderFailed,
	EventDeliveryException,
}

// RoundMarker opens a new generation round. Delivery idempotency and
// backoff only look at events appended after the latest marker, so a
// regenerated song is delivered again.
const RoundMarker = EventGenerationRetryRequested

// Event is an append-only fact about an order. Rows are never updated.
type Event struct {
	ID        string            `gorm:"primaryKey;type:varchar(26)" json:"id"`
	OrderID   snowflake.ID      `gorm:"not null;index:idx_order_events_order_type,priority:1" json:"order_id"`
	Type      EventType         `gorm:"type:varchar(64);not null;index:idx_order_events_order_type,priority:2" json:"type"`
	Message   *string           `gorm:"type:text" json:"message,omitempty"`
	Data      datatypes.JSONMap `gorm:"type:jsonb" json:"data,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
}

func (Event) TableName() string { return "order_events" }
