package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "delivery_pending"
	DeliveryScheduled DeliveryStatus = "delivery_scheduled"
	Delivered         DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "delivery_failed"
)

// Order is the unit of work driven through generation and delivery.
type Order struct {
	ID                    snowflake.ID   `gorm:"primaryKey" json:"id"`
	Status                Status         `gorm:"type:varchar(32);not null;index:idx_orders_status_created,priority:1" json:"status"`
	DeliveryStatus        DeliveryStatus `gorm:"type:varchar(32);not null" json:"delivery_status"`
	Input                 Input          `gorm:"type:jsonb;not null" json:"input"`
	LyricsText            *string        `gorm:"type:text" json:"lyrics_text,omitempty"`
	MoodDescription       *string        `gorm:"type:text" json:"mood_description,omitempty"`
	MusicTaskID           *string        `gorm:"type:varchar(128);index" json:"music_task_id,omitempty"`
	TrackURL              *string        `gorm:"type:text" json:"track_url,omitempty"`
	TrackMetadata         TrackMetadata  `gorm:"type:jsonb;not null" json:"track_metadata"`
	ErrorMessage          *string        `gorm:"type:text" json:"error_message,omitempty"`
	GenerationStartedAt   *time.Time     `json:"generation_started_at,omitempty"`
	GenerationCompletedAt *time.Time     `json:"generation_completed_at,omitempty"`
	DeliveryScheduledAt   *time.Time     `gorm:"index" json:"delivery_scheduled_at,omitempty"`
	DeliveredAt           *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt             time.Time      `gorm:"not null;index:idx_orders_status_created,priority:2" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// HasTrack reports whether music generation produced at least one usable track.
func (o *Order) HasTrack() bool {
	return o != nil && o.TrackURL != nil && strings.TrimSpace(*o.TrackURL) != ""
}

// HasTaskInFlight reports whether a music task was submitted for the order.
func (o *Order) HasTaskInFlight() bool {
	return o != nil && strings.TrimSpace(o.TrackMetadata.TaskID) != ""
}

type MusicPreferences struct {
	Genre       string `json:"genre,omitempty"`
	Mood        string `json:"mood,omitempty"`
	Vibe        string `json:"vibe,omitempty"`
	Tempo       string `json:"tempo,omitempty"`
	Language    string `json:"language,omitempty"`
	VocalGender string `json:"vocalGender,omitempty"`
}

type Contact struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	WhatsApp string `json:"whatsapp,omitempty"`
}

// Input is the customer's submission. Only blank music preferences are ever
// rewritten, by enrichment.
type Input struct {
	RecipientName    string           `json:"recipientName"`
	Occasion         string           `json:"occasion,omitempty"`
	Story            string           `json:"story"`
	MusicPreferences MusicPreferences `json:"musicPreferences"`
	Contact          Contact          `json:"contact"`
}

// Vars exposes the input as template variables.
func (in Input) Vars() map[string]string {
	return map[string]string{
		"recipientName": in.RecipientName,
		"occasion":      in.Occasion,
		"story":         in.Story,
		"genre":         in.MusicPreferences.Genre,
		"mood":          in.MusicPreferences.Mood,
		"vibe":          in.MusicPreferences.Vibe,
		"tempo":         in.MusicPreferences.Tempo,
		"language":      in.MusicPreferences.Language,
		"vocalGender":   in.MusicPreferences.VocalGender,
		"senderName":    in.Contact.Name,
	}
}

func (in Input) Value() (driver.Value, error) {
	return marshalJSONColumn(in)
}

func (in *Input) Scan(value any) error {
	return scanJSONColumn(value, in)
}

type StyleAudit struct {
	TemplateVersion int    `json:"templateVersion,omitempty"`
	Genre           string `json:"genre,omitempty"`
	Mood            string `json:"mood,omitempty"`
	Vibe            string `json:"vibe,omitempty"`
	Tempo           string `json:"tempo,omitempty"`
}

type CallbackRecord struct {
	Type       string    `json:"callbackType,omitempty"`
	Code       int       `json:"code,omitempty"`
	Message    string    `json:"msg,omitempty"`
	TrackURLs  []string  `json:"trackUrls,omitempty"`
	Count      int       `json:"count"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// TrackMetadata is the typed music generation state kept on the order.
type TrackMetadata struct {
	TaskID        string          `json:"taskId,omitempty"`
	Status        string          `json:"status,omitempty"`
	Model         string          `json:"model,omitempty"`
	Title         string          `json:"title,omitempty"`
	Style         string          `json:"style,omitempty"`
	Tracks        []string        `json:"tracks,omitempty"`
	Mocked        bool            `json:"mocked,omitempty"`
	BlockedReason string          `json:"blockedReason,omitempty"`
	StyleAudit    *StyleAudit     `json:"styleAudit,omitempty"`
	SubmittedAt   *time.Time      `json:"submittedAt,omitempty"`
	LastPolledAt  *time.Time      `json:"lastPolledAt,omitempty"`
	PollCount     int             `json:"pollCount,omitempty"`
	Callback      *CallbackRecord `json:"callback,omitempty"`
}

// AllTracks merges polled tracks with any delivered by callback, preserving order.
func (m TrackMetadata) AllTracks() []string {
	var sources [][]string
	sources = append(sources, m.Tracks)
	if m.Callback != nil {
		sources = append(sources, m.Callback.TrackURLs)
	}
	return MergeTracks(sources...)
}

func (m TrackMetadata) Value() (driver.Value, error) {
	return marshalJSONColumn(m)
}

func (m *TrackMetadata) Scan(value any) error {
	return scanJSONColumn(value, m)
}

// MergeTracks unions track URL lists, dropping blanks and duplicates.
func MergeTracks(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range lists {
		for _, url := range list {
			url = strings.TrimSpace(url)
			if url == "" {
				continue
			}
			if _, ok := seen[url]; ok {
				continue
			}
			seen[url] = struct{}{}
			out = append(out, url)
		}
	}
	return out
}

func marshalJSONColumn(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSONColumn(value any, dest any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.Join(ErrCorruptPayload, err)
	}
	return nil
}
