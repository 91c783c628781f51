package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/songgift/pkg/db/pagination"
)

type CreateOrderRequest struct {
	RecipientName    string           `json:"recipientName"`
	Occasion         string           `json:"occasion"`
	Story            string           `json:"story"`
	MusicPreferences MusicPreferences `json:"musicPreferences"`
	Contact          Contact          `json:"contact"`
}

type ListOrderRequest struct {
	PageToken      string
	PageSize       int
	Status         string
	DeliveryStatus string
}

type ListOrderResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

// PublicView is what the customer sees. It never carries error text.
type PublicView struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	TrackURL string   `json:"track_url,omitempty"`
	Tracks   []string `json:"tracks,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (Order, error)
	Confirm(ctx context.Context, id string) (Order, error)
	GetByID(ctx context.Context, id string) (Order, error)
	GetPublicView(ctx context.Context, id string) (PublicView, error)
	List(ctx context.Context, req ListOrderRequest) (ListOrderResponse, error)
	// ResetGeneration clears every generation field and puts the order back to processing.
	// Callers must hold the order's generation lock.
	ResetGeneration(ctx context.Context, id string) (Order, error)
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidRecipientName = errors.New("invalid_recipient_name")
	ErrInvalidStory         = errors.New("invalid_story")
	ErrInvalidWhatsApp      = errors.New("invalid_whatsapp")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrNotFound             = errors.New("order_not_found")
	ErrCorruptPayload       = errors.New("order_payload_corrupt")
)
