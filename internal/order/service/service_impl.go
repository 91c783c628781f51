package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/observability/metrics"
	"github.com/smallbiznis/songgift/internal/order/domain"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	"github.com/smallbiznis/songgift/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	publicMessageReceived  = "We received your order and are working on your song."
	publicMessageCompleted = "Your song is ready and on its way to you."
	publicMessageDelivered = "Your song has been delivered."
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Events  eventdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	events  eventdomain.Service
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		events:  p.Events,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	input, err := normalizeInput(req)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:             s.genID.Generate(),
		Status:         domain.StatusCreated,
		DeliveryStatus: domain.DeliveryPending,
		Input:          input,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordOrderCreated(ctx)
	s.log.Info("order created", zap.String("order_id", order.ID.String()))
	return order, nil
}

func (s *Service) Confirm(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	switch order.Status {
	case domain.StatusCreated:
	case domain.StatusProcessing:
		return *order, nil
	default:
		return domain.Order{}, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	err = s.repo.Update(ctx, s.db, order.ID, domain.Fields{
		"status":     domain.StatusProcessing,
		"updated_at": now,
	})
	if err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.StatusProcessing
	order.UpdatedAt = now
	s.log.Info("order confirmed", zap.String("order_id", order.ID.String()))
	return *order, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) GetPublicView(ctx context.Context, id string) (domain.PublicView, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return domain.PublicView{}, err
	}

	view := domain.PublicView{
		ID:      order.ID.String(),
		Status:  "processing",
		Message: publicMessageReceived,
	}
	if order.Status == domain.StatusCompleted && order.HasTrack() {
		view.Status = "ready"
		view.Message = publicMessageCompleted
		if order.DeliveryStatus == domain.Delivered {
			view.Status = "delivered"
			view.Message = publicMessageDelivered
		}
		view.TrackURL = *order.TrackURL
		view.Tracks = order.TrackMetadata.AllTracks()
	}
	return view, nil
}

func (s *Service) List(ctx context.Context, req domain.ListOrderRequest) (domain.ListOrderResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, domain.ListOrderFilter{
		Status:         domain.Status(strings.TrimSpace(req.Status)),
		DeliveryStatus: domain.DeliveryStatus(strings.TrimSpace(req.DeliveryStatus)),
	}, page)
	if err != nil {
		return domain.ListOrderResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, page.Limit(), func(order *domain.Order) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        order.ID.String(),
			CreatedAt: order.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	orders := make([]domain.Order, 0, len(items))
	for _, item := range items {
		orders = append(orders, *item)
	}
	return domain.ListOrderResponse{PageInfo: *pageInfo, Orders: orders}, nil
}

func (s *Service) ResetGeneration(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == domain.StatusCreated {
		return domain.Order{}, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	err = s.repo.Update(ctx, s.db, order.ID, domain.Fields{
		"status":                  domain.StatusProcessing,
		"delivery_status":         domain.DeliveryPending,
		"lyrics_text":             nil,
		"mood_description":        nil,
		"music_task_id":           nil,
		"track_url":               nil,
		"track_metadata":          domain.TrackMetadata{},
		"error_message":           nil,
		"generation_started_at":   nil,
		"generation_completed_at": nil,
		"delivery_scheduled_at":   nil,
		"delivered_at":            nil,
		"updated_at":              now,
	})
	if err != nil {
		return domain.Order{}, err
	}

	previous := string(order.Status)
	if _, err := s.events.Append(ctx, eventdomain.AppendRequest{
		OrderID: order.ID,
		Type:    eventdomain.EventGenerationRetryRequested,
		Message: "generation reset by operator",
		Data:    map[string]any{"previousStatus": previous},
	}); err != nil {
		// The marker opens a new delivery round; without it the regenerated
		// song would be treated as already sent.
		s.log.Warn("failed to append retry event", zap.String("order_id", order.ID.String()), zap.Error(err))
		s.metrics.RecordEventAppendFailure(ctx, string(eventdomain.EventGenerationRetryRequested))
		return domain.Order{}, fmt.Errorf("record %s: %w", eventdomain.EventGenerationRetryRequested, err)
	}

	reloaded, err := s.repo.FindByID(ctx, s.db, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	if reloaded == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	s.log.Info("order generation reset",
		zap.String("order_id", order.ID.String()),
		zap.String("previous_status", previous),
	)
	return *reloaded, nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Order, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orderID == 0 {
		return nil, domain.ErrInvalidID
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func normalizeInput(req domain.CreateOrderRequest) (domain.Input, error) {
	recipient := strings.TrimSpace(req.RecipientName)
	if recipient == "" || len(recipient) > 120 {
		return domain.Input{}, domain.ErrInvalidRecipientName
	}
	story := strings.TrimSpace(req.Story)
	if story == "" || len(story) > 5000 {
		return domain.Input{}, domain.ErrInvalidStory
	}

	whatsapp, ok := normalizeWhatsApp(req.Contact.WhatsApp)
	if !ok {
		return domain.Input{}, domain.ErrInvalidWhatsApp
	}

	email := strings.ToLower(strings.TrimSpace(req.Contact.Email))
	if email != "" && (!strings.Contains(email, "@") || strings.ContainsAny(email, " \t")) {
		return domain.Input{}, domain.ErrInvalidEmail
	}

	prefs := req.MusicPreferences
	return domain.Input{
		RecipientName: recipient,
		Occasion:      strings.TrimSpace(req.Occasion),
		Story:         story,
		MusicPreferences: domain.MusicPreferences{
			Genre:       strings.TrimSpace(prefs.Genre),
			Mood:        strings.TrimSpace(prefs.Mood),
			Vibe:        strings.TrimSpace(prefs.Vibe),
			Tempo:       strings.TrimSpace(prefs.Tempo),
			Language:    strings.TrimSpace(prefs.Language),
			VocalGender: strings.TrimSpace(prefs.VocalGender),
		},
		Contact: domain.Contact{
			Name:     strings.TrimSpace(req.Contact.Name),
			Email:    email,
			WhatsApp: whatsapp,
		},
	}, nil
}

// normalizeWhatsApp keeps digits and a leading plus; E.164 allows 8 to 15 digits.
func normalizeWhatsApp(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	var b strings.Builder
	for i, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", false
		}
	}
	number := b.String()
	digits := strings.TrimPrefix(number, "+")
	if len(digits) < 8 || len(digits) > 15 {
		return "", false
	}
	return number, true
}
