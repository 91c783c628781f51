package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/orderevent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("orderevent.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Append(ctx context.Context, req domain.AppendRequest) (domain.Event, error) {
	if req.OrderID == 0 {
		return domain.Event{}, domain.ErrInvalidOrderID
	}
	if strings.TrimSpace(string(req.Type)) == "" {
		return domain.Event{}, domain.ErrInvalidType
	}

	event := domain.Event{
		ID:        ulid.Make().String(),
		OrderID:   req.OrderID,
		Type:      req.Type,
		CreatedAt: s.clock.Now(),
	}
	if msg := strings.TrimSpace(req.Message); msg != "" {
		event.Message = &msg
	}
	if len(req.Data) > 0 {
		event.Data = datatypes.JSONMap(req.Data)
	}

	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		return domain.Event{}, err
	}

	s.log.Debug("order event appended",
		zap.String("order_id", req.OrderID.String()),
		zap.String("event_type", string(req.Type)),
	)
	return event, nil
}

func (s *Service) Exists(ctx context.Context, orderID snowflake.ID, eventType domain.EventType) (bool, error) {
	count, err := s.repo.CountByTypes(ctx, s.db, orderID, []domain.EventType{eventType})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) Count(ctx context.Context, orderID snowflake.ID, types ...domain.EventType) (int64, error) {
	return s.repo.CountByTypes(ctx, s.db, orderID, types)
}

func (s *Service) ExistsSince(ctx context.Context, orderID snowflake.ID, marker domain.EventType, eventType domain.EventType) (bool, error) {
	count, err := s.repo.CountByTypesAfterLatest(ctx, s.db, orderID, marker, []domain.EventType{eventType})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) CountSince(ctx context.Context, orderID snowflake.ID, marker domain.EventType, types ...domain.EventType) (int64, error) {
	return s.repo.CountByTypesAfterLatest(ctx, s.db, orderID, marker, types)
}

func (s *Service) List(ctx context.Context, orderID snowflake.ID) ([]domain.Event, error) {
	if orderID == 0 {
		return nil, domain.ErrInvalidOrderID
	}
	items, err := s.repo.ListByOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(items))
	for _, item := range items {
		if item != nil {
			events = append(events, *item)
		}
	}
	return events, nil
}
