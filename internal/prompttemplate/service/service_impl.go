package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/prompttemplate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("prompttemplate.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Active(ctx context.Context) (domain.ActiveSet, error) {
	items, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	set := make(domain.ActiveSet, len(items))
	for _, item := range items {
		// Highest version wins if a publish ever left two rows active.
		if _, ok := set[item.Type]; !ok {
			set[item.Type] = item
		}
	}
	return set, nil
}

func (s *Service) Versions(ctx context.Context, t domain.Type) ([]domain.Template, error) {
	if !t.Valid() {
		return nil, domain.ErrInvalidType
	}
	return s.repo.ListByType(ctx, s.db, t)
}

func (s *Service) Publish(ctx context.Context, req domain.PublishRequest) (*domain.Template, error) {
	if !req.Type.Valid() {
		return nil, domain.ErrInvalidType
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, domain.ErrInvalidBody
	}

	var tmpl *domain.Template
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version, err := s.repo.MaxVersion(ctx, tx, req.Type)
		if err != nil {
			return err
		}
		if err := s.repo.Deactivate(ctx, tx, req.Type); err != nil {
			return err
		}
		tmpl = &domain.Template{
			ID:           s.genID.Generate(),
			Type:         req.Type,
			Version:      version + 1,
			Body:         body,
			SystemPrompt: strings.TrimSpace(req.SystemPrompt),
			IsActive:     true,
			CreatedAt:    s.clock.Now(),
		}
		return s.repo.Insert(ctx, tx, tmpl)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("prompt template published",
		zap.String("type", string(tmpl.Type)),
		zap.Int("version", tmpl.Version),
		zap.Strings("placeholders", domain.Placeholders(tmpl.Body)),
	)
	return tmpl, nil
}

func (s *Service) EnsureDefaults(ctx context.Context) error {
	active, err := s.Active(ctx)
	if err != nil {
		return err
	}
	for _, def := range domain.DefaultTemplates {
		if _, ok := active[def.Type]; ok {
			continue
		}
		if _, err := s.Publish(ctx, def); err != nil {
			return err
		}
	}
	return nil
}
