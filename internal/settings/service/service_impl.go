package service

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/config"
	"github.com/smallbiznis/songgift/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProviderChecker reports whether a WhatsApp provider tag is registered.
type ProviderChecker interface {
	ProviderExists(name string) bool
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       config.Config
	Clock     clock.Clock
	Repo      domain.Repository
	Providers ProviderChecker `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	clock            clock.Clock
	repo             domain.Repository
	box              *secretBox
	providers        ProviderChecker
	fallbackCallback string
}

func New(p Params) (domain.Service, error) {
	box, err := newSecretBox(p.Cfg.SettingsEncryptionSecret)
	if err != nil {
		return nil, err
	}
	log := p.Log.Named("settings.service")
	if !box.enabled() {
		log.Warn("SETTINGS_ENCRYPTION_SECRET is not set; provider API keys cannot be stored and pipelines run in demo mode")
	}
	return &Service{
		db:               p.DB,
		log:              log,
		clock:            p.Clock,
		repo:             p.Repo,
		box:              box,
		providers:        p.Providers,
		fallbackCallback: p.Cfg.MusicCallbackURL(),
	}, nil
}

func (s *Service) Resolve(ctx context.Context) (domain.Resolved, error) {
	row, err := s.load(ctx)
	if err != nil {
		return domain.Resolved{}, err
	}
	return s.resolve(row), nil
}

func (s *Service) resolve(row *domain.Settings) domain.Resolved {
	var err error
	resolved := domain.Resolved{
		InstantEnabled:     row.InstantEnabled,
		DeliveryDelay:      time.Duration(row.DeliveryDelayHours) * time.Hour,
		ManualConfirmation: row.ManualConfirmation,
		TextModel:          row.TextModel,
		MusicModel:         row.MusicModel,
		MusicCallbackURL:   strings.TrimSpace(row.MusicCallbackURL),
		WhatsAppProvider:   strings.ToLower(strings.TrimSpace(row.WhatsAppProvider)),
		WhatsAppConfig:     map[string]string{},
	}
	if resolved.MusicCallbackURL == "" {
		resolved.MusicCallbackURL = s.fallbackCallback
	}
	if resolved.WhatsAppProvider == "" {
		resolved.WhatsAppProvider = domain.DefaultWhatsAppProvider
	}

	// An unreadable secret degrades to demo mode rather than stalling every order.
	if resolved.TextAPIKey, err = s.box.open(row.TextAPIKey); err != nil {
		s.log.Warn("text api key unreadable", zap.Error(err))
		resolved.TextAPIKey = ""
	}
	if resolved.MusicAPIKey, err = s.box.open(row.MusicAPIKey); err != nil {
		s.log.Warn("music api key unreadable", zap.Error(err))
		resolved.MusicAPIKey = ""
	}
	if plain, err := s.box.open(row.WhatsAppConfig); err != nil {
		s.log.Warn("whatsapp config unreadable", zap.Error(err))
	} else if plain != "" {
		if err := json.Unmarshal([]byte(plain), &resolved.WhatsAppConfig); err != nil {
			s.log.Warn("whatsapp config malformed", zap.Error(err))
			resolved.WhatsAppConfig = map[string]string{}
		}
	}
	return resolved
}

func (s *Service) View(ctx context.Context) (domain.View, error) {
	row, err := s.load(ctx)
	if err != nil {
		return domain.View{}, err
	}
	return s.toView(row, s.resolve(row)), nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (domain.View, error) {
	row, err := s.load(ctx)
	if err != nil {
		return domain.View{}, err
	}

	if req.InstantEnabled != nil {
		row.InstantEnabled = *req.InstantEnabled
	}
	if req.DeliveryDelayHours != nil {
		if *req.DeliveryDelayHours < 0 || *req.DeliveryDelayHours > 24*30 {
			return domain.View{}, domain.ErrInvalidDeliveryDelay
		}
		row.DeliveryDelayHours = *req.DeliveryDelayHours
	}
	if req.ManualConfirmation != nil {
		row.ManualConfirmation = *req.ManualConfirmation
	}
	if req.TextModel != nil {
		row.TextModel = strings.TrimSpace(*req.TextModel)
	}
	if req.MusicModel != nil {
		row.MusicModel = strings.TrimSpace(*req.MusicModel)
	}
	if req.MusicCallbackURL != nil {
		callback := strings.TrimSpace(*req.MusicCallbackURL)
		if callback != "" {
			parsed, err := url.Parse(callback)
			if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
				return domain.View{}, domain.ErrInvalidCallbackURL
			}
		}
		row.MusicCallbackURL = callback
	}
	if req.WhatsAppProvider != nil {
		provider := strings.ToLower(strings.TrimSpace(*req.WhatsAppProvider))
		if provider == "" || (s.providers != nil && !s.providers.ProviderExists(provider)) {
			return domain.View{}, domain.ErrInvalidProvider
		}
		row.WhatsAppProvider = provider
	}
	if req.TextAPIKey != nil {
		if row.TextAPIKey, err = s.box.seal(strings.TrimSpace(*req.TextAPIKey)); err != nil {
			return domain.View{}, err
		}
	}
	if req.MusicAPIKey != nil {
		if row.MusicAPIKey, err = s.box.seal(strings.TrimSpace(*req.MusicAPIKey)); err != nil {
			return domain.View{}, err
		}
	}
	if req.WhatsAppConfig != nil {
		sealed := ""
		if len(req.WhatsAppConfig) > 0 {
			raw, err := json.Marshal(req.WhatsAppConfig)
			if err != nil {
				return domain.View{}, err
			}
			if sealed, err = s.box.seal(string(raw)); err != nil {
				return domain.View{}, err
			}
		}
		row.WhatsAppConfig = sealed
	}

	row.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, s.db, row); err != nil {
		return domain.View{}, err
	}
	s.log.Info("settings updated",
		zap.Bool("instant_enabled", row.InstantEnabled),
		zap.Int("delivery_delay_hours", row.DeliveryDelayHours),
		zap.Bool("manual_confirmation", row.ManualConfirmation),
		zap.String("whatsapp_provider", row.WhatsAppProvider),
	)

	return s.toView(row, s.resolve(row)), nil
}

func (s *Service) load(ctx context.Context) (*domain.Settings, error) {
	return s.repo.GetOrCreate(ctx, s.db, domain.Defaults(s.clock.Now()))
}

func (s *Service) toView(row *domain.Settings, resolved domain.Resolved) domain.View {
	waConfig := make(map[string]string, len(resolved.WhatsAppConfig))
	for k, v := range resolved.WhatsAppConfig {
		if isSecretKey(k) {
			v = mask(v)
		}
		waConfig[k] = v
	}
	return domain.View{
		InstantEnabled:     row.InstantEnabled,
		DeliveryDelayHours: row.DeliveryDelayHours,
		ManualConfirmation: row.ManualConfirmation,
		TextAPIKey:         mask(resolved.TextAPIKey),
		TextModel:          row.TextModel,
		MusicAPIKey:        mask(resolved.MusicAPIKey),
		MusicModel:         row.MusicModel,
		MusicCallbackURL:   row.MusicCallbackURL,
		WhatsAppProvider:   resolved.WhatsAppProvider,
		WhatsAppConfig:     waConfig,
		UpdatedAt:          row.UpdatedAt,
	}
}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	return strings.Contains(key, "key") || strings.Contains(key, "token") || strings.Contains(key, "secret")
}
