// Package generation advances an order through enrichment, lyrics, mood,
// music and completion. Every stage is skipped once its output is stored, so
// Advance is safe to call on any cadence.
package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/config"
	"github.com/smallbiznis/songgift/internal/observability/logger"
	"github.com/smallbiznis/songgift/internal/observability/metrics"
	"github.com/smallbiznis/songgift/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	templatedomain "github.com/smallbiznis/songgift/internal/prompttemplate/domain"
	"github.com/smallbiznis/songgift/internal/providers/music"
	"github.com/smallbiznis/songgift/internal/providers/textgen"
	settingsdomain "github.com/smallbiznis/songgift/internal/settings/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result describes what one Advance call achieved.
type Result struct {
	Pending   bool
	Skipped   bool
	Completed bool
	Reason    string
	TaskID    string
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Orders    orderdomain.Repository
	Events    eventdomain.Service
	Templates templatedomain.Service
	Settings  settingsdomain.Service
	Text      textgen.Generator
	Music     music.Generator
	Pipeline  *config.PipelineConfigHolder `optional:"true"`
	Metrics   *metrics.Metrics             `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	orders    orderdomain.Repository
	events    eventdomain.Service
	templates templatedomain.Service
	settings  settingsdomain.Service
	text      textgen.Generator
	music     music.Generator
	pipeline  *config.PipelineConfigHolder
	metrics   *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("generation"),
		clock:     p.Clock,
		orders:    p.Orders,
		events:    p.Events,
		templates: p.Templates,
		settings:  p.Settings,
		text:      p.Text,
		music:     p.Music,
		pipeline:  p.Pipeline,
		metrics:   p.Metrics,
	}
}

// run carries the per-call state shared by the stages.
type run struct {
	order     *orderdomain.Order
	templates templatedomain.ActiveSet
	settings  settingsdomain.Resolved
	cfg       config.PipelineConfig
	log       *zap.Logger
}

func (s *Service) Advance(ctx context.Context, orderID snowflake.ID) (Result, error) {
	ctx, span := tracing.StartWorkerSpan(ctx, "generation.advance", attribute.String("order_id", orderID.String()))
	defer span.End()

	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return Result{}, err
	}
	if order == nil {
		return Result{Skipped: true, Reason: "order_not_found"}, nil
	}
	if order.Status != orderdomain.StatusProcessing {
		return Result{Skipped: true, Reason: "status_" + string(order.Status)}, nil
	}
	if order.GenerationCompletedAt != nil {
		return Result{Skipped: true, Reason: "already_completed"}, nil
	}

	templates, err := s.templates.Active(ctx)
	if err != nil {
		return Result{}, err
	}
	if missing := templates.Missing(); len(missing) > 0 {
		return Result{}, fmt.Errorf("%w: %v", ErrTemplatesMissing, missing)
	}
	settings, err := s.settings.Resolve(ctx)
	if err != nil {
		return Result{}, err
	}

	r := &run{
		order:     order,
		templates: templates,
		settings:  settings,
		cfg:       s.pipeline.Get(),
		log:       logger.WithOrder(logger.WithContext(ctx, s.log), order.ID.String()),
	}

	if order.GenerationStartedAt == nil {
		now := s.clock.Now()
		if err := s.update(ctx, order.ID, orderdomain.Fields{"generation_started_at": now}); err != nil {
			return Result{}, err
		}
		order.GenerationStartedAt = &now
		s.emit(ctx, order.ID, eventdomain.EventGenerationStarted, "generation started", nil)
	}

	if order.LyricsText == nil && settings.TextAPIKey != "" && needsEnrichment(order.Input.MusicPreferences) {
		s.enrich(ctx, r)
	}
	if order.LyricsText == nil {
		if err := s.generateLyrics(ctx, r); err != nil {
			return Result{}, err
		}
	}
	if order.MoodDescription == nil {
		if err := s.generateMood(ctx, r); err != nil {
			return Result{}, err
		}
	}

	pending, err := s.advanceMusic(ctx, r)
	if err != nil {
		return Result{}, err
	}
	if pending != nil {
		return *pending, nil
	}

	return s.complete(ctx, r)
}

func (s *Service) complete(ctx context.Context, r *run) (Result, error) {
	order, err := s.orders.FindByID(ctx, s.db, r.order.ID)
	if err != nil {
		return Result{}, err
	}
	if order == nil {
		return Result{Skipped: true, Reason: "order_not_found"}, nil
	}
	r.order = order
	meta := order.TrackMetadata

	if !order.HasTrack() {
		return Result{Pending: true, Reason: "awaiting_track", TaskID: meta.TaskID}, nil
	}

	now := s.clock.Now()
	tracks := meta.AllTracks()
	var elapsed time.Duration
	if order.GenerationStartedAt != nil {
		elapsed = now.Sub(*order.GenerationStartedAt)
	}
	enoughVariants := len(tracks) >= r.cfg.MinTrackVariants
	timedOut := elapsed >= r.cfg.CompletionTimeout
	if !meta.Mocked && !enoughVariants && !timedOut {
		return Result{Pending: true, Reason: "awaiting_variants", TaskID: meta.TaskID}, nil
	}

	scheduledAt := now
	deliveryStatus := orderdomain.DeliveryPending
	if !r.settings.InstantEnabled {
		scheduledAt = now.Add(r.settings.DeliveryDelay)
		deliveryStatus = orderdomain.DeliveryScheduled
	}

	err = s.update(ctx, order.ID, orderdomain.Fields{
		"status":                  orderdomain.StatusCompleted,
		"generation_completed_at": now,
		"delivery_status":         deliveryStatus,
		"delivery_scheduled_at":   scheduledAt,
		"error_message":           nil,
	})
	if err != nil {
		return Result{}, err
	}

	s.emit(ctx, order.ID, eventdomain.EventGenerationCompleted, "generation completed", map[string]any{
		"trackCount":          len(tracks),
		"mocked":              meta.Mocked,
		"timedOut":            !meta.Mocked && !enoughVariants,
		"deliveryScheduledAt": scheduledAt.Format(time.RFC3339),
	})
	r.log.Info("generation completed",
		zap.Int("track_count", len(tracks)),
		zap.Bool("mocked", meta.Mocked),
		zap.Duration("elapsed", elapsed),
		zap.Time("delivery_scheduled_at", scheduledAt),
	)
	return Result{Completed: true, TaskID: meta.TaskID}, nil
}

func (s *Service) update(ctx context.Context, id snowflake.ID, fields orderdomain.Fields) error {
	fields["updated_at"] = s.clock.Now()
	return s.orders.Update(ctx, s.db, id, fields)
}

// emit appends an event; failures are logged and counted, never returned.
func (s *Service) emit(ctx context.Context, orderID snowflake.ID, eventType eventdomain.EventType, message string, data map[string]any) {
	if _, err := s.events.Append(ctx, eventdomain.AppendRequest{
		OrderID: orderID,
		Type:    eventType,
		Message: message,
		Data:    data,
	}); err != nil {
		s.log.Warn("event append failed",
			zap.String("order_id", orderID.String()),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
		s.metrics.RecordEventAppendFailure(ctx, string(eventType))
	}
}
