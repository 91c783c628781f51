// Package delivery sends completed songs over email and WhatsApp. Each
// channel is idempotent on its *_sent event, and an order becomes delivered
// only once both events exist.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/observability/logger"
	"github.com/smallbiznis/songgift/internal/observability/metrics"
	"github.com/smallbiznis/songgift/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	"github.com/smallbiznis/songgift/internal/providers/email"
	"github.com/smallbiznis/songgift/internal/providers/whatsapp"
	settingsdomain "github.com/smallbiznis/songgift/internal/settings/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// WhatsAppFactory builds the configured WhatsApp provider.
type WhatsAppFactory interface {
	New(name string, cfg map[string]string) (whatsapp.Provider, error)
}

type Options struct {
	Force bool
}

type ChannelResult struct {
	OK             bool
	Skipped        bool
	ScheduledRetry bool
	Reason         string
	RetryIn        time.Duration
}

type DeliverOptions struct {
	ForceEmail    bool
	ForceWhatsApp bool
}

type DeliverResult struct {
	OK             bool
	Skipped        bool
	Delivered      bool
	Terminal       bool
	ScheduledRetry bool
	Reason         string
	Email          ChannelResult
	WhatsApp       ChannelResult
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Orders   orderdomain.Repository
	Events   eventdomain.Service
	Settings settingsdomain.Service
	Email    email.Provider
	WhatsApp WhatsAppFactory
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	orders   orderdomain.Repository
	events   eventdomain.Service
	settings settingsdomain.Service
	email    email.Provider
	whatsapp WhatsAppFactory
	metrics  *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("delivery"),
		clock:    p.Clock,
		orders:   p.Orders,
		events:   p.Events,
		settings: p.Settings,
		email:    p.Email,
		whatsapp: p.WhatsApp,
		metrics:  p.Metrics,
	}
}

func (s *Service) DeliverCompletedOrder(ctx context.Context, orderID snowflake.ID, opts DeliverOptions) (DeliverResult, error) {
	ctx, span := tracing.StartWorkerSpan(ctx, "delivery.deliver", attribute.String("order_id", orderID.String()))
	defer span.End()

	order, reason, err := s.loadDeliverable(ctx, orderID)
	if err != nil {
		return DeliverResult{}, err
	}
	if order == nil {
		return DeliverResult{Skipped: true, Reason: reason}, nil
	}

	if order.Input.Contact.Email == "" {
		if err := s.failTerminal(ctx, order, ErrMissingEmail); err != nil {
			return DeliverResult{}, err
		}
		return DeliverResult{Terminal: true, Reason: ErrMissingEmail.Reason}, nil
	}
	if order.DeliveryStatus == orderdomain.Delivered && !opts.ForceEmail && !opts.ForceWhatsApp {
		return DeliverResult{OK: true, Skipped: true, Delivered: true, Reason: "already_delivered"}, nil
	}

	result := DeliverResult{}
	result.Email, err = s.SendEmail(ctx, orderID, Options{Force: opts.ForceEmail})
	if err != nil {
		return result, err
	}
	if !result.Email.OK {
		result.ScheduledRetry = result.Email.ScheduledRetry
		result.Reason = result.Email.Reason
		return result, nil
	}

	result.WhatsApp, err = s.SendWhatsApp(ctx, orderID, Options{Force: opts.ForceWhatsApp})
	if err != nil {
		return result, err
	}
	if !result.WhatsApp.OK {
		result.ScheduledRetry = result.WhatsApp.ScheduledRetry
		result.Reason = result.WhatsApp.Reason
		return result, nil
	}

	delivered, err := s.finalize(ctx, orderID)
	if err != nil {
		return result, err
	}
	result.OK = true
	result.Delivered = delivered
	return result, nil
}

func (s *Service) SendEmail(ctx context.Context, orderID snowflake.ID, opts Options) (ChannelResult, error) {
	order, reason, err := s.loadDeliverable(ctx, orderID)
	if err != nil {
		return ChannelResult{}, err
	}
	if order == nil {
		return ChannelResult{Skipped: true, Reason: reason}, nil
	}
	if order.Input.Contact.Email == "" {
		return ChannelResult{Reason: ErrMissingEmail.Reason}, ErrMissingEmail
	}
	if !opts.Force {
		sent, err := s.events.ExistsSince(ctx, order.ID, eventdomain.RoundMarker, eventdomain.EventEmailSongSent)
		if err != nil {
			return ChannelResult{}, err
		}
		if sent {
			return ChannelResult{OK: true, Skipped: true, Reason: "already_sent"}, nil
		}
	}

	msg, err := songEmail(order)
	if err == nil {
		start := time.Now()
		err = s.email.Send(ctx, msg)
		s.metrics.RecordProviderCall(ctx, "email", "send", time.Since(start), err)
	}
	if err != nil {
		return s.channelFailed(ctx, order, ChannelEmail, eventdomain.EventEmailSongFailed, err.Error())
	}

	return s.channelSent(ctx, order, ChannelEmail, eventdomain.EventEmailSongSent, map[string]any{
		"forced": opts.Force,
	})
}

func (s *Service) SendWhatsApp(ctx context.Context, orderID snowflake.ID, opts Options) (ChannelResult, error) {
	order, reason, err := s.loadDeliverable(ctx, orderID)
	if err != nil {
		return ChannelResult{}, err
	}
	if order == nil {
		return ChannelResult{Skipped: true, Reason: reason}, nil
	}
	if !opts.Force {
		sent, err := s.events.ExistsSince(ctx, order.ID, eventdomain.RoundMarker, eventdomain.EventWhatsAppReminderSent)
		if err != nil {
			return ChannelResult{}, err
		}
		if sent {
			return ChannelResult{OK: true, Skipped: true, Reason: "already_sent"}, nil
		}
	}

	settings, err := s.settings.Resolve(ctx)
	if err != nil {
		return ChannelResult{}, err
	}
	provider, err := s.whatsapp.New(settings.WhatsAppProvider, settings.WhatsAppConfig)
	if err != nil {
		return s.channelFailed(ctx, order, ChannelWhatsApp, eventdomain.EventWhatsAppReminderFailed,
			fmt.Sprintf("provider %q unavailable: %v", settings.WhatsAppProvider, err))
	}

	start := time.Now()
	res := provider.Send(ctx, songReminder(order))
	var sendErr error
	if !res.OK {
		sendErr = fmt.Errorf("whatsapp: %s", res.Error)
	}
	s.metrics.RecordProviderCall(ctx, "whatsapp", "send", time.Since(start), sendErr)
	if !res.OK {
		return s.channelFailed(ctx, order, ChannelWhatsApp, eventdomain.EventWhatsAppReminderFailed, res.Error)
	}

	return s.channelSent(ctx, order, ChannelWhatsApp, eventdomain.EventWhatsAppReminderSent, map[string]any{
		"provider":          provider.Name(),
		"providerMessageId": res.ProviderMessageID,
		"forced":            opts.Force,
	})
}

// channelSent records the side effect. The *_sent event is the idempotency
// record, so an append failure is returned for the scheduler to retry.
func (s *Service) channelSent(ctx context.Context, order *orderdomain.Order, channel string, eventType eventdomain.EventType, data map[string]any) (ChannelResult, error) {
	if _, err := s.events.Append(ctx, eventdomain.AppendRequest{
		OrderID: order.ID,
		Type:    eventType,
		Message: channel + " sent",
		Data:    data,
	}); err != nil {
		s.metrics.RecordEventAppendFailure(ctx, string(eventType))
		return ChannelResult{}, fmt.Errorf("record %s: %w", eventType, err)
	}
	s.metrics.RecordDelivery(ctx, channel, "sent")
	s.orderLog(ctx, order).Info("delivery channel sent", zap.String("channel", channel))

	if _, err := s.finalize(ctx, order.ID); err != nil {
		return ChannelResult{}, err
	}
	return ChannelResult{OK: true}, nil
}

func (s *Service) channelFailed(ctx context.Context, order *orderdomain.Order, channel string, eventType eventdomain.EventType, reason string) (ChannelResult, error) {
	s.metrics.RecordDelivery(ctx, channel, "failed")
	s.orderLog(ctx, order).Warn("delivery channel failed", zap.String("channel", channel), zap.String("reason", reason))
	s.emit(ctx, order.ID, eventType, channel+" delivery failed", map[string]any{
		"error": truncate(reason, 256),
	})

	delay, err := s.scheduleRetry(ctx, order.ID, eventdomain.DeliveryFailureTypes)
	if err != nil {
		return ChannelResult{}, err
	}
	return ChannelResult{ScheduledRetry: true, Reason: channel + "_send_failed", RetryIn: delay}, nil
}

// ScheduleRetryAfterException records an unexpected delivery error and
// reschedules the order using the exception count alone.
func (s *Service) ScheduleRetryAfterException(ctx context.Context, orderID snowflake.ID, cause error) (time.Duration, error) {
	s.emit(ctx, orderID, eventdomain.EventDeliveryException, "delivery raised an error", map[string]any{
		"error": tracing.SafeError(cause).Error(),
	})
	return s.scheduleRetry(ctx, orderID, []eventdomain.EventType{eventdomain.EventDeliveryException})
}

func (s *Service) scheduleRetry(ctx context.Context, orderID snowflake.ID, failureTypes []eventdomain.EventType) (time.Duration, error) {
	failures, err := s.events.CountSince(ctx, orderID, eventdomain.RoundMarker, failureTypes...)
	if err != nil {
		return 0, err
	}
	delay := BackoffDelay(int(failures))
	now := s.clock.Now()
	next := now.Add(delay)

	if err := s.orders.Update(ctx, s.db, orderID, orderdomain.Fields{
		"delivery_status":       orderdomain.DeliveryPending,
		"delivery_scheduled_at": next,
		"updated_at":            now,
	}); err != nil {
		return 0, err
	}
	s.emit(ctx, orderID, eventdomain.EventDeliveryRetryScheduled, "delivery retry scheduled", map[string]any{
		"delaySeconds": int(delay / time.Second),
		"failureCount": failures,
		"retryAt":      next.Format(time.RFC3339),
	})
	return delay, nil
}

// finalize marks the order delivered once both channel events exist.
func (s *Service) finalize(ctx context.Context, orderID snowflake.ID) (bool, error) {
	emailSent, err := s.events.ExistsSince(ctx, orderID, eventdomain.RoundMarker, eventdomain.EventEmailSongSent)
	if err != nil {
		return false, err
	}
	waSent, err := s.events.ExistsSince(ctx, orderID, eventdomain.RoundMarker, eventdomain.EventWhatsAppReminderSent)
	if err != nil {
		return false, err
	}
	if !emailSent || !waSent {
		return false, nil
	}

	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, nil
	}
	if order.DeliveredAt != nil {
		return true, nil
	}

	now := s.clock.Now()
	if err := s.orders.Update(ctx, s.db, orderID, orderdomain.Fields{
		"delivery_status": orderdomain.Delivered,
		"delivered_at":    now,
		"updated_at":      now,
	}); err != nil {
		return false, err
	}
	s.emit(ctx, orderID, eventdomain.EventDelivered, "order delivered", nil)
	s.metrics.RecordDelivery(ctx, "order", "delivered")
	s.orderLog(ctx, order).Info("order delivered")
	return true, nil
}

func (s *Service) failTerminal(ctx context.Context, order *orderdomain.Order, cause *TerminalError) error {
	if order.DeliveryStatus != orderdomain.DeliveryFailed {
		if err := s.orders.Update(ctx, s.db, order.ID, orderdomain.Fields{
			"delivery_status": orderdomain.DeliveryFailed,
			"updated_at":      s.clock.Now(),
		}); err != nil {
			return err
		}
	}
	recorded, err := s.events.ExistsSince(ctx, order.ID, eventdomain.RoundMarker, eventdomain.EventDeliveryFailed)
	if err != nil {
		return err
	}
	if !recorded {
		s.emit(ctx, order.ID, eventdomain.EventDeliveryFailed, "delivery cannot proceed", map[string]any{
			"reason":    cause.Reason,
			"retryable": false,
		})
		s.orderLog(ctx, order).Warn("delivery failed permanently", zap.String("reason", cause.Reason))
	}
	return nil
}

// loadDeliverable returns nil with a reason when the order is not ready.
func (s *Service) loadDeliverable(ctx context.Context, orderID snowflake.ID) (*orderdomain.Order, string, error) {
	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, "", err
	}
	if order == nil {
		return nil, "order_not_found", nil
	}
	if order.Status != orderdomain.StatusCompleted || !order.HasTrack() {
		return nil, "order_not_ready", nil
	}
	return order, "", nil
}

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

func (s *Service) orderLog(ctx context.Context, order *orderdomain.Order) *zap.Logger {
	return logger.WithOrder(logger.WithContext(ctx, s.log), order.ID.String())
}

func truncate(v string, limit int) string {
	runes := []rune(v)
	if len(runes) <= limit {
		return v
	}
	return string(runes[:limit])
}
