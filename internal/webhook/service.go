package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/config"
	obscontext "github.com/smallbiznis/songgift/internal/observability/context"
	"github.com/smallbiznis/songgift/internal/observability/logger"
	"github.com/smallbiznis/songgift/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	"github.com/smallbiznis/songgift/internal/providers/music"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
)

var (
	ErrInvalidPayload   = errors.New("invalid_webhook_payload")
	ErrMissingTaskID    = errors.New("missing_task_id")
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Cfg     config.Config
	Orders  orderdomain.Repository
	Events  eventdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

// Service records music provider callbacks. It writes outside the scheduler's
// order lock: track_url only moves from null to a value and the payload is kept
// under the metadata's callback field.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	signingKey []byte
	orders     orderdomain.Repository
	events     eventdomain.Service
	metrics    *metrics.Metrics
}

// Result reports what a callback changed.
type Result struct {
	TaskID       string
	OrderID      string
	Matched      bool
	TrackURLSet  bool
	CallbackSeen int
}

func New(p Params) *Service {
	var key []byte
	if secret := strings.TrimSpace(p.Cfg.WebhookSigningKey); secret != "" {
		key = []byte(secret)
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("webhook.music"),
		clock:      p.Clock,
		signingKey: key,
		orders:     p.Orders,
		events:     p.Events,
		metrics:    p.Metrics,
	}
}

// HandleMusicCallback applies one callback. Unknown task ids are acknowledged
// without error since provider retries cannot be matched to anything.
func (s *Service) HandleMusicCallback(ctx context.Context, body []byte, headers http.Header) (Result, error) {
	cb, err := music.ParseCallback(body)
	if err != nil {
		return Result{}, ErrInvalidPayload
	}
	if cb.TaskID == "" {
		return Result{}, ErrMissingTaskID
	}
	if err := s.verify(cb.TaskID, headers); err != nil {
		s.log.Warn("music callback signature rejected", zap.String("task_id", cb.TaskID))
		return Result{}, err
	}

	result := Result{TaskID: cb.TaskID}
	order, err := s.orders.FindByMusicTaskID(ctx, s.db, cb.TaskID)
	if err != nil {
		return result, err
	}
	if order == nil {
		s.log.Info("music callback for unknown task", zap.String("task_id", cb.TaskID))
		return result, nil
	}

	orderID := order.ID.String()
	ctx = obscontext.WithOrderID(obscontext.WithActor(ctx, "webhook"), orderID)
	log := logger.WithContext(ctx, s.log)
	result.OrderID = orderID
	result.Matched = true

	now := s.clock.Now()
	meta := order.TrackMetadata
	record := orderdomain.CallbackRecord{
		Type:       cb.Type,
		Code:       cb.Code,
		Message:    cb.Message,
		TrackURLs:  cb.TrackURLs,
		Count:      1,
		ReceivedAt: now,
	}
	if meta.Callback != nil {
		record.Count = meta.Callback.Count + 1
		record.TrackURLs = orderdomain.MergeTracks(meta.Callback.TrackURLs, cb.TrackURLs)
	}
	meta.Callback = &record
	result.CallbackSeen = record.Count

	if err := s.orders.Update(ctx, s.db, order.ID, orderdomain.Fields{
		"track_metadata": meta,
		"updated_at":     now,
	}); err != nil {
		return result, err
	}

	if len(cb.TrackURLs) > 0 {
		set, err := s.orders.SetTrackURLIfEmpty(ctx, s.db, order.ID, cb.TrackURLs[0], now)
		if err != nil {
			return result, err
		}
		result.TrackURLSet = set
	}

	s.emit(ctx, log, order, eventdomain.EventMusicCallbackReceived, "music callback received", map[string]any{
		"taskId":       cb.TaskID,
		"callbackType": cb.Type,
		"code":         cb.Code,
		"trackCount":   len(cb.TrackURLs),
	})
	if result.TrackURLSet {
		s.emit(ctx, log, order, eventdomain.EventMusicGenerated, "track url set by callback", map[string]any{
			"taskId":   cb.TaskID,
			"trackUrl": cb.TrackURLs[0],
			"tracks":   cb.TrackURLs,
			"source":   "callback",
		})
	}

	log.Info("music callback applied",
		zap.String("task_id", cb.TaskID),
		zap.String("callback_type", cb.Type),
		zap.Bool("track_url_set", result.TrackURLSet),
		zap.Int("callback_count", record.Count),
	)
	return result, nil
}

// verify checks the signature only when a key is configured and both headers
// are present.
func (s *Service) verify(taskID string, headers http.Header) error {
	if len(s.signingKey) == 0 {
		return nil
	}
	timestamp := strings.TrimSpace(headers.Get(HeaderTimestamp))
	signature := strings.TrimSpace(headers.Get(HeaderSignature))
	if timestamp == "" || signature == "" {
		return nil
	}

	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(got, Sign(s.signingKey, taskID, timestamp)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes HMAC-SHA256 over "<taskId>.<timestamp>".
func Sign(key []byte, taskID, timestamp string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(taskID + "." + timestamp))
	return mac.Sum(nil)
}

func (s *Service) emit(ctx context.Context, log *zap.Logger, order *orderdomain.Order, eventType eventdomain.EventType, message string, data map[string]any) {
	if _, err := s.events.Append(ctx, eventdomain.AppendRequest{
		OrderID: order.ID,
		Type:    eventType,
		Message: message,
		Data:    data,
	}); err != nil {
		log.Warn("failed to append order event", zap.String("event_type", string(eventType)), zap.Error(err))
		s.metrics.RecordEventAppendFailure(ctx, string(eventType))
	}
}
