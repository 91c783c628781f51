// Package scheduler drives the generation and delivery pipelines on fixed
// ticks. Each tick advances at most one order, under that order's lock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/config"
	"github.com/smallbiznis/songgift/internal/delivery"
	"github.com/smallbiznis/songgift/internal/generation"
	"github.com/smallbiznis/songgift/internal/lock"
	obsmetrics "github.com/smallbiznis/songgift/internal/observability/metrics"
	"github.com/smallbiznis/songgift/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	"github.com/smallbiznis/songgift/internal/scheduler/guard"
	settingsdomain "github.com/smallbiznis/songgift/internal/settings/domain"
	"github.com/smallbiznis/songgift/pkg/neterr"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GenerationRunner advances one order's generation state.
type GenerationRunner interface {
	Advance(ctx context.Context, orderID snowflake.ID) (generation.Result, error)
}

// DeliveryRunner delivers one completed order.
type DeliveryRunner interface {
	DeliverCompletedOrder(ctx context.Context, orderID snowflake.ID, opts delivery.DeliverOptions) (delivery.DeliverResult, error)
	ScheduleRetryAfterException(ctx context.Context, orderID snowflake.ID, cause error) (time.Duration, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Orders     orderdomain.Repository
	OrderSvc   orderdomain.Service
	Events     eventdomain.Service
	Settings   settingsdomain.Service
	Locker     lock.Locker
	Generation GenerationRunner
	Delivery   DeliveryRunner
	Pipeline   *config.PipelineConfigHolder `optional:"true"`
	Config     Config                       `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	orders     orderdomain.Repository
	orderSvc   orderdomain.Service
	events     eventdomain.Service
	settings   settingsdomain.Service
	locker     lock.Locker
	generation GenerationRunner
	delivery   DeliveryRunner
	pipeline   *config.PipelineConfigHolder

	cron *cron.Cron
}

// TickResult reports what a tick did. OrderID is zero when nothing was eligible.
type TickResult struct {
	OrderID snowflake.ID
	Outcome string
	Reason  string
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Orders == nil ||
		p.OrderSvc == nil || p.Events == nil || p.Settings == nil || p.Locker == nil || p.Generation == nil || p.Delivery == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		orders:     p.Orders,
		orderSvc:   p.OrderSvc,
		events:     p.Events,
		settings:   p.Settings,
		locker:     p.Locker,
		generation: p.Generation,
		delivery:   p.Delivery,
		pipeline:   p.Pipeline,
	}, nil
}

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs one generation tick and one delivery tick.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	if s.isJobEnabled(JobGeneration) {
		err = errors.Join(err, s.runGeneration(parent))
	}
	if s.isJobEnabled(JobDelivery) {
		err = errors.Join(err, s.runDelivery(parent))
	}
	return err
}

func (s *Scheduler) runGeneration(ctx context.Context) error {
	return s.runJob(ctx, JobGeneration, s.jobTimeout(), func(ctx context.Context) error {
		_, err := s.GenerationTick(ctx)
		return err
	})
}

func (s *Scheduler) runDelivery(ctx context.Context) error {
	return s.runJob(ctx, JobDelivery, s.jobTimeout(), func(ctx context.Context) error {
		_, err := s.DeliveryTick(ctx)
		return err
	})
}

// Start registers both ticks on a cron runner. Overlapping runs of the same
// tick are skipped rather than queued.
func (s *Scheduler) Start(ctx context.Context) error {
	logger := cronLogger{log: s.log}
	c := cron.New(cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))

	entries := []struct {
		job      string
		interval time.Duration
		run      func(context.Context) error
	}{
		{JobGeneration, s.cfg.GenerationInterval, s.runGeneration},
		{JobDelivery, s.cfg.DeliveryInterval, s.runDelivery},
	}
	for _, entry := range entries {
		if !s.isJobEnabled(entry.job) {
			continue
		}
		expected := s.clock.Now().Add(entry.interval)
		_, err := c.AddFunc("@every "+entry.interval.String(), func() {
			lag := time.Since(expected)
			obsmetrics.Scheduler().ObserveRunLoopLag(entry.job, lag)
			expected = time.Now().Add(entry.interval)
			if !s.pipelineEnabled(entry.job) {
				return
			}
			if err := entry.run(ctx); err != nil {
				s.log.Warn("scheduler run failed", zap.String("job", entry.job), zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s: %w", entry.job, err)
		}
		s.log.Info("scheduler.job.registered",
			zap.String("job", entry.job),
			zap.Duration("interval", entry.interval),
		)
	}

	s.cron = c
	c.Start()
	return nil
}

// Stop waits for running ticks to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GenerationTick advances the oldest order still generating.
func (s *Scheduler) GenerationTick(ctx context.Context) (TickResult, error) {
	ctx, run, owner := s.ensureJobRun(ctx, JobGeneration)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	order, err := s.nextForGeneration(ctx)
	if err != nil {
		s.logOrderError(ctx, run, "scheduler.order.select.failed", 0, err)
		return TickResult{}, err
	}
	if order == nil {
		return TickResult{}, nil
	}

	ctx, span := tracing.StartWorkerSpan(ctx, "scheduler.generation_tick")
	defer span.End()

	result := TickResult{OrderID: order.ID}
	acquired, err := s.withOrderLock(ctx, JobGeneration, lock.GenerationKey(order.ID.String()), func(ctx context.Context) error {
		res, advanceErr := s.generation.Advance(ctx, order.ID)
		if advanceErr != nil {
			outcome, handleErr := s.handleGenerationError(ctx, run, order.ID, advanceErr)
			result.Outcome = outcome
			result.Reason = advanceErr.Error()
			return handleErr
		}
		result.Outcome, result.Reason = generationOutcome(res)
		return nil
	})
	if err != nil {
		s.logOrderError(ctx, run, "scheduler.order.process.failed", order.ID, err)
		return result, err
	}
	if !acquired {
		result.Outcome = obsmetrics.OrderOutcomeSkipped
		result.Reason = "locked"
	}

	run.AddProcessed(1)
	obsmetrics.Scheduler().IncOrderOutcome(JobGeneration, result.Outcome)
	return result, nil
}

func generationOutcome(res generation.Result) (string, string) {
	switch {
	case res.Completed:
		return obsmetrics.OrderOutcomeCompleted, ""
	case res.Skipped:
		return obsmetrics.OrderOutcomeSkipped, res.Reason
	case res.Pending:
		return obsmetrics.OrderOutcomePending, res.Reason
	default:
		return obsmetrics.OrderOutcomeAdvanced, res.Reason
	}
}

// handleGenerationError decides between leaving the order for the next tick
// and failing it. Terminal errors fail regardless of in-flight work; the
// generation service only reports a failed music task when it has no tracks.
func (s *Scheduler) handleGenerationError(ctx context.Context, run *jobRun, orderID snowflake.ID, cause error) (string, error) {
	// Record the outcome even when the tick's deadline is what failed.
	ctx = context.WithoutCancel(ctx)

	order, err := s.orders.FindByID(ctx, s.db, orderID)
	if err != nil {
		return obsmetrics.OrderOutcomeRetryable, errors.Join(cause, err)
	}

	message := tracing.SafeError(cause).Error()
	if !generation.IsTerminal(cause) && isRetryable(order, cause) {
		s.logOrderError(ctx, run, "scheduler.generation.retryable", orderID, cause)
		s.emit(ctx, orderID, eventdomain.EventGenerationRetryableError, "generation will retry on the next tick", map[string]any{
			"error":     message,
			"errorType": obsmetrics.ClassifySchedulerErrorType(cause),
			"hasTask":   order.HasTaskInFlight(),
			"hasTrack":  order.HasTrack(),
		})
		return obsmetrics.OrderOutcomeRetryable, nil
	}

	s.logOrderError(ctx, run, "scheduler.generation.failed", orderID, cause)
	if err := s.markOrderFailed(ctx, orderID, message); err != nil {
		return obsmetrics.OrderOutcomeFailed, err
	}
	s.emit(ctx, orderID, eventdomain.EventGenerationFailed, "generation failed", map[string]any{
		"error":    message,
		"terminal": generation.IsTerminal(cause),
	})
	return obsmetrics.OrderOutcomeFailed, nil
}

func isRetryable(order *orderdomain.Order, err error) bool {
	return neterr.IsTransient(err) ||
		obsmetrics.IsSchedulerErrorRetryable(err) ||
		order.HasTaskInFlight() ||
		order.HasTrack()
}

// DeliveryTick delivers the oldest due order. It does nothing while manual
// confirmation is switched on in settings.
func (s *Scheduler) DeliveryTick(ctx context.Context) (TickResult, error) {
	ctx, run, owner := s.ensureJobRun(ctx, JobDelivery)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	settings, err := s.settings.Resolve(ctx)
	if err != nil {
		s.logOrderError(ctx, run, "scheduler.settings.failed", 0, err)
		return TickResult{}, err
	}
	if settings.ManualConfirmation {
		return TickResult{Outcome: obsmetrics.OrderOutcomeSkipped, Reason: "manual_confirmation"}, nil
	}

	order, err := s.nextForDelivery(ctx, s.clock.Now())
	if err != nil {
		s.logOrderError(ctx, run, "scheduler.order.select.failed", 0, err)
		return TickResult{}, err
	}
	if order == nil {
		return TickResult{}, nil
	}

	ctx, span := tracing.StartWorkerSpan(ctx, "scheduler.delivery_tick")
	defer span.End()

	result := TickResult{OrderID: order.ID}
	acquired, err := s.withOrderLock(ctx, JobDelivery, lock.DeliveryKey(order.ID.String()), func(ctx context.Context) error {
		res, deliverErr := s.delivery.DeliverCompletedOrder(ctx, order.ID, delivery.DeliverOptions{})
		if deliverErr != nil {
			s.logOrderError(ctx, run, "scheduler.delivery.exception", order.ID, deliverErr)
			delay, scheduleErr := s.delivery.ScheduleRetryAfterException(context.WithoutCancel(ctx), order.ID, deliverErr)
			result.Outcome = obsmetrics.OrderOutcomeRetryScheduled
			result.Reason = fmt.Sprintf("retry in %s", delay)
			return scheduleErr
		}
		result.Outcome, result.Reason = deliveryOutcome(res)
		return nil
	})
	if err != nil {
		s.logOrderError(ctx, run, "scheduler.order.process.failed", order.ID, err)
		return result, err
	}
	if !acquired {
		result.Outcome = obsmetrics.OrderOutcomeSkipped
		result.Reason = "locked"
	}

	run.AddProcessed(1)
	obsmetrics.Scheduler().IncOrderOutcome(JobDelivery, result.Outcome)
	return result, nil
}

func deliveryOutcome(res delivery.DeliverResult) (string, string) {
	switch {
	case res.Terminal:
		return obsmetrics.OrderOutcomeFailed, res.Reason
	case res.ScheduledRetry:
		return obsmetrics.OrderOutcomeRetryScheduled, res.Reason
	case res.Skipped:
		return obsmetrics.OrderOutcomeSkipped, res.Reason
	case res.Delivered:
		return obsmetrics.OrderOutcomeDelivered, ""
	default:
		return obsmetrics.OrderOutcomeAdvanced, res.Reason
	}
}

// RetryOrder resets generation under the order's generation lock.
func (s *Scheduler) RetryOrder(ctx context.Context, id string) (orderdomain.Order, error) {
	order, err := s.orderSvc.GetByID(ctx, id)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if err := guard.EnsureCanRetryGeneration(order.Status); err != nil {
		return orderdomain.Order{}, err
	}

	var reset orderdomain.Order
	acquired, err := s.withOrderLock(ctx, JobGeneration, lock.GenerationKey(order.ID.String()), func(ctx context.Context) error {
		var resetErr error
		reset, resetErr = s.orderSvc.ResetGeneration(ctx, id)
		return resetErr
	})
	if err != nil {
		return orderdomain.Order{}, err
	}
	if !acquired {
		return orderdomain.Order{}, ErrOrderBusy
	}
	return reset, nil
}

// ResendOrder forces delivery channels under the order's delivery lock.
func (s *Scheduler) ResendOrder(ctx context.Context, id string, opts delivery.DeliverOptions) (delivery.DeliverResult, error) {
	order, err := s.orderSvc.GetByID(ctx, id)
	if err != nil {
		return delivery.DeliverResult{}, err
	}
	if err := guard.EnsureCanResend(&order); err != nil {
		return delivery.DeliverResult{}, err
	}

	var result delivery.DeliverResult
	acquired, err := s.withOrderLock(ctx, JobDelivery, lock.DeliveryKey(order.ID.String()), func(ctx context.Context) error {
		var deliverErr error
		result, deliverErr = s.delivery.DeliverCompletedOrder(ctx, order.ID, opts)
		return deliverErr
	})
	if err != nil {
		return result, err
	}
	if !acquired {
		return delivery.DeliverResult{}, ErrOrderBusy
	}
	return result, nil
}

func (s *Scheduler) emit(ctx context.Context, orderID snowflake.ID, eventType eventdomain.EventType, message string, data map[string]any) {
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
	}
}

func (s *Scheduler) jobTimeout() time.Duration {
	if s.pipeline != nil {
		if timeout := s.pipeline.Get().JobTimeout; timeout > 0 {
			return timeout
		}
	}
	return s.cfg.JobTimeout
}

func (s *Scheduler) pipelineEnabled(job string) bool {
	if s.pipeline == nil {
		return true
	}
	cfg := s.pipeline.Get()
	switch job {
	case JobGeneration:
		return cfg.GenerationEnabled
	case JobDelivery:
		return cfg.DeliveryEnabled
	}
	return true
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty list enables every job.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
