package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/config"
	"github.com/smallbiznis/songgift/internal/delivery"
	"github.com/smallbiznis/songgift/internal/generation"
	"github.com/smallbiznis/songgift/internal/lock"
	obsmetrics "github.com/smallbiznis/songgift/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	orderrepo "github.com/smallbiznis/songgift/internal/order/repository"
	orderservice "github.com/smallbiznis/songgift/internal/order/service"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	eventrepo "github.com/smallbiznis/songgift/internal/orderevent/repository"
	eventservice "github.com/smallbiznis/songgift/internal/orderevent/service"
	"github.com/smallbiznis/songgift/internal/scheduler/guard"
	settingsdomain "github.com/smallbiznis/songgift/internal/settings/domain"
	settingsrepo "github.com/smallbiznis/songgift/internal/settings/repository"
	settingsservice "github.com/smallbiznis/songgift/internal/settings/service"
	"github.com/smallbiznis/songgift/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubGeneration struct {
	calls int
	res   generation.Result
	err   error
}

func (s *stubGeneration) Advance(context.Context, snowflake.ID) (generation.Result, error) {
	s.calls++
	return s.res, s.err
}

type stubDelivery struct {
	calls      int
	opts       []delivery.DeliverOptions
	res        delivery.DeliverResult
	err        error
	exceptions []error
}

func (s *stubDelivery) DeliverCompletedOrder(_ context.Context, _ snowflake.ID, opts delivery.DeliverOptions) (delivery.DeliverResult, error) {
	s.calls++
	s.opts = append(s.opts, opts)
	return s.res, s.err
}

func (s *stubDelivery) ScheduleRetryAfterException(_ context.Context, _ snowflake.ID, cause error) (time.Duration, error) {
	s.exceptions = append(s.exceptions, cause)
	return delivery.BackoffDelay(len(s.exceptions)), nil
}

type fixture struct {
	db       *gorm.DB
	sched    *Scheduler
	orders   orderdomain.Repository
	events   eventdomain.Service
	settings settingsdomain.Service
	locker   *lock.MemoryLocker
	clock    *clock.FakeClock
	node     *snowflake.Node
}

func setup(t *testing.T, gen GenerationRunner, del DeliveryRunner) fixture {
	t.Helper()
	t.Cleanup(swapPrometheusRegistry(prometheus.NewRegistry()))

	db := testutil.OpenSQLite(t, &orderdomain.Order{}, &eventdomain.Event{}, &settingsdomain.Settings{})
	node := testutil.SnowflakeNode(t)
	fake := clock.NewFakeClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	events := eventservice.New(eventservice.Params{DB: db, Log: log, Clock: fake, Repo: eventrepo.Provide()})
	settings, err := settingsservice.New(settingsservice.Params{
		DB:    db,
		Log:   log,
		Cfg:   config.Config{SettingsEncryptionSecret: "test-secret"},
		Clock: fake,
		Repo:  settingsrepo.Provide(),
	})
	require.NoError(t, err)
	orders := orderrepo.Provide()
	orderSvc := orderservice.New(orderservice.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: orders, Events: events})
	locker := lock.NewMemory()

	sched, err := New(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fake,
		Orders:     orders,
		OrderSvc:   orderSvc,
		Events:     events,
		Settings:   settings,
		Locker:     locker,
		Generation: gen,
		Delivery:   del,
		Pipeline:   config.NewStaticPipelineConfigHolder(config.DefaultPipelineConfig()),
	})
	require.NoError(t, err)
	return fixture{db: db, sched: sched, orders: orders, events: events, settings: settings, locker: locker, clock: fake, node: node}
}

func (f fixture) newOrder(t *testing.T, status orderdomain.Status, mutate func(*orderdomain.Order)) *orderdomain.Order {
	t.Helper()
	now := f.clock.Now()
	order := &orderdomain.Order{
		ID:             f.node.Generate(),
		Status:         status,
		DeliveryStatus: orderdomain.DeliveryPending,
		Input: orderdomain.Input{
			RecipientName: "Budi",
			Story:         "Thirty years of Sunday mornings.",
			Contact:       orderdomain.Contact{Name: "Sari", Email: "sari@example.com", WhatsApp: "+6281234567890"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == orderdomain.StatusCompleted {
		track := "https://cdn.example.com/a.mp3"
		order.TrackURL = &track
		order.GenerationCompletedAt = &now
		order.DeliveryStatus = orderdomain.DeliveryScheduled
		order.DeliveryScheduledAt = &now
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, f.orders.Insert(context.Background(), f.db, order))
	return order
}

func (f fixture) reload(t *testing.T, id snowflake.ID) *orderdomain.Order {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func (f fixture) count(t *testing.T, id snowflake.ID, types ...eventdomain.EventType) int64 {
	t.Helper()
	n, err := f.events.Count(context.Background(), id, types...)
	require.NoError(t, err)
	return n
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "songgift",
		Environment: "test",
	})

	s := &Scheduler{log: zap.NewNop(), genID: testutil.SnowflakeNode(t), clock: clock.NewFakeClock(time.Time{})}
	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "songgift", "env": "test", "job": "timeout_job"}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "songgift_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "songgift",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, 1.0, getCounterValue(t, registry, "songgift_scheduler_job_errors_total", errorLabels))
}

func TestRunJobWrapsOtherErrors(t *testing.T) {
	t.Cleanup(swapPrometheusRegistry(prometheus.NewRegistry()))
	s := &Scheduler{log: zap.NewNop(), genID: testutil.SnowflakeNode(t), clock: clock.NewFakeClock(time.Time{})}

	err := s.runJob(context.Background(), JobGeneration, time.Second, func(context.Context) error {
		return errors.New("select failed")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation: select failed")
}

func TestGenerationTickNoEligibleOrder(t *testing.T) {
	gen := &stubGeneration{}
	f := setup(t, gen, &stubDelivery{})
	f.newOrder(t, orderdomain.StatusCreated, nil)

	res, err := f.sched.GenerationTick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.OrderID)
	assert.Zero(t, gen.calls)
}

func TestGenerationTickPicksOldestProcessingOrder(t *testing.T) {
	gen := &stubGeneration{res: generation.Result{Pending: true, Reason: "awaiting_track"}}
	f := setup(t, gen, &stubDelivery{})
	first := f.newOrder(t, orderdomain.StatusProcessing, nil)
	f.clock.Advance(time.Minute)
	f.newOrder(t, orderdomain.StatusProcessing, nil)

	res, err := f.sched.GenerationTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, res.OrderID)
	assert.Equal(t, obsmetrics.OrderOutcomePending, res.Outcome)
	assert.Equal(t, 1, gen.calls)
}

func TestGenerationTickTransientErrorLeavesStatus(t *testing.T) {
	gen := &stubGeneration{err: errors.New("fetch failed")}
	f := setup(t, gen, &stubDelivery{})
	order := f.newOrder(t, orderdomain.StatusProcessing, nil)

	res, err := f.sched.GenerationTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, obsmetrics.OrderOutcomeRetryable, res.Outcome)

	got := f.reload(t, order.ID)
	assert.Equal(t, orderdomain.StatusProcessing, got.Status)
	assert.Nil(t, got.ErrorMessage)
	assert.EqualValues(t, 1, f.count(t, order.ID, eventdomain.EventGenerationRetryableError))
	assert.Zero(t, f.count(t, order.ID, eventdomain.EventGenerationFailed))
}

func TestGenerationTickNonRetryableErrorFailsOrder(t *testing.T) {
	gen := &stubGeneration{err: errors.New("lyrics response was empty")}
	f := setup(t, gen, &stubDelivery{})
	order := f.newOrder(t, orderdomain.StatusProcessing, nil)

	res, err := f.sched.GenerationTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, obsmetrics.OrderOutcomeFailed, res.Outcome)

	got := f.reload(t, order.ID)
	assert.Equal(t, orderdomain.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "lyrics response was empty", *got.ErrorMessage)
	assert.EqualValues(t, 1, f.count(t, order.ID, eventdomain.EventGenerationFailed))

	res, err = f.sched.GenerationTick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.OrderID, "failed orders are not selected again")
}

func TestGenerationTickInFlightWorkIsRetryable(t *testing.T) {
	cases := map[string]func(*orderdomain.Order){
		"task submitted": func(o *orderdomain.Order) { o.TrackMetadata.TaskID = "task-9" },
		"track present": func(o *orderdomain.Order) {
			url := "https://cdn.example.com/a.mp3"
			o.TrackURL = &url
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			gen := &stubGeneration{err: errors.New("unexpected provider payload")}
			f := setup(t, gen, &stubDelivery{})
			order := f.newOrder(t, orderdomain.StatusProcessing, mutate)

			res, err := f.sched.GenerationTick(context.Background())
			require.NoError(t, err)
			assert.Equal(t, obsmetrics.OrderOutcomeRetryable, res.Outcome)
			assert.Equal(t, orderdomain.StatusProcessing, f.reload(t, order.ID).Status)
		})
	}
}

func TestGenerationTickTerminalErrorWinsOverInFlightTask(t *testing.T) {
	gen := &stubGeneration{err: fmt.Errorf("%w: GENERATE_AUDIO_FAILED", generation.ErrMusicTaskFailed)}
	f := setup(t, gen, &stubDelivery{})
	order := f.newOrder(t, orderdomain.StatusProcessing, func(o *orderdomain.Order) { o.TrackMetadata.TaskID = "task-9" })

	res, err := f.sched.GenerationTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, obsmetrics.OrderOutcomeFailed, res.Outcome)
	assert.Equal(t, orderdomain.StatusFailed, f.reload(t, order.ID).Status)
}

func TestGenerationTickSkipsWhenLockHeld(t *testing.T) {
	gen := &stubGeneration{}
	f := setup(t, gen, &stubDelivery{})
	order := f.newOrder(t, orderdomain.StatusProcessing, nil)
	ctx := context.Background()

	acquired, err := f.locker.WithLock(ctx, lock.GenerationKey(order.ID.String()), func(ctx context.Context) error {
		res, err := f.sched.GenerationTick(ctx)
		require.NoError(t, err)
		assert.Equal(t, obsmetrics.OrderOutcomeSkipped, res.Outcome)
		assert.Equal(t, "locked", res.Reason)
		return nil
	})
	require.NoError(t, err)
	require.True(t, acquired)
	assert.Zero(t, gen.calls)
}

func TestDeliveryTickSkippedUnderManualConfirmation(t *testing.T) {
	del := &stubDelivery{}
	f := setup(t, &stubGeneration{}, del)
	f.newOrder(t, orderdomain.StatusCompleted, nil)
	manual := true
	_, err := f.settings.Update(context.Background(), settingsdomain.UpdateRequest{ManualConfirmation: &manual})
	require.NoError(t, err)

	res, err := f.sched.DeliveryTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "manual_confirmation", res.Reason)
	assert.Zero(t, del.calls)
}

func TestDeliveryTickWaitsForSchedule(t *testing.T) {
	del := &stubDelivery{res: delivery.DeliverResult{OK: true, Delivered: true}}
	f := setup(t, &stubGeneration{}, del)
	later := f.clock.Now().Add(time.Hour)
	order := f.newOrder(t, orderdomain.StatusCompleted, func(o *orderdomain.Order) { o.DeliveryScheduledAt = &later })

	res, err := f.sched.DeliveryTick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.OrderID)

	f.clock.Advance(time.Hour)
	res, err = f.sched.DeliveryTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, order.ID, res.OrderID)
	assert.Equal(t, obsmetrics.OrderOutcomeDelivered, res.Outcome)
	require.Len(t, del.opts, 1)
	assert.Equal(t, delivery.DeliverOptions{}, del.opts[0])
}

func TestDeliveryTickExceptionSchedulesRetry(t *testing.T) {
	del := &stubDelivery{err: errors.New("record email_song_sent: database is locked")}
	f := setup(t, &stubGeneration{}, del)
	f.newOrder(t, orderdomain.StatusCompleted, nil)

	res, err := f.sched.DeliveryTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, obsmetrics.OrderOutcomeRetryScheduled, res.Outcome)
	require.Len(t, del.exceptions, 1)
	assert.EqualError(t, del.exceptions[0], "record email_song_sent: database is locked")
}

func TestRetryOrderHonoursLock(t *testing.T) {
	f := setup(t, &stubGeneration{}, &stubDelivery{})
	order := f.newOrder(t, orderdomain.StatusFailed, func(o *orderdomain.Order) {
		msg := "boom"
		o.ErrorMessage = &msg
	})
	ctx := context.Background()

	_, err := f.locker.WithLock(ctx, lock.GenerationKey(order.ID.String()), func(ctx context.Context) error {
		_, err := f.sched.RetryOrder(ctx, order.ID.String())
		assert.ErrorIs(t, err, ErrOrderBusy)
		return nil
	})
	require.NoError(t, err)

	reset, err := f.sched.RetryOrder(ctx, order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusProcessing, reset.Status)
	assert.Nil(t, reset.ErrorMessage)
	assert.EqualValues(t, 1, f.count(t, order.ID, eventdomain.EventGenerationRetryRequested))
}

func TestRetryOrderRejectsUnconfirmed(t *testing.T) {
	f := setup(t, &stubGeneration{}, &stubDelivery{})
	order := f.newOrder(t, orderdomain.StatusCreated, nil)

	_, err := f.sched.RetryOrder(context.Background(), order.ID.String())
	assert.ErrorIs(t, err, guard.ErrOrderNotConfirmed)
}

func TestResendOrderForcesChannels(t *testing.T) {
	del := &stubDelivery{res: delivery.DeliverResult{OK: true, Delivered: true}}
	f := setup(t, &stubGeneration{}, del)
	completed := f.newOrder(t, orderdomain.StatusCompleted, nil)
	processing := f.newOrder(t, orderdomain.StatusProcessing, nil)
	ctx := context.Background()

	_, err := f.sched.ResendOrder(ctx, processing.ID.String(), delivery.DeliverOptions{ForceEmail: true})
	assert.ErrorIs(t, err, guard.ErrOrderNotCompleted)

	opts := delivery.DeliverOptions{ForceEmail: true, ForceWhatsApp: true}
	res, err := f.sched.ResendOrder(ctx, completed.ID.String(), opts)
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, []delivery.DeliverOptions{opts}, del.opts)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSchedulerMetricsForTest()
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
