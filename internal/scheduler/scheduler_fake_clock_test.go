package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
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
	templatedomain "github.com/smallbiznis/songgift/internal/prompttemplate/domain"
	templaterepo "github.com/smallbiznis/songgift/internal/prompttemplate/repository"
	templateservice "github.com/smallbiznis/songgift/internal/prompttemplate/service"
	"github.com/smallbiznis/songgift/internal/providers/email"
	"github.com/smallbiznis/songgift/internal/providers/music"
	"github.com/smallbiznis/songgift/internal/providers/textgen"
	"github.com/smallbiznis/songgift/internal/providers/whatsapp"
	schedtesting "github.com/smallbiznis/songgift/internal/scheduler/testing"
	settingsdomain "github.com/smallbiznis/songgift/internal/settings/domain"
	settingsrepo "github.com/smallbiznis/songgift/internal/settings/repository"
	settingsservice "github.com/smallbiznis/songgift/internal/settings/service"
	"github.com/smallbiznis/songgift/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedText struct{}

func (fixedText) Generate(_ context.Context, req textgen.GenerateRequest) (string, error) {
	switch {
	case strings.Contains(req.SystemPrompt, "JSON"):
		return "```json\n{\"mood\":\"warm\",\"vibe\":\"nostalgic\",\"tempo\":\"medium\"}\n```", nil
	case strings.Contains(req.SystemPrompt, "songwriter"):
		return "[Verse]\nBudi, the lanterns are still lit", nil
	default:
		return "Warm acoustic guitar with soft brushed drums", nil
	}
}

// scriptedMusic reports PENDING until the third poll, then two tracks.
type scriptedMusic struct {
	mu      sync.Mutex
	submits int
	polls   int
}

func (m *scriptedMusic) Submit(context.Context, music.SubmitRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submits++
	return "task-budi", nil
}

func (m *scriptedMusic) Poll(_ context.Context, _ string, taskID string) (music.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	if m.polls < 3 {
		return music.Task{TaskID: taskID, Status: "PENDING"}, nil
	}
	return music.Task{
		TaskID:    taskID,
		Status:    "SUCCESS",
		TrackURLs: []string{"https://cdn.example.com/budi-1.mp3", "https://cdn.example.com/budi-2.mp3"},
	}, nil
}

type outbox struct {
	mu   sync.Mutex
	sent []email.Message
}

func (o *outbox) Send(_ context.Context, msg email.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func TestSchedulerDrivesOrderFromConfirmationToDelivery(t *testing.T) {
	t.Cleanup(swapPrometheusRegistry(prometheus.NewRegistry()))
	ctx := context.Background()

	db := testutil.OpenSQLite(t,
		&orderdomain.Order{},
		&eventdomain.Event{},
		&templatedomain.Template{},
		&settingsdomain.Settings{},
	)
	node := testutil.SnowflakeNode(t)
	fake := clock.NewFakeClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	pipeline := config.NewStaticPipelineConfigHolder(config.DefaultPipelineConfig())

	events := eventservice.New(eventservice.Params{DB: db, Log: log, Clock: fake, Repo: eventrepo.Provide()})
	templates := templateservice.New(templateservice.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: templaterepo.Provide()})
	require.NoError(t, templates.EnsureDefaults(ctx))
	settings, err := settingsservice.New(settingsservice.Params{
		DB:    db,
		Log:   log,
		Cfg:   config.Config{SettingsEncryptionSecret: "test-secret", PublicBaseURL: "https://gift.example.com"},
		Clock: fake,
		Repo:  settingsrepo.Provide(),
	})
	require.NoError(t, err)
	textKey, musicKey := "sk-text", "sk-music"
	_, err = settings.Update(ctx, settingsdomain.UpdateRequest{TextAPIKey: &textKey, MusicAPIKey: &musicKey})
	require.NoError(t, err)

	orders := orderrepo.Provide()
	orderSvc := orderservice.New(orderservice.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: orders, Events: events})
	mus := &scriptedMusic{}
	gen := generation.New(generation.Params{
		DB:        db,
		Log:       log,
		Clock:     fake,
		Orders:    orders,
		Events:    events,
		Templates: templates,
		Settings:  settings,
		Text:      fixedText{},
		Music:     mus,
		Pipeline:  pipeline,
	})
	mail := &outbox{}
	del := delivery.New(delivery.Params{
		DB:       db,
		Log:      log,
		Clock:    fake,
		Orders:   orders,
		Events:   events,
		Settings: settings,
		Email:    mail,
		WhatsApp: whatsapp.NewRegistry(whatsapp.NewMockFactory(log)),
	})
	sched, err := New(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fake,
		Orders:     orders,
		OrderSvc:   orderSvc,
		Events:     events,
		Settings:   settings,
		Locker:     lock.NewMemory(),
		Generation: gen,
		Delivery:   del,
		Pipeline:   pipeline,
	})
	require.NoError(t, err)

	created, err := orderSvc.Create(ctx, orderdomain.CreateOrderRequest{
		RecipientName: "Budi",
		Occasion:      "anniversary",
		Story:         "We met at the night market in Yogyakarta and never left.",
		Contact:       orderdomain.Contact{Name: "Sari", Email: "sari@example.com", WhatsApp: "+62 812-3456-7890"},
	})
	require.NoError(t, err)

	res, err := sched.GenerationTick(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.OrderID, "unconfirmed orders are not generated")

	_, err = orderSvc.Confirm(ctx, created.ID.String())
	require.NoError(t, err)

	var outcomes []string
	for i := 0; i < 10; i++ {
		res, err := sched.GenerationTick(ctx)
		require.NoError(t, err)
		if res.OrderID == 0 {
			break
		}
		outcomes = append(outcomes, res.Outcome)
		fake.Advance(5 * time.Second)
	}
	assert.Equal(t, []string{
		obsmetrics.OrderOutcomePending,
		obsmetrics.OrderOutcomePending,
		obsmetrics.OrderOutcomePending,
		obsmetrics.OrderOutcomeCompleted,
	}, outcomes)
	assert.Equal(t, 1, mus.submits)
	assert.Equal(t, 3, mus.polls)

	order, err := orders.FindByID(ctx, db, created.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, order.Status)
	assert.Len(t, order.TrackMetadata.Tracks, 2)
	assert.Equal(t, "warm", order.Input.MusicPreferences.Mood)
	assert.Equal(t, orderdomain.DeliveryScheduled, order.DeliveryStatus)

	for _, typ := range []eventdomain.EventType{
		eventdomain.EventLyricsGenerated,
		eventdomain.EventMoodGenerated,
		eventdomain.EventMusicTaskSubmitted,
		eventdomain.EventMusicGenerated,
		eventdomain.EventGenerationCompleted,
	} {
		n, err := events.Count(ctx, order.ID, typ)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n, typ)
	}

	res, err = sched.DeliveryTick(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.OrderID, "delivery waits for the configured delay")

	moved, err := schedtesting.NewTimeAccelerator(db).MakeAllDeliveriesDue(ctx, fake.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)

	res, err = sched.DeliveryTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, obsmetrics.OrderOutcomeDelivered, res.Outcome)

	order, err = orders.FindByID(ctx, db, created.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.Delivered, order.DeliveryStatus)
	require.NotNil(t, order.DeliveredAt)
	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.sent[0].Text, "budi-2.mp3")

	res, err = sched.DeliveryTick(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.OrderID, "delivered orders leave the queue")

	_, err = sched.RetryOrder(ctx, created.ID.String())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		res, err := sched.GenerationTick(ctx)
		require.NoError(t, err)
		if res.OrderID == 0 {
			break
		}
		fake.Advance(5 * time.Second)
	}
	assert.Equal(t, 2, mus.submits)

	order, err = orders.FindByID(ctx, db, created.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, order.Status)
	assert.Equal(t, orderdomain.DeliveryScheduled, order.DeliveryStatus)
	assert.Nil(t, order.DeliveredAt)

	moved, err = schedtesting.NewTimeAccelerator(db).MakeAllDeliveriesDue(ctx, fake.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)

	res, err = sched.DeliveryTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, obsmetrics.OrderOutcomeDelivered, res.Outcome)

	order, err = orders.FindByID(ctx, db, created.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.Delivered, order.DeliveryStatus)
	require.NotNil(t, order.DeliveredAt)
	require.Len(t, mail.sent, 2, "a regenerated song is delivered again")

	delivered, err := events.Count(ctx, order.ID, eventdomain.EventDelivered)
	require.NoError(t, err)
	assert.EqualValues(t, 2, delivered)
}

func TestTimeAcceleratorAgesGeneration(t *testing.T) {
	f := setup(t, &stubGeneration{}, &stubDelivery{})
	started := f.clock.Now()
	order := f.newOrder(t, orderdomain.StatusProcessing, func(o *orderdomain.Order) { o.GenerationStartedAt = &started })

	require.NoError(t, schedtesting.NewTimeAccelerator(f.db).AgeGeneration(context.Background(), order.ID, 11*time.Minute))
	got := f.reload(t, order.ID)
	require.NotNil(t, got.GenerationStartedAt)
	assert.True(t, got.GenerationStartedAt.Equal(started.Add(-11*time.Minute)))
}
