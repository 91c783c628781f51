package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/order/domain"
	"github.com/smallbiznis/songgift/internal/order/repository"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	eventrepo "github.com/smallbiznis/songgift/internal/orderevent/repository"
	eventservice "github.com/smallbiznis/songgift/internal/orderevent/service"
	"github.com/smallbiznis/songgift/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	svc    domain.Service
	events eventdomain.Service
	clock  *clock.FakeClock
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenSQLite(t, &domain.Order{}, &eventdomain.Event{})
	fake := clock.NewFakeClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	events := eventservice.New(eventservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  eventrepo.Provide(),
	})
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  testutil.SnowflakeNode(t),
		Clock:  fake,
		Repo:   repository.Provide(),
		Events: events,
	})
	return fixture{db: db, svc: svc, events: events, clock: fake}
}

func validRequest() domain.CreateOrderRequest {
	return domain.CreateOrderRequest{
		RecipientName: "  Budi ",
		Occasion:      "birthday",
		Story:         "We met at the night market in Yogyakarta.",
		Contact: domain.Contact{
			Name:     "Sari",
			Email:    "Sari@Example.com",
			WhatsApp: "+62 812-3456-7890",
		},
	}
}

func TestCreateNormalizesInput(t *testing.T) {
	f := setup(t)

	order, err := f.svc.Create(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCreated, order.Status)
	assert.Equal(t, domain.DeliveryPending, order.DeliveryStatus)
	assert.Equal(t, "Budi", order.Input.RecipientName)
	assert.Equal(t, "sari@example.com", order.Input.Contact.Email)
	assert.Equal(t, "+6281234567890", order.Input.Contact.WhatsApp)

	stored, err := f.svc.GetByID(context.Background(), order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, order.Input, stored.Input)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)

	cases := []struct {
		name   string
		mutate func(*domain.CreateOrderRequest)
		want   error
	}{
		{name: "missing recipient", mutate: func(r *domain.CreateOrderRequest) { r.RecipientName = " " }, want: domain.ErrInvalidRecipientName},
		{name: "missing story", mutate: func(r *domain.CreateOrderRequest) { r.Story = "" }, want: domain.ErrInvalidStory},
		{name: "missing whatsapp", mutate: func(r *domain.CreateOrderRequest) { r.Contact.WhatsApp = "" }, want: domain.ErrInvalidWhatsApp},
		{name: "letters in whatsapp", mutate: func(r *domain.CreateOrderRequest) { r.Contact.WhatsApp = "0812abc" }, want: domain.ErrInvalidWhatsApp},
		{name: "bad email", mutate: func(r *domain.CreateOrderRequest) { r.Contact.Email = "nope" }, want: domain.ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := f.svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	req := validRequest()
	req.Contact.Email = ""
	_, err := f.svc.Create(context.Background(), req)
	assert.NoError(t, err, "email is optional at intake")
}

func TestConfirmTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, confirmed.Status)

	again, err := f.svc.Confirm(ctx, order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, again.Status)

	require.NoError(t, f.db.Model(&domain.Order{}).Where("id = ?", order.ID).Update("status", domain.StatusFailed).Error)
	_, err = f.svc.Confirm(ctx, order.ID.String())
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.svc.Confirm(ctx, "not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
	_, err = f.svc.Confirm(ctx, "12345")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPublicViewNeverShowsErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&domain.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"status":        domain.StatusFailed,
		"error_message": "music provider returned 500",
	}).Error)

	view, err := f.svc.GetPublicView(ctx, order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "processing", view.Status)
	assert.NotContains(t, view.Message, "500")
	assert.Empty(t, view.TrackURL)
}

func TestResetGenerationClearsFields(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)

	now := f.clock.Now()
	require.NoError(t, repository.Provide().Update(ctx, f.db, order.ID, domain.Fields{
		"status":                  domain.StatusFailed,
		"lyrics_text":             "la la",
		"music_task_id":           "task-1",
		"track_url":               "https://cdn.example.com/a.mp3",
		"track_metadata":          domain.TrackMetadata{TaskID: "task-1", Tracks: []string{"https://cdn.example.com/a.mp3"}},
		"error_message":           "boom",
		"generation_started_at":   now,
		"generation_completed_at": now,
	}))

	reset, err := f.svc.ResetGeneration(ctx, order.ID.String())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusProcessing, reset.Status)
	assert.Equal(t, domain.DeliveryPending, reset.DeliveryStatus)
	assert.Nil(t, reset.LyricsText)
	assert.Nil(t, reset.TrackURL)
	assert.Nil(t, reset.MusicTaskID)
	assert.Nil(t, reset.ErrorMessage)
	assert.Nil(t, reset.GenerationStartedAt)
	assert.Empty(t, reset.TrackMetadata.TaskID)

	exists, err := f.events.Exists(ctx, order.ID, eventdomain.EventGenerationRetryRequested)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestListPaginates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, validRequest())
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	first, err := f.svc.List(ctx, domain.ListOrderRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	assert.True(t, first.HasMore)

	second, err := f.svc.List(ctx, domain.ListOrderRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.False(t, second.HasMore)
	assert.True(t, second.Orders[0].CreatedAt.Before(first.Orders[1].CreatedAt))
}
