package webhook

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/config"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	orderrepo "github.com/smallbiznis/songgift/internal/order/repository"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	eventrepo "github.com/smallbiznis/songgift/internal/orderevent/repository"
	eventservice "github.com/smallbiznis/songgift/internal/orderevent/service"
	"github.com/smallbiznis/songgift/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const callbackBody = `{"code":200,"msg":"All generated successfully.","data":{"callbackType":"complete","task_id":"task-42","data":[{"audio_url":"https://cdn.example.com/a.mp3"},{"audio_url":"https://cdn.example.com/b.mp3"}]}}`

type fixture struct {
	db     *gorm.DB
	svc    *Service
	orders orderdomain.Repository
	events eventdomain.Service
	clock  *clock.FakeClock
	node   *snowflake.Node
}

func setup(t *testing.T, signingKey string) fixture {
	t.Helper()
	db := testutil.OpenSQLite(t, &orderdomain.Order{}, &eventdomain.Event{})
	fake := clock.NewFakeClock(time.Date(2026, 5, 5, 8, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	events := eventservice.New(eventservice.Params{DB: db, Log: log, Clock: fake, Repo: eventrepo.Provide()})
	orders := orderrepo.Provide()

	svc := New(Params{
		DB:     db,
		Log:    log,
		Clock:  fake,
		Cfg:    config.Config{WebhookSigningKey: signingKey},
		Orders: orders,
		Events: events,
	})
	return fixture{db: db, svc: svc, orders: orders, events: events, clock: fake, node: testutil.SnowflakeNode(t)}
}

func (f fixture) orderWithTask(t *testing.T, taskID string) *orderdomain.Order {
	t.Helper()
	now := f.clock.Now()
	order := &orderdomain.Order{
		ID:             f.node.Generate(),
		Status:         orderdomain.StatusProcessing,
		DeliveryStatus: orderdomain.DeliveryPending,
		Input:          orderdomain.Input{RecipientName: "Budi", Story: "ulang tahun"},
		MusicTaskID:    &taskID,
		TrackMetadata:  orderdomain.TrackMetadata{TaskID: taskID, Status: "PENDING"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, f.orders.Insert(context.Background(), f.db, order))
	return order
}

func (f fixture) count(t *testing.T, id snowflake.ID, eventType eventdomain.EventType) int64 {
	t.Helper()
	n, err := f.events.Count(context.Background(), id, eventType)
	require.NoError(t, err)
	return n
}

func TestCallbackSetsTrackURLOnce(t *testing.T) {
	f := setup(t, "")
	order := f.orderWithTask(t, "task-42")
	ctx := context.Background()

	first, err := f.svc.HandleMusicCallback(ctx, []byte(callbackBody), http.Header{})
	require.NoError(t, err)
	assert.True(t, first.Matched)
	assert.True(t, first.TrackURLSet)

	second, err := f.svc.HandleMusicCallback(ctx, []byte(callbackBody), http.Header{})
	require.NoError(t, err)
	assert.False(t, second.TrackURLSet)
	assert.Equal(t, 2, second.CallbackSeen)

	assert.EqualValues(t, 1, f.count(t, order.ID, eventdomain.EventMusicGenerated))
	assert.EqualValues(t, 2, f.count(t, order.ID, eventdomain.EventMusicCallbackReceived))

	got, err := f.orders.FindByID(ctx, f.db, order.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TrackURL)
	assert.Equal(t, "https://cdn.example.com/a.mp3", *got.TrackURL)
	require.NotNil(t, got.TrackMetadata.Callback)
	assert.Equal(t, "complete", got.TrackMetadata.Callback.Type)
	assert.Len(t, got.TrackMetadata.AllTracks(), 2)
	assert.Equal(t, "PENDING", got.TrackMetadata.Status)
}

func TestCallbackKeepsExistingTrackURL(t *testing.T) {
	f := setup(t, "")
	order := f.orderWithTask(t, "task-42")
	ctx := context.Background()
	existing := "https://cdn.example.com/polled.mp3"
	require.NoError(t, f.orders.Update(ctx, f.db, order.ID, orderdomain.Fields{"track_url": existing}))

	res, err := f.svc.HandleMusicCallback(ctx, []byte(callbackBody), http.Header{})
	require.NoError(t, err)
	assert.False(t, res.TrackURLSet)

	got, err := f.orders.FindByID(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, existing, *got.TrackURL)
	assert.EqualValues(t, 0, f.count(t, order.ID, eventdomain.EventMusicGenerated))
}

func TestCallbackWithoutTaskID(t *testing.T) {
	f := setup(t, "")
	_, err := f.svc.HandleMusicCallback(context.Background(), []byte(`{"code":200,"data":{"callbackType":"complete"}}`), http.Header{})
	assert.ErrorIs(t, err, ErrMissingTaskID)

	_, err = f.svc.HandleMusicCallback(context.Background(), []byte(`not json`), http.Header{})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestCallbackForUnknownTaskIsAcknowledged(t *testing.T) {
	f := setup(t, "")
	res, err := f.svc.HandleMusicCallback(context.Background(), []byte(callbackBody), http.Header{})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, "task-42", res.TaskID)
}

func TestCallbackSignature(t *testing.T) {
	key := "whsec-test"
	f := setup(t, key)
	order := f.orderWithTask(t, "task-42")
	ctx := context.Background()

	bad := http.Header{}
	bad.Set(HeaderTimestamp, "1767600000")
	bad.Set(HeaderSignature, base64.StdEncoding.EncodeToString(Sign([]byte("other"), "task-42", "1767600000")))
	_, err := f.svc.HandleMusicCallback(ctx, []byte(callbackBody), bad)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	garbled := http.Header{}
	garbled.Set(HeaderTimestamp, "1767600000")
	garbled.Set(HeaderSignature, "%%%")
	_, err = f.svc.HandleMusicCallback(ctx, []byte(callbackBody), garbled)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.EqualValues(t, 0, f.count(t, order.ID, eventdomain.EventMusicCallbackReceived))

	good := http.Header{}
	good.Set(HeaderTimestamp, "1767600000")
	good.Set(HeaderSignature, base64.StdEncoding.EncodeToString(Sign([]byte(key), "task-42", "1767600000")))
	res, err := f.svc.HandleMusicCallback(ctx, []byte(callbackBody), good)
	require.NoError(t, err)
	assert.True(t, res.TrackURLSet)
}

func TestCallbackSignatureSkippedWithoutHeaders(t *testing.T) {
	f := setup(t, "whsec-test")
	f.orderWithTask(t, "task-42")

	res, err := f.svc.HandleMusicCallback(context.Background(), []byte(callbackBody), http.Header{})
	require.NoError(t, err)
	assert.True(t, res.Matched)
}
