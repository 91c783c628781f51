package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllTracksMergesCallbackTracks(t *testing.T) {
	meta := TrackMetadata{
		Tracks:   []string{"https://cdn/a.mp3", " "},
		Callback: &CallbackRecord{TrackURLs: []string{"https://cdn/a.mp3", "https://cdn/b.mp3"}},
	}
	assert.Equal(t, []string{"https://cdn/a.mp3", "https://cdn/b.mp3"}, meta.AllTracks())
}

func TestTrackMetadataScanTolerance(t *testing.T) {
	var meta TrackMetadata
	require.NoError(t, meta.Scan(nil))
	require.NoError(t, meta.Scan([]byte(`{"taskId":"t-1","tracks":["x"]}`)))
	assert.Equal(t, "t-1", meta.TaskID)

	assert.ErrorIs(t, meta.Scan("{not json"), ErrCorruptPayload)
	assert.Error(t, meta.Scan(42))
}

func TestOrderHelpers(t *testing.T) {
	var nilOrder *Order
	assert.False(t, nilOrder.HasTrack())

	url := "https://cdn/a.mp3"
	o := &Order{TrackURL: &url, TrackMetadata: TrackMetadata{TaskID: "t"}}
	assert.True(t, o.HasTrack())
	assert.True(t, o.HasTaskInFlight())
}
