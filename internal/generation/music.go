package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	templatedomain "github.com/smallbiznis/songgift/internal/prompttemplate/domain"
	"github.com/smallbiznis/songgift/internal/providers/music"
	"go.uber.org/zap"
)

const (
	blockedMissingCallback = "missing_callback_url"
	mockTrackBaseURL       = "https://mock.songgift.local/tracks/"
	maxStyleRunes          = 1000
)

// advanceMusic returns a non-nil Result when the run must stop pending.
func (s *Service) advanceMusic(ctx context.Context, r *run) (*Result, error) {
	order := r.order
	meta := order.TrackMetadata

	if order.HasTrack() {
		s.refreshVariants(ctx, r)
		return nil, nil
	}

	if r.settings.MusicAPIKey == "" {
		return nil, s.mockTrack(ctx, r)
	}

	if meta.TaskID == "" {
		return s.submit(ctx, r)
	}
	return s.poll(ctx, r)
}

func (s *Service) mockTrack(ctx context.Context, r *run) error {
	order := r.order
	name := slug.Make(order.Input.RecipientName)
	if name == "" {
		name = "song"
	}
	trackURL := mockTrackBaseURL + name + "-" + order.ID.String() + ".mp3"

	meta := order.TrackMetadata
	meta.Mocked = true
	meta.Status = "MOCK"
	meta.BlockedReason = ""
	meta.Tracks = orderdomain.MergeTracks(meta.Tracks, []string{trackURL})

	set, err := s.orders.SetTrackURLIfEmpty(ctx, s.db, order.ID, trackURL, s.clock.Now())
	if err != nil {
		return err
	}
	if err := s.update(ctx, order.ID, orderdomain.Fields{"track_metadata": meta}); err != nil {
		return err
	}
	order.TrackMetadata = meta
	if set {
		order.TrackURL = &trackURL
		s.emit(ctx, order.ID, eventdomain.EventMusicGenerated, "mock track generated", map[string]any{
			"mocked":     true,
			"trackCount": len(meta.Tracks),
		})
	}
	return nil
}

func (s *Service) submit(ctx context.Context, r *run) (*Result, error) {
	order := r.order
	meta := order.TrackMetadata

	callbackURL := strings.TrimSpace(r.settings.MusicCallbackURL)
	if callbackURL == "" {
		// Sticky marker so each tick short-circuits until an operator sets the URL.
		if meta.BlockedReason != blockedMissingCallback {
			meta.BlockedReason = blockedMissingCallback
			if err := s.update(ctx, order.ID, orderdomain.Fields{"track_metadata": meta}); err != nil {
				return nil, err
			}
			order.TrackMetadata = meta
			s.emit(ctx, order.ID, eventdomain.EventMusicGenerationBlocked, "music callback URL is not configured", map[string]any{
				"reason": blockedMissingCallback,
			})
			r.log.Warn("music generation blocked", zap.String("reason", blockedMissingCallback))
		}
		return &Result{Pending: true, Reason: "music_generation_blocked"}, nil
	}

	tmpl := r.templates[templatedomain.TypeMusic]
	vars := order.Input.Vars()
	vars["lyrics"] = deref(order.LyricsText)
	vars["moodDescription"] = deref(order.MoodDescription)
	style := truncateRunes(templatedomain.Render(tmpl.Body, vars), maxStyleRunes)
	title := songTitle(order.Input)

	start := time.Now()
	taskID, err := s.music.Submit(ctx, music.SubmitRequest{
		APIKey:      r.settings.MusicAPIKey,
		CallbackURL: callbackURL,
		Model:       r.settings.MusicModel,
		Title:       title,
		Style:       style,
		Lyrics:      deref(order.LyricsText),
		VocalGender: order.Input.MusicPreferences.VocalGender,
	})
	s.metrics.RecordProviderCall(ctx, "music", "submit", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("submit music task: %w", err)
	}

	now := s.clock.Now()
	prefs := order.Input.MusicPreferences
	meta.TaskID = taskID
	meta.Status = "SUBMITTED"
	meta.Model = r.settings.MusicModel
	meta.Title = music.TruncateTitle(title)
	meta.Style = style
	meta.BlockedReason = ""
	meta.SubmittedAt = &now
	meta.StyleAudit = &orderdomain.StyleAudit{
		TemplateVersion: tmpl.Version,
		Genre:           prefs.Genre,
		Mood:            prefs.Mood,
		Vibe:            prefs.Vibe,
		Tempo:           prefs.Tempo,
	}
	if err := s.update(ctx, order.ID, orderdomain.Fields{
		"track_metadata": meta,
		"music_task_id":  taskID,
	}); err != nil {
		return nil, err
	}
	order.TrackMetadata = meta

	s.emit(ctx, order.ID, eventdomain.EventMusicTaskSubmitted, "music task submitted", map[string]any{
		"taskId": taskID,
	})
	r.log.Info("music task submitted", zap.String("task_id", taskID))
	return &Result{Pending: true, Reason: "music_task_submitted", TaskID: taskID}, nil
}

func (s *Service) poll(ctx context.Context, r *run) (*Result, error) {
	order := r.order
	meta := order.TrackMetadata

	task, err := s.pollTask(ctx, r)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	previousStatus := meta.Status
	meta.Status = task.Status
	meta.LastPolledAt = &now
	meta.PollCount++
	meta.Tracks = orderdomain.MergeTracks(meta.Tracks, task.TrackURLs)

	// Tracks win over the status: a callback failure can still carry audio.
	if !task.Ready() {
		if err := s.update(ctx, order.ID, orderdomain.Fields{"track_metadata": meta}); err != nil {
			return nil, err
		}
		if task.Failed() {
			return nil, fmt.Errorf("%w: task %s status %s", ErrMusicTaskFailed, meta.TaskID, task.Status)
		}
		order.TrackMetadata = meta
		if previousStatus != task.Status {
			s.emit(ctx, order.ID, eventdomain.EventMusicStatusPolled, "music task status changed", map[string]any{
				"taskId": meta.TaskID,
				"status": task.Status,
				"polls":  meta.PollCount,
			})
		}
		return &Result{Pending: true, Reason: "music_pending", TaskID: meta.TaskID}, nil
	}

	trackURL := task.TrackURL()
	set, err := s.orders.SetTrackURLIfEmpty(ctx, s.db, order.ID, trackURL, now)
	if err != nil {
		return nil, err
	}
	if err := s.update(ctx, order.ID, orderdomain.Fields{"track_metadata": meta}); err != nil {
		return nil, err
	}
	order.TrackMetadata = meta
	if set {
		order.TrackURL = &trackURL
		s.emit(ctx, order.ID, eventdomain.EventMusicGenerated, "music generated", map[string]any{
			"taskId":     meta.TaskID,
			"trackCount": len(meta.AllTracks()),
		})
		r.log.Info("music generated", zap.String("task_id", meta.TaskID), zap.Int("track_count", len(meta.AllTracks())))
	}
	return nil, nil
}

// refreshVariants polls again when a real task produced fewer variants than
// expected. Failures are logged; the completion timeout bounds the wait.
func (s *Service) refreshVariants(ctx context.Context, r *run) {
	meta := r.order.TrackMetadata
	if meta.Mocked || meta.TaskID == "" || r.settings.MusicAPIKey == "" {
		return
	}
	if len(meta.AllTracks()) >= r.cfg.MinTrackVariants {
		return
	}

	task, err := s.pollTask(ctx, r)
	if err != nil {
		r.log.Warn("variant refresh failed", zap.String("task_id", meta.TaskID), zap.Error(err))
		return
	}
	now := s.clock.Now()
	meta.Status = task.Status
	meta.LastPolledAt = &now
	meta.PollCount++
	meta.Tracks = orderdomain.MergeTracks(meta.Tracks, task.TrackURLs)
	if err := s.update(ctx, r.order.ID, orderdomain.Fields{"track_metadata": meta}); err != nil {
		r.log.Warn("persist refreshed variants failed", zap.Error(err))
		return
	}
	r.order.TrackMetadata = meta
}

func (s *Service) pollTask(ctx context.Context, r *run) (music.Task, error) {
	start := time.Now()
	task, err := s.music.Poll(ctx, r.settings.MusicAPIKey, r.order.TrackMetadata.TaskID)
	s.metrics.RecordProviderCall(ctx, "music", "poll", time.Since(start), err)
	if err != nil {
		return music.Task{}, fmt.Errorf("poll music task: %w", err)
	}
	if task.TaskID == "" {
		task.TaskID = r.order.TrackMetadata.TaskID
	}
	if task.Status == "" && !task.Ready() {
		return music.Task{}, errors.New("poll music task: empty status")
	}
	return task, nil
}

func songTitle(in orderdomain.Input) string {
	if occasion := strings.TrimSpace(in.Occasion); occasion != "" {
		return fmt.Sprintf("For %s (%s)", in.RecipientName, occasion)
	}
	return "For " + in.RecipientName
}

func truncateRunes(v string, limit int) string {
	runes := []rune(v)
	if len(runes) <= limit {
		return v
	}
	return string(runes[:limit])
}
