package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/songgift/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	templatedomain "github.com/smallbiznis/songgift/internal/prompttemplate/domain"
	"github.com/smallbiznis/songgift/internal/providers/textgen"
	"go.uber.org/zap"
)

const enrichmentSystemPrompt = "You are a music producer. Reply with a single JSON object and nothing else."

type inferredPreferences struct {
	Mood  string `json:"mood"`
	Vibe  string `json:"vibe"`
	Tempo string `json:"tempo"`
}

func needsEnrichment(p orderdomain.MusicPreferences) bool {
	return strings.TrimSpace(p.Mood) == "" || strings.TrimSpace(p.Vibe) == "" || strings.TrimSpace(p.Tempo) == ""
}

// enrich fills blank mood/vibe/tempo from the story. It never fails the run.
func (s *Service) enrich(ctx context.Context, r *run) {
	in := r.order.Input
	prompt := fmt.Sprintf(`Infer music preferences for a personalised song.
Recipient: %s
Occasion: %s
Story: %s
Genre: %s
Return JSON with string fields "mood", "vibe" and "tempo" (slow, medium or fast).`,
		in.RecipientName, in.Occasion, in.Story, in.MusicPreferences.Genre)

	temperature := 0.3
	content, err := s.callText(ctx, "enrich", textgen.GenerateRequest{
		APIKey:       r.settings.TextAPIKey,
		Model:        r.settings.TextModel,
		Prompt:       prompt,
		SystemPrompt: enrichmentSystemPrompt,
		Temperature:  &temperature,
	})
	var inferred inferredPreferences
	if err == nil {
		err = textgen.DecodeJSON(content, &inferred)
	}
	if err != nil {
		r.log.Warn("preference enrichment failed", zap.Error(err))
		s.emit(ctx, r.order.ID, eventdomain.EventPreferencesEnrichmentFailed, "preference enrichment failed", map[string]any{
			"error": tracing.SafeError(err).Error(),
		})
		return
	}

	prefs := in.MusicPreferences
	var filled []string
	fill := func(field *string, value, name string) {
		value = strings.TrimSpace(value)
		if strings.TrimSpace(*field) == "" && value != "" {
			*field = value
			filled = append(filled, name)
		}
	}
	fill(&prefs.Mood, inferred.Mood, "mood")
	fill(&prefs.Vibe, inferred.Vibe, "vibe")
	fill(&prefs.Tempo, inferred.Tempo, "tempo")
	if len(filled) == 0 {
		return
	}

	in.MusicPreferences = prefs
	if err := s.update(ctx, r.order.ID, orderdomain.Fields{"input": in}); err != nil {
		r.log.Warn("persist enriched preferences failed", zap.Error(err))
		return
	}
	r.order.Input = in
	s.emit(ctx, r.order.ID, eventdomain.EventPreferencesEnriched, "music preferences enriched", map[string]any{
		"fields": filled,
	})
}

func (s *Service) generateLyrics(ctx context.Context, r *run) error {
	tmpl := r.templates[templatedomain.TypeLyrics]
	vars := r.order.Input.Vars()

	lyrics, mocked, err := s.renderAndGenerate(ctx, r, "lyrics", tmpl, vars, placeholderLyrics(r.order.Input))
	if err != nil {
		return fmt.Errorf("generate lyrics: %w", err)
	}
	if err := s.update(ctx, r.order.ID, orderdomain.Fields{"lyrics_text": lyrics}); err != nil {
		return err
	}
	r.order.LyricsText = &lyrics
	s.emit(ctx, r.order.ID, eventdomain.EventLyricsGenerated, "lyrics generated", map[string]any{
		"templateVersion": tmpl.Version,
		"length":          len([]rune(lyrics)),
		"mocked":          mocked,
	})
	return nil
}

func (s *Service) generateMood(ctx context.Context, r *run) error {
	tmpl := r.templates[templatedomain.TypeMoodDescription]
	vars := r.order.Input.Vars()
	vars["lyrics"] = deref(r.order.LyricsText)

	mood, mocked, err := s.renderAndGenerate(ctx, r, "mood", tmpl, vars, placeholderMood(r.order.Input))
	if err != nil {
		return fmt.Errorf("generate mood description: %w", err)
	}
	if err := s.update(ctx, r.order.ID, orderdomain.Fields{"mood_description": mood}); err != nil {
		return err
	}
	r.order.MoodDescription = &mood
	s.emit(ctx, r.order.ID, eventdomain.EventMoodGenerated, "mood description generated", map[string]any{
		"templateVersion": tmpl.Version,
		"mocked":          mocked,
	})
	return nil
}

// renderAndGenerate returns the placeholder text when no text API key is set
// so unconfigured environments still move orders forward.
func (s *Service) renderAndGenerate(ctx context.Context, r *run, op string, tmpl templatedomain.Template, vars map[string]string, placeholder string) (string, bool, error) {
	if r.settings.TextAPIKey == "" {
		return placeholder, true, nil
	}
	content, err := s.callText(ctx, op, textgen.GenerateRequest{
		APIKey:       r.settings.TextAPIKey,
		Model:        r.settings.TextModel,
		Prompt:       templatedomain.Render(tmpl.Body, vars),
		SystemPrompt: tmpl.SystemPrompt,
	})
	if err != nil {
		return "", false, err
	}
	return content, false, nil
}

func (s *Service) callText(ctx context.Context, op string, req textgen.GenerateRequest) (string, error) {
	start := time.Now()
	content, err := s.text.Generate(ctx, req)
	s.metrics.RecordProviderCall(ctx, "text", op, time.Since(start), err)
	if err == nil && strings.TrimSpace(content) == "" {
		err = fmt.Errorf("textgen: empty %s response", op)
	}
	return strings.TrimSpace(content), err
}

func placeholderLyrics(in orderdomain.Input) string {
	occasion := in.Occasion
	if occasion == "" {
		occasion = "this special day"
	}
	return fmt.Sprintf("[Verse]\nThis one is for %s, on %s\nEvery memory we share still shines\n\n[Chorus]\n%s, this song is yours\nA little melody that says what words cannot",
		in.RecipientName, occasion, in.RecipientName)
}

func placeholderMood(in orderdomain.Input) string {
	mood := in.MusicPreferences.Mood
	if mood == "" {
		mood = "warm"
	}
	return fmt.Sprintf("A %s, heartfelt arrangement with gentle acoustic guitar and soft percussion.", mood)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
