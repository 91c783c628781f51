package generation

import "errors"

var (
	// ErrTemplatesMissing is terminal: no amount of retrying creates a template.
	ErrTemplatesMissing = errors.New("prompt_templates_missing")
	// ErrMusicTaskFailed is terminal for the submitted task; an operator retry submits a new one.
	ErrMusicTaskFailed = errors.New("music_task_failed")
)

// IsTerminal reports errors that must fail the order instead of being retried.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrTemplatesMissing) || errors.Is(err, ErrMusicTaskFailed)
}
