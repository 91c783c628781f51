package domain

import (
	"context"
	"errors"
)

type PublishRequest struct {
	Type         Type   `json:"-"`
	Body         string `json:"body"`
	SystemPrompt string `json:"system_prompt"`
}

type Service interface {
	Active(ctx context.Context) (ActiveSet, error)
	Versions(ctx context.Context, t Type) ([]Template, error)
	Publish(ctx context.Context, req PublishRequest) (*Template, error)
	EnsureDefaults(ctx context.Context) error
}

var (
	ErrInvalidType = errors.New("invalid_template_type")
	ErrInvalidBody = errors.New("invalid_template_body")
)
