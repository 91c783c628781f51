package whatsapp

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const ProviderMock = "mock"

// MockProvider logs the message and reports success.
type MockProvider struct {
	log *zap.Logger
}

func (p *MockProvider) Name() string { return ProviderMock }

func (p *MockProvider) Send(ctx context.Context, msg Message) Result {
	id := "mock-" + uuid.NewString()
	p.log.Info("whatsapp message simulated",
		zap.String("provider_message_id", id),
		zap.Bool("has_media", msg.MediaURL != ""),
	)
	return Result{OK: true, ProviderMessageID: id}
}

type mockFactory struct {
	log *zap.Logger
}

func NewMockFactory(log *zap.Logger) Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return &mockFactory{log: log.Named("whatsapp.mock")}
}

func (f *mockFactory) Provider() string { return ProviderMock }

func (f *mockFactory) New(map[string]string) (Provider, error) {
	return &MockProvider{log: f.log}, nil
}
