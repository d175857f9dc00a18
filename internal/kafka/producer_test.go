package kafka

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestPublishInboxFull(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "t", 1, zap.NewNop())
	if err := p.Publish([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := p.Publish([]byte("k"), []byte("v")); !errors.Is(err, ErrInboxFull) {
		t.Fatalf("expected ErrInboxFull, got %v", err)
	}
}

func TestPublishAfterClose(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "t", 4, zap.NewNop())
	p.Close()
	p.Close()
	if err := p.PublishTo("other", nil, []byte("v")); !errors.Is(err, ErrProducerClosed) {
		t.Fatalf("expected ErrProducerClosed, got %v", err)
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "t", 4, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.WaitClosed()
	if err := p.Publish(nil, []byte("v")); !errors.Is(err, ErrProducerClosed) {
		t.Fatalf("expected ErrProducerClosed, got %v", err)
	}
}
