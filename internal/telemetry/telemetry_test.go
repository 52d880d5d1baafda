package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSetupDisabledReturnsNoopProvider(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on disabled provider: %v", err)
	}
}

func TestStartHandlerSpanAndEndSpan(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	ctx, span := p.StartHandlerSpan(context.Background(), "GET /health")
	if ctx == nil || span == nil {
		t.Fatalf("expected non-nil context and span")
	}
	EndSpan(span, time.Now(), nil)
}

func TestStartExecSpanRecordsError(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := p.StartExecSpan(context.Background(), "git", "feature/x")
	EndSpan(span, time.Now(), errors.New("boom"))
}
