package telemetry_test

import (
	"context"
	"testing"

	"github.com/evetabi/wagerbot/internal/telemetry"
)

func TestSetup_EmptyEndpointIsNoop(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), "wagerbot-test", "")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}

	_, span := telemetry.Tracer().Start(context.Background(), "noop")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Error("no-op provider should produce invalid span contexts")
	}
}
