package net_test

import (
	"context"
	"testing"

	pnet "hma/internal/platform/net"
)

func TestWithRequest_And_Getter(t *testing.T) {
	base := context.Background()

	t.Run("sets request id", func(t *testing.T) {
		ctx := pnet.WithRequest(base, "req-123")
		if got := pnet.RequestID(ctx); got != "req-123" {
			t.Fatalf("RequestID got %q want %q", got, "req-123")
		}
	})

	t.Run("empty id returns same ctx", func(t *testing.T) {
		ctx := pnet.WithRequest(base, "")
		if ctx != base {
			t.Fatalf("expected same context when id is empty")
		}
		if got := pnet.RequestID(ctx); got != "" {
			t.Fatalf("RequestID got %q want empty", got)
		}
	})
}
