package bus

import (
	"context"
	"testing"
)

func TestNilBus(t *testing.T) {
	var b *Bus

	if err := b.Publish(context.Background(), "lakedash.reports.created", map[string]string{}); err == nil {
		t.Fatal("Publish() on nil bus returned nil error")
	}
	if err := b.Ping(); err == nil {
		t.Fatal("Ping() on nil bus returned nil error")
	}
	if err := b.EnsureStream("LAKEDASH", "lakedash.>"); err == nil {
		t.Fatal("EnsureStream() on nil bus returned nil error")
	}
	if _, err := b.Subscribe(context.Background(), "x", "y", func(context.Context, []byte) error { return nil }); err == nil {
		t.Fatal("Subscribe() on nil bus returned nil error")
	}
	b.Close()
}
