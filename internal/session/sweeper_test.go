package session

import (
	"context"
	"testing"
	"time"

	"github.com/pedrovictor26/ofix-assistant/internal/extract"
)

func TestSweeperRemovesExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	store := NewStore(15 * time.Minute)
	clockAt(store, &now)

	store.Update("gone", extract.Entities{CustomerName: "João"})
	now = now.Add(16 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(store, 5*time.Millisecond).Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for store.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("sweeper never removed the expired context")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
