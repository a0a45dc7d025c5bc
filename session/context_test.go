package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestFactory(t *testing.T, ttl time.Duration) (*Factory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFactory(client, "ra", ttl), mr
}

func TestRedisContextRoundTrip(t *testing.T) {
	factory, _ := newTestFactory(t, time.Hour)
	ctx := factory.Context(context.Background(), "sess1")

	if got := ctx.Get("tipo_accesso", "none"); got != "none" {
		t.Errorf("missing key = %q, want default", got)
	}

	ctx.Set("tipo_accesso", "form")
	if got := ctx.Get("tipo_accesso", ""); got != "form" {
		t.Errorf("stored value = %q, want form", got)
	}
}

func TestRedisContextIsolatesSessions(t *testing.T) {
	factory, _ := newTestFactory(t, time.Hour)

	first := factory.Context(context.Background(), "sess1")
	second := factory.Context(context.Background(), "sess2")

	first.Set("k", "v1")
	if got := second.Get("k", ""); got != "" {
		t.Errorf("value leaked across sessions: %q", got)
	}
}

func TestRedisContextAppliesTTL(t *testing.T) {
	factory, mr := newTestFactory(t, time.Minute)
	ctx := factory.Context(context.Background(), "sess1")
	ctx.Set("k", "v")

	if ttl := mr.TTL("ra:sess:sess1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want (0, 1m]", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if got := ctx.Get("k", "gone"); got != "gone" {
		t.Errorf("value survived expiry: %q", got)
	}
}

func TestFactoryDestroy(t *testing.T) {
	factory, _ := newTestFactory(t, time.Hour)
	ctx := factory.Context(context.Background(), "sess1")
	ctx.Set("k", "v")

	if err := factory.Destroy(context.Background(), "sess1"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if got := ctx.Get("k", "gone"); got != "gone" {
		t.Errorf("value survived destroy: %q", got)
	}
}

func TestFactoryNewIDUnique(t *testing.T) {
	factory, _ := newTestFactory(t, time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := factory.NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if id == "" || seen[id] {
			t.Fatalf("duplicate or empty id %q", id)
		}
		seen[id] = true
	}
}

func TestMemoryContext(t *testing.T) {
	m := NewMemory()

	if got := m.Get("k", "def"); got != "def" {
		t.Errorf("missing key = %q, want default", got)
	}
	m.Set("k", "v")
	if got := m.Get("k", ""); got != "v" {
		t.Errorf("stored value = %q, want v", got)
	}
}
