package dialogue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bdobrica/Kanri/internal/kanri/nlp"
)

func sampleState() *State {
	three, why := 3, "sem acesso"
	s := NewState()
	s.Pending = &SlotRequest{
		Intent:     nlp.IntentBlockedTask,
		Known:      nlp.Entities{TaskIndex: &three, Reason: &why},
		Missing:    MissingReason,
		Confidence: 0.97,
		CreatedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Reprompts:  1,
	}
	s.LastMessage = &LastMessage{Key: "bloqueado 3", At: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	s.Remember("done/single", 2, 3)
	return s
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	fresh, err := m.Load(ctx, "nobody")
	if err != nil || fresh.Awaiting() || fresh.LastMessage != nil {
		t.Fatalf("unknown user should get a fresh state: %+v, %v", fresh, err)
	}

	if err := m.Save(ctx, "u1", sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := m.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Pending == nil || got.Pending.Reprompts != 1 || *got.Pending.Known.TaskIndex != 3 {
		t.Errorf("pending not restored: %+v", got.Pending)
	}

	// Mutating a loaded state must not leak into the store before Save.
	got.Pending = nil
	got.Remember("done/single", 0, 3)
	again, _ := m.Load(ctx, "u1")
	if again.Pending == nil {
		t.Error("store shares memory with the loaded state")
	}
	if h := again.History("done/single"); len(h) != 1 {
		t.Errorf("history leaked: %v", h)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestState_Remember(t *testing.T) {
	s := &State{}
	for i := 0; i < 5; i++ {
		s.Remember("k", i, 3)
	}
	h := s.History("k")
	if len(h) != 3 || h[0] != 2 || h[2] != 4 {
		t.Errorf("history = %v, want [2 3 4]", h)
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	url := os.Getenv("KANRI_TEST_REDIS_URL")
	if url == "" {
		t.Skip("KANRI_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := DialRedis(ctx, url)
	if err != nil {
		t.Fatalf("DialRedis: %v", err)
	}
	defer client.Close()

	prefix := "kanri:test:" + t.Name() + ":"
	r := NewRedisStore(client, prefix, time.Minute)
	defer client.Del(ctx, prefix+"u1")

	if err := r.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	fresh, err := r.Load(ctx, "u1")
	if err != nil || fresh.Awaiting() {
		t.Fatalf("expected fresh state, got %+v, %v", fresh, err)
	}
	if err := r.Save(ctx, "u1", sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := r.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Pending == nil || got.Pending.Intent != nlp.IntentBlockedTask || *got.Pending.Known.Reason != "sem acesso" {
		t.Errorf("pending not restored: %+v", got.Pending)
	}
	if !got.Pending.CreatedAt.Equal(sampleState().Pending.CreatedAt) {
		t.Errorf("CreatedAt = %v", got.Pending.CreatedAt)
	}
	if h := got.History("done/single"); len(h) != 1 || h[0] != 2 {
		t.Errorf("history = %v", h)
	}
	if ttl := client.TTL(ctx, prefix+"u1").Val(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v", ttl)
	}
}

func TestRedisStore_PingUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	if err := NewRedisStore(client, "", 0).Ping(context.Background()); err == nil {
		t.Fatal("Ping succeeded against a closed port")
	}
}

func TestNewRedisStore_Defaults(t *testing.T) {
	r := NewRedisStore(nil, "", 0)
	if r.prefix != DefaultRedisPrefix || r.ttl != DefaultRedisTTL {
		t.Errorf("defaults not applied: %q %v", r.prefix, r.ttl)
	}
	if r.key("u1") != DefaultRedisPrefix+"u1" {
		t.Errorf("key = %q", r.key("u1"))
	}
}

func TestLockTable(t *testing.T) {
	lt := newLockTable()
	ctx := context.Background()

	release, err := lt.acquire(ctx, "u1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r2, err := lt.acquire(ctx, "u1")
		if err != nil {
			t.Errorf("second acquire: %v", err)
			return
		}
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the lock is held")
	case <-time.After(20 * time.Millisecond):
	}

	// A different user is never blocked.
	other, err := lt.acquire(ctx, "u2")
	if err != nil {
		t.Fatalf("acquire u2: %v", err)
	}
	other()

	release()
	release() // second call is a no-op
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never got the lock")
	}

	deadline := time.Now().Add(time.Second)
	for lt.len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := lt.len(); n != 0 {
		t.Errorf("lock table should be empty, has %d entries", n)
	}
}
