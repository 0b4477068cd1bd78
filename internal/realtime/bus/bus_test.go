package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/membernode/internal/platform/logger"
	"github.com/yungbote/membernode/internal/realtime"
)

func receiveOne(t *testing.T, b Bus, publish realtime.ChainEvent) realtime.ChainEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan realtime.ChainEvent, 1)
	if err := b.StartForwarder(ctx, func(ev realtime.ChainEvent) { got <- ev }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := b.Publish(ctx, publish); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case ev := <-got:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return realtime.ChainEvent{}
}

func TestRedisBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := NewRedisBus(logger.Nop(), RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	defer b.Close()

	want := realtime.ChainEvent{Event: "update", PID: "B", SID: "S", HeadPID: "B", At: time.Unix(1700000000, 0).UTC()}
	got := receiveOne(t, b, want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRedisBusRequiresAddr(t *testing.T) {
	if _, err := NewRedisBus(logger.Nop(), RedisConfig{}); err == nil {
		t.Fatalf("expected error without address")
	}
}

func TestMemoryBus(t *testing.T) {
	b := NewMemoryBus()
	want := realtime.ChainEvent{Event: "delete", PID: "P4", SID: "S", HeadPID: "P3"}
	if got := receiveOne(t, b, want); got != want {
		t.Fatalf("want %+v got %+v", want, got)
	}
	_ = b.Close()
	if err := b.Publish(context.Background(), want); err == nil {
		t.Fatalf("publish after close should fail")
	}
}
