package service

import (
	"context"
	"testing"
	"time"

	"github.com/mathieu-neron/chanwatch/internal/model"
)

func TestCacheService_DisabledIsNoop(t *testing.T) {
	c := NewCacheService("", time.Minute, nopLog)
	if c.Client() != nil {
		t.Fatal("expected nil client without a URL")
	}
	if err := c.WriteSnapshots(context.Background(), time.Now(), []model.StatsSnapshot{{Channel: "a"}}); err != nil {
		t.Errorf("WriteSnapshots on disabled cache = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close on disabled cache = %v", err)
	}
	if c.ttl != 2*time.Minute {
		t.Errorf("ttl = %s, want twice the stats interval", c.ttl)
	}
}

func TestCacheService_InvalidURLDisables(t *testing.T) {
	c := NewCacheService("not a url", time.Minute, nopLog)
	if c.Client() != nil {
		t.Fatal("expected nil client for an invalid URL")
	}
}

func TestStatsKey(t *testing.T) {
	if got := statsKey("mixwell"); got != "stats:mixwell" {
		t.Errorf("statsKey = %q", got)
	}
	snaps := []model.StatsSnapshot{{Channel: "a"}, {Channel: "b"}}
	if !containsChannel(snaps, "b") || containsChannel(snaps, "c") {
		t.Error("containsChannel mismatch")
	}
}
