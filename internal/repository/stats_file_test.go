package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/mathieu-neron/chanwatch/internal/model"
)

var flushTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestRenderStats(t *testing.T) {
	snaps := []model.StatsSnapshot{{
		Channel:         "mixwell",
		ElapsedMinutes:  12.5,
		ViewingPoints:   41.666,
		ClaimedPoints:   50,
		TotalPoints:     91.666,
		PointsPerMinute: 7.33328,
	}}

	got := string(RenderStats(flushTime, snaps))
	want := "Fecha: 2026-03-14 09:30:00\n" +
		"\n" +
		"Canal: mixwell\n" +
		"Tiempo Activo: 12.50 minutos\n" +
		"Puntos Por Visualizar: 41.67\n" +
		"Puntos Reclamados: 50.00\n" +
		"Total Puntos: 91.67\n" +
		"Puntos Por Minuto: 7.33\n"
	if got != want {
		t.Errorf("RenderStats mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStats_NoChannels(t *testing.T) {
	got := string(RenderStats(flushTime, nil))
	if got != "Fecha: 2026-03-14 09:30:00\n" {
		t.Errorf("RenderStats(nil) = %q", got)
	}
}

func TestStatsFile_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.txt")
	f := NewStatsFile(path)
	ctx := context.Background()

	first := []model.StatsSnapshot{{Channel: "a"}, {Channel: "b"}}
	if err := f.WriteSnapshots(ctx, flushTime, first); err != nil {
		t.Fatalf("first write: %v", err)
	}
	second := []model.StatsSnapshot{{Channel: "b", TotalPoints: 3}}
	if err := f.WriteSnapshots(ctx, flushTime.Add(5*time.Minute), second); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "Canal: a") {
		t.Error("stale channel a survived the rewrite")
	}
	if strings.Count(content, "Fecha:") != 1 {
		t.Errorf("expected exactly one header, got:\n%s", content)
	}
	if !strings.Contains(content, "Fecha: 2026-03-14 09:35:00") {
		t.Errorf("header not updated:\n%s", content)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestStatsFile_LockHeldElsewhere(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.txt")
	other := flock.New(path + ".lock")
	if ok, err := other.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = (%v, %v)", ok, err)
	}
	defer other.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := NewStatsFile(path).WriteSnapshots(ctx, flushTime, nil); err == nil {
		t.Fatal("expected an error while the lock is held")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("stats file written without the lock")
	}
}
