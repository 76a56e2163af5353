package repository

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/mathieu-neron/chanwatch/internal/model"
)

const fileTimeLayout = "2006-01-02 15:04:05"

// StatsFile writes the human-readable stats report. Each write replaces the
// whole file: the report goes to a temp file in the same directory and is
// renamed over the target while <path>.lock is held, so readers never see a
// partial report.
type StatsFile struct {
	path string
	lock *flock.Flock
}

func NewStatsFile(path string) *StatsFile {
	return &StatsFile{path: path, lock: flock.New(path + ".lock")}
}

func (f *StatsFile) Name() string { return "file" }

// Path returns the report location.
func (f *StatsFile) Path() string { return f.path }

// WriteSnapshots renders snaps and atomically replaces the report.
func (f *StatsFile) WriteSnapshots(ctx context.Context, at time.Time, snaps []model.StatsSnapshot) error {
	locked, err := f.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock stats file: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock stats file: %s is held", f.lock.Path())
	}
	defer f.lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp stats file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(RenderStats(at, snaps)); err != nil {
		tmp.Close()
		return fmt.Errorf("write stats: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync stats: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close stats: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace stats file: %w", err)
	}
	return nil
}

// RenderStats formats one flush as the plain-text report.
func RenderStats(at time.Time, snaps []model.StatsSnapshot) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Fecha: %s\n", at.Format(fileTimeLayout))
	for _, s := range snaps {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Canal: %s\n", s.Channel)
		fmt.Fprintf(&b, "Tiempo Activo: %.2f minutos\n", s.ElapsedMinutes)
		fmt.Fprintf(&b, "Puntos Por Visualizar: %.2f\n", s.ViewingPoints)
		fmt.Fprintf(&b, "Puntos Reclamados: %.2f\n", s.ClaimedPoints)
		fmt.Fprintf(&b, "Total Puntos: %.2f\n", s.TotalPoints)
		fmt.Fprintf(&b, "Puntos Por Minuto: %.2f\n", model.Round2(s.PointsPerMinute))
	}
	return b.Bytes()
}
