package handler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mathieu-neron/chanwatch/internal/model"
	"github.com/mathieu-neron/chanwatch/internal/service"
)

func TestWorkerCollector(t *testing.T) {
	states := []model.WorkerState{
		{Channel: "main", State: model.StateWatching, ViewingPoints: 20, ClaimedPoints: 50},
		{Channel: "side", State: model.StateRecovering, RetryCount: 2},
	}
	wc := NewWorkerCollector(func() []model.WorkerState { return states })

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(wc); err != nil {
		t.Fatalf("register: %v", err)
	}

	// 1 table gauge + 4 series per worker
	if n := testutil.CollectAndCount(wc); n != 9 {
		t.Errorf("collected %d series, want 9", n)
	}

	expected := `
# HELP chanwatch_worker_retry_count Consecutive failures of the channel's worker.
# TYPE chanwatch_worker_retry_count gauge
chanwatch_worker_retry_count{channel="main"} 0
chanwatch_worker_retry_count{channel="side"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "chanwatch_worker_retry_count"); err != nil {
		t.Errorf("retry gauge mismatch: %v", err)
	}

	expected = `
# HELP chanwatch_workers Workers currently in the table.
# TYPE chanwatch_workers gauge
chanwatch_workers 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "chanwatch_workers"); err != nil {
		t.Errorf("workers gauge mismatch: %v", err)
	}
}

func TestCommandResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{service.ErrNotReady, "not_ready"},
		{fmt.Errorf("%w: x", service.ErrAlreadyWatching), "rejected"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := commandResult(tt.err); got != tt.want {
			t.Errorf("commandResult(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrNotReady, 503},
		{service.ErrCapacityExceeded, 409},
		{service.ErrAlreadyWatching, 409},
		{service.ErrNotWatching, 404},
		{service.ErrProtectedChannel, 403},
		{model.ErrChannelInvalid, 400},
		{errors.New("browser crashed"), 500},
	}
	for _, tt := range tests {
		if got := StatusForError(fmt.Errorf("wrapped: %w", tt.err)); got != tt.want {
			t.Errorf("StatusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
