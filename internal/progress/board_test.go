package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joseph-ayodele/packing-tracker/constants"
	"github.com/joseph-ayodele/packing-tracker/internal/async"
	"github.com/joseph-ayodele/packing-tracker/internal/common"
)

func TestBoardReconcilesOpenViews(t *testing.T) {
	eng, _ := newEngine(t)
	job := startedJob(t, eng)

	dispatcher := async.NewDispatcher(nil, async.WithWorkers(2))
	t.Cleanup(func() { dispatcher.Shutdown(context.Background()) })

	board := NewBoard(eng, dispatcher, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- board.Run(ctx) }()

	view, err := board.Open(ctx, job.ID, "packer", Hooks{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	again, err := board.Open(ctx, job.ID, "packer", Hooks{})
	if err != nil || again != view {
		t.Fatalf("second open returned a different view (err %v)", err)
	}
	if _, err := board.Open(ctx, job.ID, "supervisor", Hooks{}); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("open for another actor: err = %v, want conflict", err)
	}

	progress := job.PhaseProgress
	progress.Picking = 55
	if _, err := eng.SaveProgress(ctx, job.ID, progress, constants.PhasePicking, false, "supervisor"); err != nil {
		t.Fatalf("remote save: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for view.Snapshot().Progress.Picking != 55 {
		if time.Now().After(deadline) {
			t.Fatalf("view never picked up remote progress; picking = %d", view.Snapshot().Progress.Picking)
		}
		time.Sleep(10 * time.Millisecond)
	}

	board.Close(job.ID)
	if ids := board.Views(); len(ids) != 0 {
		t.Fatalf("open views after close = %v", ids)
	}
	if _, err := view.UpdateProgress(constants.PhasePicking, 60); err == nil {
		t.Fatal("closed view accepted an edit")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("board did not stop")
	}
}
