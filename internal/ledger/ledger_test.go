package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestBeginFinishList(t *testing.T) {
	s, _ := openTestStore(t)
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { clock = clock.Add(time.Second); return clock }
	ctx := context.Background()

	id1, err := s.Begin(ctx, "project_1", "run-a", "script")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Finish(ctx, id1, nil); err != nil {
		t.Fatalf("finish: %v", err)
	}
	id2, _ := s.Begin(ctx, "project_1", "run-a", "voice")
	if err := s.Finish(ctx, id2, fmt.Errorf("voice: %w", errors.New("edge-tts failed"))); err != nil {
		t.Fatalf("finish: %v", err)
	}
	id3, _ := s.Begin(ctx, "project_2", "run-b", "script")
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Finish(cancelled, id3, context.Canceled); err != nil {
		t.Fatalf("finish with cancelled ctx: %v", err)
	}

	runs, err := s.List(ctx, "project_1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %+v", runs)
	}
	if runs[0].Stage != "voice" || runs[0].Status != StatusFailed || runs[0].Error != "voice: edge-tts failed" {
		t.Fatalf("unexpected latest run: %+v", runs[0])
	}
	if runs[1].Status != StatusSucceeded || runs[1].Duration() != time.Second {
		t.Fatalf("unexpected first run: %+v", runs[1])
	}

	all, err := s.List(ctx, "", 1)
	if err != nil || len(all) != 1 || all[0].Status != StatusInterrupted {
		t.Fatalf("expected the interrupted run first, got %+v %v", all, err)
	}
}

func TestMarkInterrupted_ScopedToProject(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()
	if _, err := s.Begin(ctx, "project_1", "run-a", "images"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Begin(ctx, "project_2", "run-b", "voice"); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	n, err := s2.MarkInterrupted(ctx, "project_1")
	if err != nil || n != 1 {
		t.Fatalf("mark interrupted: n=%d err=%v", n, err)
	}
	runs, err := s2.List(ctx, "", 0)
	if err != nil || len(runs) != 2 {
		t.Fatalf("list: %+v %v", runs, err)
	}
	if runs[0].ProjectID != "project_2" || runs[0].Status != StatusRunning {
		t.Fatalf("other project must be untouched: %+v", runs[0])
	}
	if runs[1].Status != StatusInterrupted || runs[1].Duration() != 0 {
		t.Fatalf("expected interrupted with no finish time, got %+v", runs[1])
	}
}
