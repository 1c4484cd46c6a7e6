package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/xiaot623/rica/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rec := &domain.SessionRecord{ID: "s1", Mode: domain.ModeText, CreatedAt: time.Now()}
	if err := store.CreateSession(ctx, rec); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil || got.Mode != domain.ModeText || got.StoppedAt != nil {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := store.MarkSessionStopped(ctx, "s1"); err != nil {
		t.Fatalf("MarkSessionStopped failed: %v", err)
	}
	got, _ = store.GetSession(ctx, "s1")
	if got.StoppedAt == nil {
		t.Fatalf("expected stopped_at to be set")
	}

	missing, err := store.GetSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil session, got %+v, %v", missing, err)
	}

	list, err := store.ListSessions(ctx, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected sessions: %+v, %v", list, err)
	}
}

func TestSQLiteStoreTurns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if err := store.CreateSession(ctx, &domain.SessionRecord{ID: "s1", Mode: domain.ModeVoice, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	now := time.Now()
	for i := 1; i <= 3; i++ {
		turn := &domain.Turn{
			ID:              fmt.Sprintf("t%d", i),
			SessionID:       "s1",
			Seq:             i,
			Mode:            domain.ModeVoice,
			InputText:       fmt.Sprintf("input %d", i),
			RawAudioRef:     "audio_1",
			SelectedAgentID: "general",
			ResponseText:    "ok",
			Outcome:         domain.OutcomeSuccess,
			Spoken:          true,
			Timestamps:      domain.TurnTimestamps{Received: now, Routed: &now, Responded: &now},
		}
		if err := store.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}
	if err := store.AppendTurn(ctx, &domain.Turn{
		ID: "t4", SessionID: "s1", Seq: 4, Mode: domain.ModeVoice, Outcome: domain.OutcomeTranscriptionError,
		ResponseText: "Sorry, I didn't catch that.", Error: "timeout", Timestamps: domain.TurnTimestamps{Received: now},
	}); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	all, err := store.ListTurns(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ListTurns failed: %v", err)
	}
	if len(all) != 4 || all[0].ID != "t1" || all[3].ID != "t4" {
		t.Fatalf("unexpected turns: %+v", all)
	}
	if all[3].Timestamps.Routed != nil || all[3].Error != "timeout" || all[3].RawAudioRef != "" {
		t.Fatalf("unexpected failed turn: %+v", all[3])
	}
	if !all[0].Spoken || all[0].SelectedAgentID != "general" || all[0].Timestamps.Responded == nil {
		t.Fatalf("unexpected first turn: %+v", all[0])
	}

	last, err := store.ListTurns(ctx, "s1", 2)
	if err != nil || len(last) != 2 || last[0].ID != "t3" || last[1].ID != "t4" {
		t.Fatalf("unexpected window: %+v, %v", last, err)
	}
}

func TestSQLiteStoreTurnRequiresSession(t *testing.T) {
	store := newTestStore(t)
	err := store.AppendTurn(context.Background(), &domain.Turn{ID: "t1", SessionID: "ghost", Mode: domain.ModeText, Outcome: domain.OutcomeSuccess, Timestamps: domain.TurnTimestamps{Received: time.Now()}})
	if err == nil {
		t.Fatalf("expected foreign key violation")
	}
}

func TestSQLiteStoreReopenSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := time.Now().Add(-time.Hour)
	if err := store.CreateSession(ctx, &domain.SessionRecord{ID: "default", Mode: domain.ModeText, CreatedAt: first}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for i := 1; i <= 2; i++ {
		turn := &domain.Turn{
			ID: fmt.Sprintf("t%d", i), SessionID: "default", Seq: i, Mode: domain.ModeText,
			InputText: "q", ResponseText: "a", Outcome: domain.OutcomeSuccess,
			Timestamps: domain.TurnTimestamps{Received: time.Now()},
		}
		if err := store.AppendTurn(ctx, turn); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}
	if err := store.MarkSessionStopped(ctx, "default"); err != nil {
		t.Fatalf("MarkSessionStopped failed: %v", err)
	}

	if err := store.CreateSession(ctx, &domain.SessionRecord{ID: "default", Mode: domain.ModeVoice, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("recreating a session must not fail: %v", err)
	}
	got, err := store.GetSession(ctx, "default")
	if err != nil || got == nil {
		t.Fatalf("GetSession failed: %+v, %v", got, err)
	}
	if got.StoppedAt != nil {
		t.Fatalf("reopened session still marked stopped at %v", got.StoppedAt)
	}
	if got.Mode != domain.ModeVoice {
		t.Fatalf("expected mode to be updated, got %s", got.Mode)
	}

	seq, err := store.LastSeq(ctx, "default")
	if err != nil || seq != 2 {
		t.Fatalf("expected last seq 2, got %d, %v", seq, err)
	}
	seq, err = store.LastSeq(ctx, "unknown")
	if err != nil || seq != 0 {
		t.Fatalf("expected last seq 0 for unknown session, got %d, %v", seq, err)
	}
}
