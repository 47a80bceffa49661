package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vovakirdan/educhat/internal/store"
)

func newTestStore(t *testing.T, seed string) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		if err := Migrate(db); err != nil {
			return err
		}
		if seed == "" {
			return nil
		}
		_, err := db.Exec(seed)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveMessageAssignsID(t *testing.T) {
	s := newTestStore(t, "")
	ctx := context.Background()

	msg := &store.Message{Room: "global", UID: "u1", SenderName: "Asha", Text: "hello", CreatedAt: time.Now()}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("expected id to be assigned")
	}

	second := &store.Message{Room: "global", UID: "u1", SenderName: "Asha", Text: "again", CreatedAt: time.Now()}
	if err := s.SaveMessage(ctx, second); err != nil {
		t.Fatalf("save: %v", err)
	}
	if second.ID == msg.ID {
		t.Fatalf("ids must differ, both %s", msg.ID)
	}
}

func TestListRecentChronologicalAndScoped(t *testing.T) {
	s := newTestStore(t, "")
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		msg := &store.Message{
			Room:       "physics",
			UID:        "u1",
			SenderName: "Asha",
			Text:       fmt.Sprintf("m%d", i+1),
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	other := &store.Message{Room: "chemistry", UID: "u2", SenderName: "Ravi", Text: "elsewhere", CreatedAt: base}
	if err := s.SaveMessage(ctx, other); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.ListRecent(ctx, "physics", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"m3", "m4", "m5"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Text != w {
			t.Fatalf("position %d: got %q want %q", i, got[i].Text, w)
		}
		if got[i].Room != "physics" {
			t.Fatalf("leaked message from room %q", got[i].Room)
		}
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("created_at not preserved: %v", got[0].CreatedAt)
	}
}

func TestListRecentDefaultsLimit(t *testing.T) {
	s := newTestStore(t, "")
	ctx := context.Background()

	for i := 0; i < store.DefaultHistoryLimit+5; i++ {
		msg := &store.Message{Room: "global", UID: "u", SenderName: "n", Text: fmt.Sprint(i), CreatedAt: time.Now()}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.ListRecent(ctx, "global", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != store.DefaultHistoryLimit {
		t.Fatalf("expected %d, got %d", store.DefaultHistoryLimit, len(got))
	}
	if got[len(got)-1].Text != fmt.Sprint(store.DefaultHistoryLimit+4) {
		t.Fatalf("newest message should be last, got %q", got[len(got)-1].Text)
	}
}

func TestListRecentEmptyRoom(t *testing.T) {
	s := newTestStore(t, "")

	got, err := s.ListRecent(context.Background(), "nobody-here", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestProfileAndIdentityLookups(t *testing.T) {
	s := newTestStore(t, `
		INSERT INTO profiles (uid, name, display_name) VALUES ('u1', 'Asha', 'asha_k');
		INSERT INTO identity_users (uid, email, display_name) VALUES ('u1', 'asha@example.com', 'asha@example.com');
	`)
	ctx := context.Background()

	p, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Name != "Asha" || p.DisplayName != "asha_k" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	u, err := s.GetIdentityUser(ctx, "u1")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if u.Email != "asha@example.com" {
		t.Fatalf("unexpected identity user: %+v", u)
	}

	if _, err := s.GetProfile(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetIdentityUser(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
