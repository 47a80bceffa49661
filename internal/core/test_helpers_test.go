package core

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/educhat/internal/store"
	"github.com/vovakirdan/educhat/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// nextEvent returns the very next event, failing on timeout.
func nextEvent(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event received")
		return nil
	}
}

func expectNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()
	timeout := time.After(150 * time.Millisecond)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		case <-timeout:
			return
		}
	}
}

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// hintResolver mimics the resolver chain when no external record exists.
type hintResolver struct{}

func (hintResolver) Resolve(_ context.Context, _ string, hint string) string {
	if h := strings.TrimSpace(hint); h != "" {
		return h
	}
	return "Unknown"
}

type failingStore struct {
	mu    sync.Mutex
	saves int
}

func (f *failingStore) SaveMessage(context.Context, *store.Message) error {
	f.mu.Lock()
	f.saves++
	f.mu.Unlock()
	return errors.New("disk full")
}

func (f *failingStore) ListRecent(context.Context, string, int) ([]*store.Message, error) {
	return nil, sql.ErrConnDone
}

func newTestHub(t *testing.T, st store.MessageStore, opts ...Option) *Hub {
	t.Helper()
	hub := NewHub(st, hintResolver{}, nil, opts...)
	t.Cleanup(hub.Wait)
	return hub
}

func newTestClient(hub *Hub, id, uid string) *Client {
	c := NewClient(id, Identity{UID: uid}, 32)
	hub.RegisterClient(c)
	return c
}
