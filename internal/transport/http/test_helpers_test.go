package http

import (
	"context"
	"database/sql"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/educhat/internal/auth"
	"github.com/vovakirdan/educhat/internal/config"
	"github.com/vovakirdan/educhat/internal/core"
	"github.com/vovakirdan/educhat/internal/identity"
	"github.com/vovakirdan/educhat/internal/proto"
	"github.com/vovakirdan/educhat/internal/store/sqlite"
)

const testSeed = `
INSERT INTO profiles (uid, name, display_name) VALUES ('u-asha', 'Asha', 'asha_k');
INSERT INTO identity_users (uid, email, display_name) VALUES ('u-asha', 'asha@example.com', 'Asha K');
`

type testEnv struct {
	server *httptest.Server
	store  *sqlite.SQLiteStore
	hub    *core.Hub
	jwt    *auth.JWTConfig
}

// createTestStore creates an in-memory SQLite store with schema and seed applied.
func createTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		if err := sqlite.Migrate(db); err != nil {
			return err
		}
		_, err := db.Exec(testSeed)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	return newTestEnvWithResolver(t, mutate, nil)
}

// newTestEnvWithResolver swaps in resolver for sender names when it is not nil.
func newTestEnvWithResolver(t *testing.T, mutate func(*config.Config), resolver core.SenderResolver) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&cfg)
	}

	logger := zerolog.Nop()
	st := createTestStore(t)

	jwtCfg := &auth.JWTConfig{
		Secret: []byte("test-secret"),
		Issuer: "educonnect",
		TTL:    time.Hour,
	}
	provider := auth.NewJWTProvider(jwtCfg, st)
	gateway := auth.NewGateway(provider, &logger)
	if resolver == nil {
		resolver = identity.NewResolver(st, provider, &logger)
	}
	hub := core.NewHub(st, resolver, &logger, core.WithMaxTextLength(cfg.MaxMessageLength))

	ts := httptest.NewServer(NewRouter(hub, gateway, st, &cfg, &logger))
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Wait)

	return &testEnv{server: ts, store: st, hub: hub, jwt: jwtCfg}
}

func (e *testEnv) token(t *testing.T, uid, name string) string {
	t.Helper()
	tok, err := auth.GenerateToken(e.jwt, uid, name, "")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.server.URL, "http", "ws", 1) + "/ws"
}

// dialBearer connects with the token in the Authorization header.
func (e *testEnv) dialBearer(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// dialAuthFrame connects anonymously and authenticates with the first frame.
func (e *testEnv) dialAuthFrame(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, e.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	send(t, ctx, conn, proto.InboundTypeAuth, proto.AuthData{Token: token})
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) rawOutbound {
	t.Helper()
	var out rawOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	return out
}

// readEvent skips frames until the named event arrives and decodes its data into v.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, v any) {
	t.Helper()
	for {
		out := readFrame(t, ctx, conn)
		if out.Type != proto.OutboundTypeEvent || out.Event != event {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(out.Data, v); err != nil {
				t.Fatalf("unmarshal %s: %v", event, err)
			}
		}
		return
	}
}

// joinRoom joins and waits for both the acknowledgement and the history.
func joinRoom(t *testing.T, ctx context.Context, conn *websocket.Conn, room string) proto.EventRoomMessagesData {
	t.Helper()
	send(t, ctx, conn, proto.InboundTypeJoinRoom, proto.RoomData{Room: room})
	var joined proto.EventJoinedRoomData
	readEvent(t, ctx, conn, proto.EventJoinedRoom, &joined)
	var history proto.EventRoomMessagesData
	readEvent(t, ctx, conn, proto.EventRoomMessages, &history)
	return history
}
