package http

import (
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/educhat/internal/config"
	"github.com/vovakirdan/educhat/internal/core"
	"github.com/vovakirdan/educhat/internal/proto"
	"github.com/vovakirdan/educhat/internal/store"
)

func TestWebSocketJoinDeliversAckThenHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i, text := range []string{"m1", "m2", "m3"} {
		if err := env.store.SaveMessage(ctx, &store.Message{
			Room: "global", UID: "u-asha", SenderName: "Asha", Text: text,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	conn := env.dialBearer(t, ctx, env.token(t, "u-asha", "Asha"))
	send(t, ctx, conn, proto.InboundTypeJoinRoom, struct{}{})

	first := readFrame(t, ctx, conn)
	if first.Event != proto.EventJoinedRoom {
		t.Fatalf("expected joinedRoom first, got %q", first.Event)
	}
	var joined proto.EventJoinedRoomData
	if err := json.Unmarshal(first.Data, &joined); err != nil || joined.Room != "global" {
		t.Fatalf("unexpected joinedRoom payload %s (%v)", first.Data, err)
	}

	second := readFrame(t, ctx, conn)
	if second.Event != proto.EventRoomMessages {
		t.Fatalf("expected roomMessages second, got %q", second.Event)
	}
	var history proto.EventRoomMessagesData
	if err := json.Unmarshal(second.Data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history.Messages))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if history.Messages[i].Text != want {
			t.Fatalf("history[%d] = %q, want %q", i, history.Messages[i].Text, want)
		}
	}
}

func TestWebSocketSendBroadcastsToRoomIncludingSender(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	asha := env.dialBearer(t, ctx, env.token(t, "u-asha", "asha@example.com"))
	ravi := env.dialAuthFrame(t, ctx, env.token(t, "u-ravi", "Ravi"))

	joinRoom(t, ctx, asha, "general")
	joinRoom(t, ctx, ravi, "general")

	send(t, ctx, asha, proto.InboundTypeSendMessage, proto.SendMessageData{
		Text:        "hi there",
		Room:        "general",
		ClientID:    "c1",
		DisplayName: "asha@example.com",
	})

	for name, conn := range map[string]*websocket.Conn{"sender": asha, "peer": ravi} {
		var msg proto.Message
		readEvent(t, ctx, conn, proto.EventNewMessage, &msg)
		if msg.Text != "hi there" || msg.Room != "general" || msg.UID != "u-asha" {
			t.Fatalf("%s got unexpected message: %+v", name, msg)
		}
		if msg.SenderName != "Asha" {
			t.Fatalf("%s: profile name should win, got %q", name, msg.SenderName)
		}
		if msg.ClientID != "c1" {
			t.Fatalf("%s: clientId not echoed: %+v", name, msg)
		}
		if msg.ID == "" {
			t.Fatalf("%s: missing server id", name)
		}
	}

	send(t, ctx, ravi, proto.InboundTypeSendMessage, proto.SendMessageData{Text: "hello", DisplayName: "Ravi"})
	var reply proto.Message
	readEvent(t, ctx, asha, proto.EventNewMessage, &reply)
	if reply.Room != "general" || reply.SenderName != "Ravi" {
		t.Fatalf("expected hint name in current room, got %+v", reply)
	}

	msgs, err := env.store.ListRecent(ctx, "general", 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
}

func TestWebSocketDiscardsBlankAndMalformedEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dialBearer(t, ctx, env.token(t, "u-asha", "Asha"))
	joinRoom(t, ctx, conn, "")

	send(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{Text: "   "})
	send(t, ctx, conn, "selfDestruct", struct{}{})
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	send(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{Text: "real"})

	var msg proto.Message
	readEvent(t, ctx, conn, proto.EventNewMessage, &msg)
	if msg.Text != "real" {
		t.Fatalf("expected the blank send to be dropped, got %q", msg.Text)
	}

	msgs, err := env.store.ListRecent(ctx, "global", 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one persisted message, got %d", len(msgs))
	}
}

func TestWebSocketTypingExcludesSender(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	asha := env.dialBearer(t, ctx, env.token(t, "u-asha", "Asha"))
	ravi := env.dialBearer(t, ctx, env.token(t, "u-ravi", "Ravi"))
	joinRoom(t, ctx, asha, "global")
	joinRoom(t, ctx, ravi, "global")

	send(t, ctx, asha, proto.InboundTypeTyping, proto.TypingData{Room: "global", DisplayName: "Asha"})

	var typing proto.EventTypingData
	readEvent(t, ctx, ravi, proto.EventTyping, &typing)
	if typing.UID != "u-asha" || typing.DisplayName != "Asha" || typing.Room != "global" {
		t.Fatalf("unexpected typing payload: %+v", typing)
	}

	// The sender's next frame is its own message, not its typing indicator.
	send(t, ctx, asha, proto.InboundTypeSendMessage, proto.SendMessageData{Text: "done typing"})
	next := readFrame(t, ctx, asha)
	if next.Event != proto.EventNewMessage {
		t.Fatalf("sender received %q before its message", next.Event)
	}
}

func TestWebSocketAuthMissing(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	send(t, ctx, conn, proto.InboundTypeJoinRoom, proto.RoomData{Room: "global"})

	out := readFrame(t, ctx, conn)
	if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != core.ErrCodeAuthMissing {
		t.Fatalf("expected AUTH_MISSING error frame, got %+v", out)
	}

	var next rawOutbound
	err = wsjson.Read(ctx, conn, &next)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if len(env.hub.RoomMembers("global")) != 0 {
		t.Fatalf("unauthenticated connection reached the room")
	}
}

func TestWebSocketAuthInvalidFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	send(t, ctx, conn, proto.InboundTypeAuth, proto.AuthData{Token: "expired-or-forged"})

	out := readFrame(t, ctx, conn)
	if out.Error == nil || out.Error.Code != core.ErrCodeAuthInvalid {
		t.Fatalf("expected AUTH_INVALID error frame, got %+v", out)
	}
}

func TestWebSocketUpgradeRejectsBadCredential(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, env.wsURL(), &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": []string{"Bearer nope"}},
	})
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}

	_, resp, err = websocket.Dial(ctx, env.wsURL()+"?token=nope", nil)
	if err == nil || resp == nil || resp.StatusCode != stdhttp.StatusUnauthorized {
		t.Fatalf("expected query token to be rejected with 401, got %v", err)
	}
}

func TestWebSocketQueryTokenAccepted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL()+"?token="+env.token(t, "u-asha", "Asha"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	joinRoom(t, ctx, conn, "physics")
	if members := env.hub.RoomMembers("physics"); len(members) != 1 {
		t.Fatalf("expected one member, got %v", members)
	}
}

func TestWebSocketDisconnectLeavesRooms(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": []string{"Bearer " + env.token(t, "u-asha", "Asha")}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	joinRoom(t, ctx, conn, "one")
	joinRoom(t, ctx, conn, "two")

	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(env.hub.RoomMembers("one")) == 0 && len(env.hub.RoomMembers("two")) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connection still registered after disconnect")
}

// stalledResolver blocks every lookup until release is closed.
type stalledResolver struct {
	entered chan struct{}
	release chan struct{}
}

func (r *stalledResolver) Resolve(_ context.Context, _, hint string) string {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-r.release
	return hint
}

func TestWebSocketDisconnectDuringStalledSendLeavesRooms(t *testing.T) {
	resolver := &stalledResolver{entered: make(chan struct{}, 1), release: make(chan struct{})}
	env := newTestEnvWithResolver(t, nil, resolver)
	t.Cleanup(func() { close(resolver.release) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": []string{"Bearer " + env.token(t, "u-asha", "Asha")}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	joinRoom(t, ctx, conn, "global")

	send(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{Text: "stuck"})
	select {
	case <-resolver.entered:
	case <-ctx.Done():
		t.Fatalf("send never reached the resolver")
	}

	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(env.hub.RoomMembers("global")) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connection stayed in the room while its send was stalled")
}

func TestWebSocketRateLimitDropsExcessSends(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimitPerMinute = 1 })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dialBearer(t, ctx, env.token(t, "u-asha", "Asha"))
	joinRoom(t, ctx, conn, "global")

	send(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{Text: "first"})
	send(t, ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{Text: "second"})
	send(t, ctx, conn, proto.InboundTypeTyping, proto.TypingData{Room: "global"})

	var msg proto.Message
	readEvent(t, ctx, conn, proto.EventNewMessage, &msg)
	if msg.Text != "first" {
		t.Fatalf("unexpected message %q", msg.Text)
	}

	// Join is not rate limited and acts as a barrier for the dropped send.
	joinRoom(t, ctx, conn, "barrier")
	msgs, err := env.store.ListRecent(ctx, "global", 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected the second send to be dropped, got %d rows", len(msgs))
	}
}

func TestUnknownInboundType(t *testing.T) {
	_, err := inboundToCommand(proto.Inbound{Type: "explode"})
	if !errors.Is(err, errUnknownType) {
		t.Fatalf("expected errUnknownType, got %v", err)
	}
}
