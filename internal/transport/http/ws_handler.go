package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin/render"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/educhat/internal/auth"
	"github.com/vovakirdan/educhat/internal/core"
	"github.com/vovakirdan/educhat/internal/proto"
	"github.com/vovakirdan/educhat/internal/utils"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	maxFrameBytes           = 1 << 16
	closeWriteTimeout       = time.Second
	commandQueueSize        = 32
)

// WSOptions tunes per-connection behavior.
type WSOptions struct {
	HandshakeTimeout   time.Duration
	AllowedOrigins     []string
	RateLimitPerMinute int
	ClientBuffer       int
}

// WSHandler upgrades HTTP connections, authenticates them and bridges them to the hub.
type WSHandler struct {
	hub     *core.Hub
	gateway *auth.Gateway
	opts    WSOptions
	log     *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, gateway *auth.Gateway, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &WSHandler{hub: hub, gateway: gateway, opts: opts, log: logger}
}

// ServeHTTP serves GET /ws. It is mounted outside gin so the upgrade can
// hijack the raw connection.
// A credential on the upgrade request is checked before upgrading; otherwise
// the first frame must be an auth envelope.
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	var (
		identity core.Identity
		err      error
	)
	if token != "" {
		identity, err = h.gateway.Authenticate(r.Context(), token)
		if err != nil {
			h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws upgrade rejected")
			writeJSON(w, stdhttp.StatusUnauthorized, ErrorResponse{Error: auth.Code(err)})
			return
		}
	}

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if token == "" {
		identity, err = h.handshake(ctx, conn)
		if err != nil {
			h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("ws handshake rejected")
			h.reject(conn, err)
			return
		}
	}

	client := core.NewClient(utils.NewID(), identity, h.opts.ClientBuffer)
	h.hub.RegisterClient(client)

	cmds := make(chan *core.Command, commandQueueSize)
	go h.dispatchLoop(ctx, client, cmds)

	errCh := make(chan error, 2)
	go func() {
		defer close(cmds)
		errCh <- h.readLoop(ctx, conn, client, cmds)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	// Membership ends here even if a command is still being handled.
	h.hub.UnregisterClient(client)
	cancel()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			status = websocket.StatusInternalError
			reason = "internal error"
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	_ = conn.Close(status, reason)
}

func (h *WSHandler) acceptOptions() *websocket.AcceptOptions {
	if len(h.opts.AllowedOrigins) == 0 {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: h.opts.AllowedOrigins}
}

// handshake waits for the auth envelope and verifies its token.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (core.Identity, error) {
	hsCtx, cancel := context.WithTimeout(ctx, h.opts.HandshakeTimeout)
	defer cancel()

	var inbound proto.Inbound
	if err := wsjson.Read(hsCtx, conn, &inbound); err != nil {
		return core.Identity{}, errors.Join(auth.ErrAuthMissing, err)
	}
	if inbound.Type != proto.InboundTypeAuth {
		return core.Identity{}, auth.ErrAuthMissing
	}

	var data proto.AuthData
	if err := inbound.DecodeData(&data); err != nil {
		return core.Identity{}, auth.ErrAuthMissing
	}
	return h.gateway.Authenticate(ctx, data.Token)
}

func (h *WSHandler) reject(conn *websocket.Conn, err error) {
	code := auth.Code(err)

	ctx, cancel := context.WithTimeout(context.Background(), closeWriteTimeout)
	defer cancel()
	_ = wsjson.Write(ctx, conn, errorFrame(code, err.Error()))
	_ = conn.Close(websocket.StatusPolicyViolation, code)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, cmds chan<- *core.Command) error {
	limiter := newRateLimiter(h.opts.RateLimitPerMinute)
	limiter.startReset(ctx.Done())

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("discarded undecodable frame")
			continue
		}

		cmd, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("discarded inbound frame")
			continue
		}

		if cmd.Kind == core.CommandSendMessage && !limiter.allow() {
			h.log.Debug().Err(core.ErrRateLimited).Str("client_id", client.ID).Msg("discarded inbound frame")
			continue
		}

		select {
		case cmds <- cmd:
		default:
			h.log.Warn().Str("client_id", client.ID).Str("command", cmd.Kind.String()).Msg("command queue full, dropping frame")
		}
	}
}

// dispatchLoop runs the connection's commands one at a time, in arrival order.
// It stops when the reader closes cmds or the client is unregistered.
func (h *WSHandler) dispatchLoop(ctx context.Context, client *core.Client, cmds <-chan *core.Command) {
	for {
		select {
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			h.hub.Dispatch(ctx, client, cmd)
		case <-client.Done():
			return
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeJSON(w stdhttp.ResponseWriter, status int, v any) {
	r := render.JSON{Data: v}
	r.WriteContentType(w)
	w.WriteHeader(status)
	_ = r.Render(w)
}
