package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/presence-gateway/internal/auth"
	"github.com/vovakirdan/presence-gateway/internal/core"
	"github.com/vovakirdan/presence-gateway/internal/proto"
)

// WSOptions tunes the WebSocket transport.
type WSOptions struct {
	OriginPatterns     []string
	ReadLimit          int64
	EventBuffer        int
	MaxEventsPerMinute int
	Clock              clock.Clock
}

// WSHandler upgrades HTTP connections and bridges them to the presence gateway.
type WSHandler struct {
	gateway *core.Gateway
	jwt     *auth.JWTConfig
	opts    WSOptions
	log     *zerolog.Logger
}

// session is the per-connection state kept by the transport.
type session struct {
	client  *core.Client
	claims  *auth.Claims
	limiter *rateLimiter
}

// NewWSHandler builds a new WebSocket handler. A nil or empty jwt config
// accepts anonymous connections.
func NewWSHandler(gateway *core.Gateway, jwt *auth.JWTConfig, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &WSHandler{gateway: gateway, jwt: jwt, opts: opts, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	var claims *auth.Claims
	if h.jwt.Enabled() {
		token := r.URL.Query().Get("token")
		if token == "" {
			stdhttp.Error(w, "missing token", stdhttp.StatusUnauthorized)
			return
		}
		c, err := auth.ValidateToken(h.jwt, token)
		if err != nil {
			h.log.Debug().Err(err).Msg("ws token rejected")
			stdhttp.Error(w, "invalid token", stdhttp.StatusUnauthorized)
			return
		}
		claims = c
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.opts.ReadLimit > 0 {
		conn.SetReadLimit(h.opts.ReadLimit)
	}

	s := &session{
		client:  core.NewClient(uuid.NewString(), h.opts.EventBuffer),
		claims:  claims,
		limiter: newRateLimiter(h.opts.MaxEventsPerMinute, h.opts.Clock),
	}
	h.gateway.Connect(s.client)
	defer h.gateway.Disconnect(s.client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, s)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, s.client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if code := websocket.CloseStatus(err); code != -1 {
			status = code
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", s.client.ID()).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, s *session) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !s.limiter.allow() {
			h.reply(s, core.EventUserError, core.NewError(core.ErrCodeRateLimited, "Too many events"))
			continue
		}
		h.handleInbound(ctx, s, inbound)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID()).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) reply(s *session, event string, payload any) {
	h.gateway.Dispatcher().Send(s.client, event, payload)
}
