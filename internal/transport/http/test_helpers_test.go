package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/presence-gateway/internal/auth"
	"github.com/vovakirdan/presence-gateway/internal/config"
	"github.com/vovakirdan/presence-gateway/internal/core"
	"github.com/vovakirdan/presence-gateway/internal/metrics"
	"github.com/vovakirdan/presence-gateway/internal/proto"
	"github.com/vovakirdan/presence-gateway/internal/service/conversations"
	"github.com/vovakirdan/presence-gateway/internal/service/messages"
	"github.com/vovakirdan/presence-gateway/internal/service/users"
	"github.com/vovakirdan/presence-gateway/internal/store/sqlite"
)

type testEnv struct {
	ts       *httptest.Server
	store    *sqlite.SQLiteStore
	gateway  *core.Gateway
	messages *messages.Service
	jwt      *auth.JWTConfig
}

// newTestEnv starts a server on an in-memory store. A non-empty secret enables token auth.
func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	m := metrics.New()
	gateway := core.NewGateway(st, core.Options{
		Clock:   clock.NewMock(),
		Logger:  &logger,
		Metrics: m,
	})
	msgs := messages.NewService(st, gateway, nil, 0, &logger)

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte(secret),
		Issuer:   "presence-gateway",
		Audience: "presence-clients",
		TTL:      time.Hour,
	}

	cfg := config.Default()
	server := NewServer(Deps{
		Gateway:  gateway,
		Messages: msgs,
		Users:    users.NewService(st),
		Convs:    conversations.NewService(st),
		Metrics:  m,
		JWT:      jwtCfg,
	}, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, gateway: gateway, messages: msgs, jwt: jwtCfg}
}

func (e *testEnv) wsURL(token string) string {
	u := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	// A round trip guarantees the server registered the connection.
	send(t, ctx, conn, core.InboundOnlineUsers, nil)
	readEvent(t, ctx, conn, core.EventOnlineUsers)
	return conn
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, token string) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.ts.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()

	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		raw = payload
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readEvent reads until an event with the given name arrives.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) wireEvent {
	t.Helper()

	for {
		var ev wireEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if ev.Event == name {
			return ev
		}
	}
}

func decodeData[T any](t *testing.T, ev wireEvent) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(ev.Data, &out); err != nil {
		t.Fatalf("decode %s: %v", ev.Event, err)
	}
	return out
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}
