package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/presence-gateway/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:3000/ws", "WebSocket address")
	api := flag.String("api", "http://localhost:3000", "REST API base URL")
	user := flag.String("user", "", "user id to announce as online")
	conv := flag.String("conversation", "", "conversation id to join")
	text := flag.String("text", "hello from smoke test", "message text to post")
	token := flag.String("token", "", "JWT for servers with auth enabled")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *user == "" || *conv == "" {
		return fmt.Errorf("-user and -conversation are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	url := *addr
	if *token != "" {
		url += "?token=" + *token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(event string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", event, err)
		}
		return nil
	}

	if err := send("user:online", proto.UserData{UserID: *user}); err != nil {
		return err
	}
	if err := send("conversation:join", proto.ConversationData{ConversationID: *conv, UserID: *user}); err != nil {
		return err
	}

	posted := false
	for {
		var outbound struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("event=%s data=%s\n", outbound.Event, string(outbound.Data))

		switch outbound.Event {
		case "user:error", "conversation:error":
			return fmt.Errorf("server reported %s", outbound.Event)
		case "conversation:joined":
			if !posted {
				if err := postMessage(ctx, *api, *token, *conv, *user, *text); err != nil {
					return err
				}
				posted = true
			}
		case "message:new":
			var evt proto.NewMessage
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			if evt.Message != nil && evt.Message.SenderID == *user {
				fmt.Printf("round trip ok: conversation=%s text=%q\n", evt.ConversationID, evt.Message.Content)
				return nil
			}
		}
	}
}

func postMessage(ctx context.Context, api, token, conv, user, text string) error {
	body, err := json.Marshal(map[string]string{
		"conversationId": conv,
		"senderId":       user,
		"content":        text,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("post message: status %d", resp.StatusCode)
	}
	return nil
}
