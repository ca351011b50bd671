package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tikki/Chit/clients/go/chit"
	"github.com/tikki/Chit/internal/broker"
	"github.com/tikki/Chit/internal/config"
	"github.com/tikki/Chit/internal/gateway"
	"github.com/tikki/Chit/internal/identity"
	"github.com/tikki/Chit/internal/store"
)

func newTestServer(t *testing.T, rateLimited bool) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{
		Env:              "test",
		TTL:              config.TTL{Created: time.Hour, Modified: time.Hour, Touched: time.Hour},
		MessageCount:     100,
		MessageLength:    4096,
		SecretLength:     24,
		MinKeyLength:     20,
		MaxKeyLength:     64,
		Signature:        config.Signature{Algorithm: "sha256", Key: "test-key"},
		RateLimitEnabled: rateLimited,
	}
	transform, err := identity.NewTransformer(cfg.Signature)
	if err != nil {
		t.Fatal(err)
	}
	logger := zerolog.Nop()
	chatStore := store.New(client, cfg)
	b := broker.New(chatStore, transform, logger)
	gw := gateway.New(b, transform, logger)

	srv := httptest.NewServer(NewRouter(cfg, logger, chatStore, b, gw))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatLifecycleOverREST(t *testing.T) {
	srv := newTestServer(t, false)
	ctx := context.Background()
	client := chit.NewClient(srv.URL)

	key, err := chit.NewChatKey()
	if err != nil {
		t.Fatal(err)
	}
	chat, err := client.NewChat(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if chat.ID == "" || chat.Secret == "" {
		t.Fatalf("chat = %+v, want id and secret", chat)
	}

	messages, err := chat.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 0 {
		t.Fatalf("new chat has history: %v", messages)
	}

	sig := chit.Signature(chat.ID, "alice", "user-secret")
	if _, err := chat.Post(ctx, "hello there", "alice", sig); err != nil {
		t.Fatal(err)
	}

	messages, err = chat.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(messages))
	}
	msg := messages[0]
	if msg.Text != "hello there" || msg.From != "alice" {
		t.Fatalf("message = %+v", msg)
	}
	if msg.Signature == sig || msg.Signature == "" {
		t.Fatalf("signature = %q, want server-transformed", msg.Signature)
	}
	if !msg.Genuine() {
		t.Fatalf("fresh message not genuine: embedded %d, server %d", msg.Timestamp, msg.ServerTimestamp)
	}

	// A reader holding the wrong chat key cannot even pass the server gate,
	// because the server key is derived from the chat key.
	wrongKey, err := chit.NewChatKey()
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := client.OpenChat(chat.ID, wrongKey)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := foreign.History(ctx); err == nil {
		t.Fatal("foreign key read the chat")
	}

	if err := chat.Delete(ctx); err != nil {
		t.Fatal(err)
	}
	_, err = chat.History(ctx)
	apiErr, ok := err.(*chit.APIError)
	if !ok || apiErr.Message != "invalid id." {
		t.Fatalf("read after delete: %v, want invalid id.", err)
	}
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body["error"]
}

func TestErrorStatusCodes(t *testing.T) {
	srv := newTestServer(t, false)

	// Unknown id reads as forbidden, indistinguishable from a wrong key.
	resp, err := http.Get(srv.URL + "/api/1/chat/999?key=whatever")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if got := decodeError(t, resp); got != "invalid id." {
		t.Fatalf("error = %q, want invalid id.", got)
	}

	// Malformed request body.
	resp = postJSON(t, srv.URL+"/api/1/chat", "{not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// Create, then exercise validation and auth on the record.
	resp = postJSON(t, srv.URL+"/api/1/chat", `{}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID     string `json:"id"`
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/1/chat/"+created.ID,
		strings.NewReader(`{"msg":"{\"iv\":\"abc\"}"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if got := decodeError(t, resp); got != "missing or invalid ct." {
		t.Fatalf("error = %q, want missing or invalid ct.", got)
	}

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/api/1/chat/"+created.ID,
		strings.NewReader(`{"secret":"wrong"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if got := decodeError(t, resp); got != "secret does not match." {
		t.Fatalf("error = %q, want secret does not match.", got)
	}
}

func TestHealthAndRoot(t *testing.T) {
	srv := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q, want nosniff", got)
	}

	resp, err = http.Get(srv.URL + "/api/1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var root struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&root); err != nil {
		t.Fatal(err)
	}
	if root.Name != "Chit" {
		t.Fatalf("name = %q, want Chit", root.Name)
	}
}

func TestRateLimitCreate(t *testing.T) {
	srv := newTestServer(t, true)

	// POST /api/1/chat allows 10 per window per IP.
	var last *http.Response
	for i := 0; i < 10; i++ {
		last = postJSON(t, srv.URL+"/api/1/chat", `{}`)
		if last.StatusCode != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want 201", i+1, last.StatusCode)
		}
		last.Body.Close()
	}
	if got := last.Header.Get("X-RateLimit-Limit"); got != "10" {
		t.Fatalf("X-RateLimit-Limit = %q, want 10", got)
	}

	resp := postJSON(t, srv.URL+"/api/1/chat", `{}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("429 without Retry-After")
	}
	resp.Body.Close()
}

func TestWebSocketJoinAndMessage(t *testing.T) {
	srv := newTestServer(t, false)

	// Set up the chat over REST.
	client := chit.NewClient(srv.URL)
	key, err := chit.NewChatKey()
	if err != nil {
		t.Fatal(err)
	}
	chat, err := client.NewChat(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/1/socket"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	type frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	readFrame := func() frame {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatal(err)
		}
		return f
	}

	joinFrame := fmt.Sprintf(`{"event":"chat/join","data":{"id":%q,"ky":%q,"us":"alice","sg":"raw-sig"}}`,
		chat.ID, chat.ServerKey())
	if err := conn.WriteMessage(websocket.TextMessage, []byte(joinFrame)); err != nil {
		t.Fatal(err)
	}
	f := readFrame()
	if f.Event != "chat/join:reply" {
		t.Fatalf("event = %q, want chat/join:reply", f.Event)
	}
	var joined struct {
		Success bool   `json:"success"`
		Sig     string `json:"sig"`
	}
	if err := json.Unmarshal(f.Data, &joined); err != nil {
		t.Fatal(err)
	}
	if !joined.Success || joined.Sig == "raw-sig" || joined.Sig == "" {
		t.Fatalf("join reply = %+v, want success with transformed sig", joined)
	}

	msgFrame := fmt.Sprintf(`{"event":"chat/msg","data":{"id":%q,"msg":"{\"ct\":\"x\",\"iv\":\"y\"}"}}`, chat.ID)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msgFrame)); err != nil {
		t.Fatal(err)
	}
	// Reply and room broadcast, in either order.
	events := map[string]bool{}
	for i := 0; i < 2; i++ {
		events[readFrame().Event] = true
	}
	if !events["chat/msg:reply"] || !events["chat/msg"] {
		t.Fatalf("events = %v, want reply and broadcast", events)
	}
}
