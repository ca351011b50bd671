package chit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client is a Chit REST API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Chit client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is an error reply from the server.
type APIError struct {
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return e.Message
}

type createReply struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	Error  string `json:"error"`
}

type readReply struct {
	Messages []string `json:"messages"`
	Error    string   `json:"error"`
}

type updateReply struct {
	Time  int64  `json:"time"`
	Error string `json:"error"`
}

type deleteReply struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// Chat is a client-side handle on one chat room. It owns the chat key and
// everything derived from it.
type Chat struct {
	ID     string
	Secret string // admin secret; empty unless this client created the chat

	client    *Client
	key       ChatKey
	serverKey string
	messager  *Messager
}

// NewChat creates a chat on the server, gated by the server key derived
// from key.
func (c *Client) NewChat(ctx context.Context, key ChatKey) (*Chat, error) {
	chat := &Chat{client: c}
	if err := chat.SetKey(key); err != nil {
		return nil, err
	}
	var reply createReply
	if err := c.do(ctx, http.MethodPost, "/api/1/chat", map[string]string{"key": chat.serverKey}, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, &APIError{Message: reply.Error}
	}
	chat.ID = reply.ID
	chat.Secret = reply.Secret
	return chat, nil
}

// OpenChat returns a handle on an existing chat.
func (c *Client) OpenChat(id string, key ChatKey) (*Chat, error) {
	chat := &Chat{ID: id, client: c}
	if err := chat.SetKey(key); err != nil {
		return nil, err
	}
	return chat, nil
}

// SetKey installs a chat key and recomputes every derived value — server
// key and messager — in one step, so no stale derivative survives a key
// change.
func (ch *Chat) SetKey(key ChatKey) error {
	messager, err := NewMessager(key)
	if err != nil {
		return err
	}
	ch.key = key
	ch.serverKey = key.ServerKey()
	ch.messager = messager
	return nil
}

// ServerKey returns the non-secret access key for this chat.
func (ch *Chat) ServerKey() string {
	return ch.serverKey
}

// History loads and decrypts the chat's message history. Messages that do
// not decrypt under this chat's key are skipped; they are foreign or
// tampered, not fatal.
func (ch *Chat) History(ctx context.Context) ([]*PlainMessage, error) {
	path := fmt.Sprintf("/api/1/chat/%s?key=%s", url.PathEscape(ch.ID), url.QueryEscape(ch.serverKey))
	var reply readReply
	if err := ch.client.do(ctx, http.MethodGet, path, nil, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, &APIError{Message: reply.Error}
	}
	messages := make([]*PlainMessage, 0, len(reply.Messages))
	for _, raw := range reply.Messages {
		msg, err := ch.messager.Open(raw)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Post seals and sends one message. Returns the server's modified
// timestamp.
func (ch *Chat) Post(ctx context.Context, text, from, signature string) (int64, error) {
	sealed, err := ch.messager.Seal(text, from, signature)
	if err != nil {
		return 0, err
	}
	path := fmt.Sprintf("/api/1/chat/%s", url.PathEscape(ch.ID))
	var reply updateReply
	if err := ch.client.do(ctx, http.MethodPut, path, map[string]string{"key": ch.serverKey, "msg": sealed}, &reply); err != nil {
		return 0, err
	}
	if reply.Error != "" {
		return 0, &APIError{Message: reply.Error}
	}
	return reply.Time, nil
}

// Delete removes the chat. Requires the admin secret.
func (ch *Chat) Delete(ctx context.Context) error {
	path := fmt.Sprintf("/api/1/chat/%s", url.PathEscape(ch.ID))
	var reply deleteReply
	if err := ch.client.do(ctx, http.MethodDelete, path, map[string]string{"secret": ch.Secret}, &reply); err != nil {
		return err
	}
	if reply.Error != "" {
		return &APIError{Message: reply.Error}
	}
	return nil
}
