package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/tikki/Chit/internal/chaterr"
)

// Frame is one event on the persistent channel, in either direction.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// inbound is the decoding counterpart of Frame.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Request payloads. Field tags match the wire protocol: ky is the server
// key, us the nickname cipher, sg the client-computed signature.
type joinRequest struct {
	ID string `json:"id"`
	Ky string `json:"ky"`
	Us string `json:"us"`
	Sg string `json:"sg"`
}

type chatRequest struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Msg    string `json:"msg"`
	Secret string `json:"secret"`
}

// Reply payloads.
type errorReply struct {
	Error string `json:"error"`
}

type successReply struct {
	Success bool `json:"success"`
}

type joinReply struct {
	Success bool   `json:"success"`
	Sig     string `json:"sig,omitempty"`
}

type namesReply struct {
	ID    string     `json:"id"`
	Infos []UserInfo `json:"infos"`
}

type timeReply struct {
	Time int64 `json:"time"`
}

type msgBroadcast struct {
	ID  string `json:"id"`
	Msg string `json:"msg"`
}

// sessionBuffer bounds outbound frames queued per connection.
const sessionBuffer = 64

// Session is one live connection's view of the gateway, independent of the
// transport carrying it. The websocket adapter feeds frames in through
// Handle and drains Out; tests drive a Session directly.
type Session struct {
	ID string

	g    *Gateway
	out  chan Frame
	done chan struct{}
	once sync.Once
}

// NewSession registers a new connection and returns its session.
func (g *Gateway) NewSession() *Session {
	return &Session{
		ID:   ulid.Make().String(),
		g:    g,
		out:  make(chan Frame, sessionBuffer),
		done: make(chan struct{}),
	}
}

// Out delivers the frames addressed to this connection: replies,
// room broadcasts, and forwarded message updates.
func (s *Session) Out() <-chan Frame {
	return s.out
}

// Done is closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Handle dispatches one raw inbound frame.
func (s *Session) Handle(ctx context.Context, raw []byte) {
	var f inbound
	if err := json.Unmarshal(raw, &f); err != nil {
		s.g.logger.Debug().Str("conn", s.ID).Err(err).Msg("undecodable frame")
		return
	}
	s.HandleFrame(ctx, f.Event, f.Data)
}

// HandleFrame dispatches one decoded inbound frame.
func (s *Session) HandleFrame(ctx context.Context, event string, data json.RawMessage) {
	switch event {
	case "chat/join":
		var req joinRequest
		decodePayload(data, &req)
		s.g.join(ctx, s, req.ID, req.Ky, req.Us, req.Sg)
	case "chat/part":
		var req chatRequest
		decodePayload(data, &req)
		s.g.part(s, req.ID, true)
	case "chat/names":
		var req chatRequest
		decodePayload(data, &req)
		s.g.names(s, req.ID)
	case "chat/msg":
		var req chatRequest
		decodePayload(data, &req)
		s.g.message(ctx, s, req.ID, req.Msg)
	case "chat/create":
		var req chatRequest
		decodePayload(data, &req)
		result, err := s.g.broker.Create(ctx, req.Key)
		if err != nil {
			s.send(Frame{Event: "chat/create:reply", Data: errorReply{Error: chaterr.Public(err)}})
			return
		}
		s.send(Frame{Event: "chat/create:reply", Data: result})
	case "chat/read":
		var req chatRequest
		decodePayload(data, &req)
		messages, err := s.g.broker.Read(ctx, req.ID, req.Key)
		if err != nil {
			s.send(Frame{Event: "chat/read:reply", Data: errorReply{Error: chaterr.Public(err)}})
			return
		}
		if messages == nil {
			messages = []string{}
		}
		s.send(Frame{Event: "chat/read:reply", Data: map[string][]string{"messages": messages}})
	case "chat/delete":
		var req chatRequest
		decodePayload(data, &req)
		if err := s.g.broker.Delete(ctx, req.ID, req.Secret); err != nil {
			s.send(Frame{Event: "chat/delete:reply", Data: errorReply{Error: chaterr.Public(err)}})
			return
		}
		s.send(Frame{Event: "chat/delete:reply", Data: struct{}{}})
	default:
		s.g.logger.Debug().Str("conn", s.ID).Str("event", event).Msg("unknown event")
	}
}

// Close tears the session down: parts every joined chat (with the part
// broadcast to remaining members) and releases all membership state.
func (s *Session) Close() {
	s.once.Do(func() {
		s.g.disconnect(s)
		close(s.done)
	})
}

// send queues a frame for delivery. Frames to a full or closed session are
// dropped; a consumer that far behind is already being torn down.
func (s *Session) send(f Frame) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.out <- f:
	case <-s.done:
	default:
		s.g.logger.Warn().Str("conn", s.ID).Str("event", f.Event).Msg("dropping frame for slow connection")
	}
}

// decodePayload unmarshals a request payload, tolerating an absent one.
// Missing fields surface as empty strings and fail validation downstream,
// matching the lenient original protocol.
func decodePayload(data json.RawMessage, v any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}
