// Package gateway is the realtime presence and room layer. It maps each
// live connection to the chats it has joined, enforces key possession on
// join, relays room-scoped join/part/message broadcasts, and forwards the
// broker's update events to room members.
//
// Presence state is process-local by design: running more than one gateway
// process requires a shared pub/sub layer in place of the broker's
// in-process event registry.
package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tikki/Chit/internal/broker"
	"github.com/tikki/Chit/internal/chaterr"
	"github.com/tikki/Chit/internal/identity"
	"github.com/tikki/Chit/internal/metrics"
)

// UserInfo is the public roster entry for one room member.
type UserInfo struct {
	Nick string `json:"nick"`
	Sig  string `json:"sig,omitempty"`
}

type memberKey struct {
	connID string
	chatID string
}

// membership is the per-(connection, chat) state. It exists only between a
// successful join and the matching part or disconnect.
type membership struct {
	session *Session
	chatID  string
	nick    string // nickname cipher as supplied by the client
	sig     string // server-transformed signature
	sub     *broker.Subscription
}

// Gateway owns the room membership registry. Construct one per process (or
// per test); it is never a package-level singleton.
type Gateway struct {
	broker    *broker.Broker
	transform *identity.Transformer
	logger    zerolog.Logger

	mu    sync.Mutex
	byKey map[memberKey]*membership
	rooms map[string][]*membership // join order, used for the roster
}

// New creates a Gateway.
func New(b *broker.Broker, transform *identity.Transformer, logger zerolog.Logger) *Gateway {
	return &Gateway{
		broker:    b,
		transform: transform,
		logger:    logger.With().Str("component", "gateway").Logger(),
		byKey:     make(map[memberKey]*membership),
		rooms:     make(map[string][]*membership),
	}
}

// join moves (session, chatID) from Unjoined to Joined.
func (g *Gateway) join(ctx context.Context, s *Session, chatID, key, nickCipher, signature string) {
	nick := strings.TrimSpace(nickCipher)
	if nick == "" {
		s.send(Frame{Event: "chat/join:reply", Data: errorReply{Error: "invalid nickname."}})
		return
	}
	if err := g.broker.CheckKey(ctx, chatID, key); err != nil {
		s.send(Frame{Event: "chat/join:reply", Data: errorReply{Error: chaterr.Public(err)}})
		return
	}
	sig := g.transform.Transform(strings.TrimSpace(signature))
	info := UserInfo{Nick: nick, Sig: sig}

	g.mu.Lock()
	k := memberKey{connID: s.ID, chatID: chatID}
	m, rejoined := g.byKey[k]
	if rejoined {
		// A second join for the same chat replaces the member's identity
		// but keeps its one subscription.
		m.nick, m.sig = nick, sig
	} else {
		m = &membership{session: s, chatID: chatID, nick: nick, sig: sig}
		m.sub = g.broker.SubscribeUpdated(chatID)
		g.byKey[k] = m
		g.rooms[chatID] = append(g.rooms[chatID], m)
	}
	g.mu.Unlock()

	if !rejoined {
		go g.forwardUpdates(s, m.sub)
	}

	g.broadcast(chatID, s.ID, Frame{Event: "chat/join", Data: info})
	s.send(Frame{Event: "chat/join:reply", Data: joinReply{Success: true, Sig: sig}})
	metrics.RoomJoins.Inc()
	g.logger.Debug().Str("chat", chatID).Str("conn", s.ID).Msg("joined")
}

// forwardUpdates relays broker update events to one connection until its
// subscription is cancelled. Fan-out is per-connection: cancelling this
// subscription affects nobody else.
func (g *Gateway) forwardUpdates(s *Session, sub *broker.Subscription) {
	for ev := range sub.C {
		s.send(Frame{Event: "chat/msg", Data: msgBroadcast{ID: ev.ID, Msg: ev.Envelope}})
	}
}

// part moves (session, chatID) from Joined back to Unjoined. reply reports
// the outcome to the leaving session unless suppressed (disconnect path
// has no one to reply to).
func (g *Gateway) part(s *Session, chatID string, reply bool) {
	g.mu.Lock()
	k := memberKey{connID: s.ID, chatID: chatID}
	m, ok := g.byKey[k]
	if ok {
		delete(g.byKey, k)
		g.removeFromRoom(m)
	}
	g.mu.Unlock()

	if !ok {
		if reply {
			s.send(Frame{Event: "chat/part:reply", Data: errorReply{Error: "not in channel."}})
		}
		return
	}
	m.sub.Cancel()
	g.broadcast(chatID, s.ID, Frame{Event: "chat/part", Data: UserInfo{Nick: m.nick, Sig: m.sig}})
	if reply {
		s.send(Frame{Event: "chat/part:reply", Data: successReply{Success: true}})
	}
	g.logger.Debug().Str("chat", chatID).Str("conn", s.ID).Msg("parted")
}

// names replies with the room roster, one entry per joined connection.
func (g *Gateway) names(s *Session, chatID string) {
	g.mu.Lock()
	_, member := g.byKey[memberKey{connID: s.ID, chatID: chatID}]
	var infos []UserInfo
	if member {
		for _, m := range g.rooms[chatID] {
			infos = append(infos, UserInfo{Nick: m.nick, Sig: m.sig})
		}
	}
	g.mu.Unlock()

	if !member {
		s.send(Frame{Event: "chat/names:reply", Data: errorReply{Error: "not in channel."}})
		return
	}
	s.send(Frame{Event: "chat/names:reply", Data: namesReply{ID: chatID, Infos: infos}})
}

// message submits an envelope on behalf of a joined connection. The
// gateway never writes storage itself: the envelope goes through the
// broker, and only the broker's resulting update event reaches the room.
func (g *Gateway) message(ctx context.Context, s *Session, chatID, rawEnvelope string) {
	g.mu.Lock()
	_, member := g.byKey[memberKey{connID: s.ID, chatID: chatID}]
	g.mu.Unlock()
	if !member {
		s.send(Frame{Event: "chat/msg:reply", Data: errorReply{Error: "not in channel."}})
		return
	}
	// Membership already proved key possession; fetch the stored key so
	// the broker path stays identical to the request/response path.
	key, err := g.broker.Key(ctx, chatID)
	if err != nil {
		s.send(Frame{Event: "chat/msg:reply", Data: errorReply{Error: chaterr.Public(err)}})
		return
	}
	modified, err := g.broker.Update(ctx, chatID, key, rawEnvelope)
	if err != nil {
		s.send(Frame{Event: "chat/msg:reply", Data: errorReply{Error: chaterr.Public(err)}})
		return
	}
	s.send(Frame{Event: "chat/msg:reply", Data: timeReply{Time: modified}})
}

// disconnect performs the part sequence for every chat the connection had
// joined, then discards all of its membership state.
func (g *Gateway) disconnect(s *Session) {
	g.mu.Lock()
	var chats []string
	for k := range g.byKey {
		if k.connID == s.ID {
			chats = append(chats, k.chatID)
		}
	}
	g.mu.Unlock()

	for _, chatID := range chats {
		g.part(s, chatID, false)
	}
}

// broadcast sends frame to every member of chatID except exceptConnID.
func (g *Gateway) broadcast(chatID, exceptConnID string, frame Frame) {
	g.mu.Lock()
	peers := make([]*Session, 0, len(g.rooms[chatID]))
	for _, m := range g.rooms[chatID] {
		if m.session.ID != exceptConnID {
			peers = append(peers, m.session)
		}
	}
	g.mu.Unlock()

	for _, peer := range peers {
		peer.send(frame)
		metrics.RoomBroadcasts.Inc()
	}
}

// removeFromRoom drops m from its room's ordered member list.
// Caller holds g.mu.
func (g *Gateway) removeFromRoom(m *membership) {
	members := g.rooms[m.chatID]
	for i, other := range members {
		if other == m {
			g.rooms[m.chatID] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(g.rooms[m.chatID]) == 0 {
		delete(g.rooms, m.chatID)
	}
}
