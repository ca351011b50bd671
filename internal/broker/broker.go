// Package broker is the validating façade over the chat store. Every
// mutation — from REST or from the realtime layer — goes through it, so
// both transports share exactly the same validation, storage, and
// broadcast semantics. Successful updates are published to per-chat
// subscribers; storage is always written before anything is published.
package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tikki/Chit/internal/chaterr"
	"github.com/tikki/Chit/internal/identity"
	"github.com/tikki/Chit/internal/metrics"
	"github.com/tikki/Chit/internal/models"
	"github.com/tikki/Chit/internal/store"
)

// Broker validates inbound operations, drives the chat store, and fans out
// update events to subscribers.
type Broker struct {
	store     *store.ChatStore
	transform *identity.Transformer
	logger    zerolog.Logger
	events    *registry
}

// New creates a Broker.
func New(chatStore *store.ChatStore, transform *identity.Transformer, logger zerolog.Logger) *Broker {
	return &Broker{
		store:     chatStore,
		transform: transform,
		logger:    logger.With().Str("component", "broker").Logger(),
		events:    newRegistry(logger),
	}
}

// CreateResult is the success payload of Create.
type CreateResult struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// Create makes a new chat, optionally gated by key.
func (b *Broker) Create(ctx context.Context, key string) (*CreateResult, error) {
	chat, err := b.store.Create(ctx, key)
	if err != nil {
		return nil, err
	}
	metrics.ChatsCreated.Inc()
	b.logger.Debug().Str("event", "created").Str("chat", chat.ID).Int64("time", chat.Created).Msg("chat created")
	return &CreateResult{ID: chat.ID, Secret: chat.Secret}, nil
}

// Read returns the chat's message history.
func (b *Broker) Read(ctx context.Context, id, key string) ([]string, error) {
	messages, err := b.store.LoadMessages(ctx, id, key)
	if err != nil {
		return nil, err
	}
	metrics.ChatsRead.Inc()
	b.logger.Debug().Str("event", "read").Str("chat", id).Msg("chat read")
	return messages, nil
}

// Update validates and appends one message envelope.
//
// The raw envelope is parsed, ct and iv are checked to be non-empty, a
// present sg is replaced by its server-side transform, and the server
// timestamp is stamped before the envelope is re-serialized and stored.
// A client-supplied sg is never stored or forwarded unmodified. On success
// the stored envelope is published to the chat's subscribers.
func (b *Broker) Update(ctx context.Context, id, key, rawEnvelope string) (int64, error) {
	env, err := models.ParseEnvelope(rawEnvelope)
	if err != nil {
		return 0, chaterr.New(chaterr.Validation, "invalid message.")
	}
	if env.CT == "" {
		return 0, chaterr.New(chaterr.Validation, "missing or invalid ct.")
	}
	if env.IV == "" {
		return 0, chaterr.New(chaterr.Validation, "missing or invalid iv.")
	}
	if env.SG != nil {
		if *env.SG == "" {
			return 0, chaterr.New(chaterr.Validation, "invalid sg.")
		}
		sig := b.transform.Transform(*env.SG)
		env.SG = &sig
	}
	env.TS = time.Now().Unix()

	stored, err := env.Encode()
	if err != nil {
		return 0, chaterr.New(chaterr.Validation, "invalid message.")
	}
	modified, err := b.store.AddMessage(ctx, id, key, stored)
	if err != nil {
		return 0, err
	}
	metrics.MessagesPosted.Inc()
	b.events.publish(Updated{ID: id, Time: modified, Envelope: stored})
	return modified, nil
}

// Delete removes a chat after an exact secret match.
func (b *Broker) Delete(ctx context.Context, id, secret string) error {
	if err := b.store.Delete(ctx, id, secret); err != nil {
		return err
	}
	metrics.ChatsDeleted.Inc()
	b.logger.Debug().Str("event", "deleted").Str("chat", id).Msg("chat deleted")
	return nil
}

// CheckKey verifies chat existence and key possession without mutating
// the record.
func (b *Broker) CheckKey(ctx context.Context, id, key string) error {
	return b.store.CheckKey(ctx, id, key)
}

// Key returns the stored access key for a chat without touching it.
// The realtime layer uses it to submit messages on behalf of members that
// proved key possession when joining.
func (b *Broker) Key(ctx context.Context, id string) (string, error) {
	return b.store.Key(ctx, id)
}

// SubscribeUpdated registers for update events on one chat. Each joined
// connection owns its own subscription; Cancel removes exactly that one.
func (b *Broker) SubscribeUpdated(chatID string) *Subscription {
	return b.events.subscribe(chatID)
}
