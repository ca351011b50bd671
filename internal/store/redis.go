// Package store persists chat records in Redis.
//
// Each chat occupies six keys, chat:<id>:{secret,key,messages,created,
// modified,touched}, plus the global chatCounter used for id allocation.
// All six keys of a record expire together: every timestamp refresh re-arms
// expiry according to the cascade rule in refreshTimestamps.
package store

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tikki/Chit/internal/chaterr"
	"github.com/tikki/Chit/internal/config"
	"github.com/tikki/Chit/internal/models"
)

// recordFields lists every per-chat key suffix. secret always exists, so it
// doubles as the existence and TTL probe for the whole record.
var recordFields = []string{"secret", "key", "messages", "created", "modified", "touched"}

// ChatStore handles Redis operations for chat records.
type ChatStore struct {
	client *redis.Client
	cfg    *config.Config
}

// New creates a ChatStore on an existing Redis client.
func New(client *redis.Client, cfg *config.Config) *ChatStore {
	return &ChatStore{client: client, cfg: cfg}
}

// Connect dials Redis and returns a ChatStore.
func Connect(ctx context.Context, cfg *config.Config) (*ChatStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return New(client, cfg), nil
}

// Close closes the Redis connection.
func (s *ChatStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *ChatStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying Redis client for middleware that shares
// the connection (rate limiting).
func (s *ChatStore) Client() *redis.Client {
	return s.client
}

// chatKey returns the Redis key for one field of a chat record.
func chatKey(id, field string) string {
	return fmt.Sprintf("chat:%s:%s", id, field)
}

// Create allocates the next chat id, generates a random admin secret, and
// optionally stores accessKey if its length is within the configured
// bounds. All timestamps are stamped now and expiry is armed at the
// created tier.
func (s *ChatStore) Create(ctx context.Context, accessKey string) (*models.Chat, error) {
	buf := make([]byte, s.cfg.SecretLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, chaterr.Wrap(err)
	}
	secret := base64.StdEncoding.EncodeToString(buf)

	counter, err := s.client.Incr(ctx, "chatCounter").Result()
	if err != nil {
		return nil, chaterr.Wrap(err)
	}
	id := strconv.FormatInt(counter, 10)

	chat := &models.Chat{ID: id, Secret: secret}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, chatKey(id, "secret"), secret, 0)
	if n := len(accessKey); s.cfg.MinKeyLength <= n && n <= s.cfg.MaxKeyLength {
		chat.Key = accessKey
		pipe.Set(ctx, chatKey(id, "key"), accessKey, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, chaterr.Wrap(err)
	}

	now, err := s.refreshTimestamps(ctx, id, "created", "modified", "touched")
	if err != nil {
		return nil, err
	}
	chat.Created, chat.Modified, chat.Touched = now, now, now
	return chat, nil
}

// CheckKey verifies that id names an existing chat and that suppliedKey
// matches its stored access key. It never mutates the record.
func (s *ChatStore) CheckKey(ctx context.Context, id, suppliedKey string) error {
	if id == "" {
		return chaterr.New(chaterr.Auth, "invalid id.")
	}
	exists, err := s.client.Exists(ctx, chatKey(id, "secret")).Result()
	if err != nil {
		return chaterr.Wrap(err)
	}
	if exists == 0 {
		return chaterr.New(chaterr.Auth, "invalid id.")
	}
	stored, err := s.client.Get(ctx, chatKey(id, "key")).Result()
	if errors.Is(err, redis.Nil) {
		stored = "" // public chat
	} else if err != nil {
		return chaterr.Wrap(err)
	}
	// The stored value is already a one-way hash of the chat key, but the
	// comparison still shouldn't leak position information.
	if subtle.ConstantTimeCompare([]byte(stored), []byte(suppliedKey)) != 1 {
		return chaterr.New(chaterr.Auth, "key does not match.")
	}
	return nil
}

// Key returns the stored access key for a chat, or "" for a public chat.
// Used by the realtime layer, which authenticates via room membership
// instead of a client-supplied key. Does not touch the record.
func (s *ChatStore) Key(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", chaterr.New(chaterr.Auth, "invalid id.")
	}
	exists, err := s.client.Exists(ctx, chatKey(id, "secret")).Result()
	if err != nil {
		return "", chaterr.Wrap(err)
	}
	if exists == 0 {
		return "", chaterr.New(chaterr.Auth, "invalid id.")
	}
	key, err := s.client.Get(ctx, chatKey(id, "key")).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", chaterr.Wrap(err)
	}
	return key, nil
}

// LoadMessages returns the most recent MessageCount envelopes, oldest
// first, and refreshes the touched timestamp only.
func (s *ChatStore) LoadMessages(ctx context.Context, id, key string) ([]string, error) {
	if err := s.CheckKey(ctx, id, key); err != nil {
		return nil, err
	}
	messages, err := s.client.LRange(ctx, chatKey(id, "messages"), int64(-s.cfg.MessageCount), -1).Result()
	if err != nil {
		return nil, chaterr.Wrap(err)
	}
	if _, err := s.refreshTimestamps(ctx, id, "touched"); err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage appends an envelope and trims the history to MessageCount,
// oldest removed first. Append and trim run in one pipeline so the cap is
// never observed exceeded. Returns the new modified timestamp.
func (s *ChatStore) AddMessage(ctx context.Context, id, key, envelope string) (int64, error) {
	if len(envelope) > s.cfg.MessageLength {
		return 0, chaterr.New(chaterr.Validation, "message too long.")
	}
	if err := s.CheckKey(ctx, id, key); err != nil {
		return 0, err
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, chatKey(id, "messages"), envelope)
	pipe.LTrim(ctx, chatKey(id, "messages"), int64(-s.cfg.MessageCount), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, chaterr.Wrap(err)
	}
	return s.refreshTimestamps(ctx, id, "modified", "touched")
}

// Delete removes every field of the chat after an exact secret match.
// All fields are deleted in one pipeline: callers never observe a partial
// record. An earlier revision of this operation rejected syntactically
// valid ids instead of missing ones; the check here is reject-on-missing.
func (s *ChatStore) Delete(ctx context.Context, id, secret string) error {
	if id == "" {
		return chaterr.New(chaterr.Auth, "invalid id.")
	}
	stored, err := s.client.Get(ctx, chatKey(id, "secret")).Result()
	if errors.Is(err, redis.Nil) {
		return chaterr.New(chaterr.Auth, "invalid id.")
	}
	if err != nil {
		return chaterr.Wrap(err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) != 1 {
		return chaterr.New(chaterr.Auth, "secret does not match.")
	}
	pipe := s.client.TxPipeline()
	for _, field := range recordFields {
		pipe.Del(ctx, chatKey(id, field))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return chaterr.Wrap(err)
	}
	return nil
}

// tierTTL returns the configured TTL for the strongest tier among fields.
func (s *ChatStore) tierTTL(fields []string) time.Duration {
	var ttl time.Duration
	for _, f := range fields {
		switch f {
		case "created":
			return s.cfg.TTL.Created
		case "modified":
			ttl = max(ttl, s.cfg.TTL.Modified)
		case "touched":
			ttl = max(ttl, s.cfg.TTL.Touched)
		}
	}
	return ttl
}

// refreshTimestamps stamps the given timestamp fields with the current
// time and re-arms record expiry.
//
// Cascade rule: the new expiry for every field is max(current remaining
// TTL, TTL of the strongest tier refreshed here). When the tier TTL wins,
// all six fields are re-armed together; otherwise only the refreshed
// timestamp fields are re-set to the current remaining TTL so no field
// lags behind its siblings. Expiry never shrinks.
func (s *ChatStore) refreshTimestamps(ctx context.Context, id string, fields ...string) (int64, error) {
	ttl := s.tierTTL(fields)
	now := time.Now().Unix()

	pipe := s.client.TxPipeline()
	for _, f := range fields {
		pipe.Set(ctx, chatKey(id, f), now, redis.KeepTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, chaterr.Wrap(err)
	}

	// secret is the one field that always exists, so its remaining TTL
	// stands for the whole record's.
	current, err := s.client.TTL(ctx, chatKey(id, "secret")).Result()
	if err != nil {
		return 0, chaterr.Wrap(err)
	}

	expire := s.client.TxPipeline()
	if current < ttl {
		for _, f := range recordFields {
			expire.Expire(ctx, chatKey(id, f), ttl)
		}
	} else {
		for _, f := range fields {
			expire.Expire(ctx, chatKey(id, f), current)
		}
	}
	if _, err := expire.Exec(ctx); err != nil {
		return 0, chaterr.Wrap(err)
	}
	return now, nil
}
