package chit

import (
	"encoding/json"
	"time"
)

// GenuinenessTolerance is the maximum skew allowed between the timestamp
// embedded by the sender and the server's append timestamp before a
// message is flagged as possibly replayed or forged.
const GenuinenessTolerance = 3 * time.Second

// envelope is the wire format of one message. ct and iv carry the sealed
// payload; sg is the pseudonym signature (server-transformed in anything
// received); ts is stamped by the server on append.
type envelope struct {
	CT string `json:"ct"`
	IV string `json:"iv"`
	SG string `json:"sg,omitempty"`
	TS int64  `json:"ts,omitempty"`
}

// payload is the encrypted inner message.
type payload struct {
	PT string `json:"pt"` // text
	TS int64  `json:"ts"` // sender timestamp, unix seconds
	US string `json:"us"` // sender name
}

// PlainMessage is one decrypted message.
type PlainMessage struct {
	Text            string
	Timestamp       int64  // sender-embedded, unix seconds
	From            string // sender name
	Signature       string // server-transformed pseudonym signature, if any
	ServerTimestamp int64  // stamped by the server on append
}

// Genuine reports whether the sender's embedded timestamp agrees with the
// server's within GenuinenessTolerance. A non-genuine message should be
// flagged at display time, not dropped by infrastructure.
func (m *PlainMessage) Genuine() bool {
	return m.GenuineWithin(GenuinenessTolerance)
}

// GenuineWithin is Genuine with an explicit tolerance.
func (m *PlainMessage) GenuineWithin(tolerance time.Duration) bool {
	skew := m.ServerTimestamp - m.Timestamp
	if skew < 0 {
		skew = -skew
	}
	return time.Duration(skew)*time.Second <= tolerance
}

// Messager builds and parses protocol message strings for one chat.
type Messager struct {
	crypto *Crypto
}

// NewMessager creates a Messager for the given chat key.
func NewMessager(key ChatKey) (*Messager, error) {
	crypto, err := NewCrypto(key)
	if err != nil {
		return nil, err
	}
	return &Messager{crypto: crypto}, nil
}

// Seal encrypts text into an envelope string ready to send. signature may
// be empty for anonymous messages.
func (m *Messager) Seal(text, from, signature string) (string, error) {
	inner, err := json.Marshal(payload{
		PT: text,
		TS: time.Now().Unix(),
		US: from,
	})
	if err != nil {
		return "", err
	}
	ct, iv, err := m.crypto.Encrypt(string(inner))
	if err != nil {
		return "", err
	}
	env := envelope{CT: ct, IV: iv, SG: signature}
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Open is the inverse of Seal for received envelope strings. Failures are
// per-message: a message sealed under a foreign key yields a CryptoError
// and should simply be discarded.
func (m *Messager) Open(cipherMessage string) (*PlainMessage, error) {
	var env envelope
	if err := json.Unmarshal([]byte(cipherMessage), &env); err != nil {
		return nil, &CryptoError{Message: "invalid message"}
	}
	plain, err := m.crypto.Decrypt(env.CT, env.IV)
	if err != nil {
		return nil, err
	}
	var inner payload
	if err := json.Unmarshal([]byte(plain), &inner); err != nil {
		return nil, &CryptoError{Message: "invalid payload"}
	}
	return &PlainMessage{
		Text:            inner.PT,
		Timestamp:       inner.TS,
		From:            inner.US,
		Signature:       env.SG,
		ServerTimestamp: env.TS,
	}, nil
}
