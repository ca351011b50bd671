// Package identity implements the server half of the pseudonym-signature
// protocol: a keyed one-way transform applied to every client-supplied
// signature, so peers and storage only ever see the transformed value.
// A malicious peer cannot replay an overheard signature elsewhere, because
// the value it sees was never accepted as input anywhere.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"

	"github.com/tikki/Chit/internal/config"
)

// Transformer applies the keyed one-way signature transform.
type Transformer struct {
	newHash func() hash.Hash
	key     []byte
}

// NewTransformer builds a Transformer from the signature config.
// Supported algorithms: sha256, sha384, sha512.
func NewTransformer(cfg config.Signature) (*Transformer, error) {
	var newHash func() hash.Hash
	switch cfg.Algorithm {
	case "sha256":
		newHash = sha256.New
	case "sha384":
		newHash = sha512.New384
	case "sha512":
		newHash = sha512.New
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", cfg.Algorithm)
	}
	return &Transformer{newHash: newHash, key: []byte(cfg.Key)}, nil
}

// Transform returns the base64 HMAC of signature under the server key.
// An empty signature transforms to the empty string, which callers treat
// as "no signature".
func (t *Transformer) Transform(signature string) string {
	if signature == "" {
		return ""
	}
	mac := hmac.New(t.newHash, t.key)
	mac.Write([]byte(signature))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
