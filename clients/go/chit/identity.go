package chit

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash/crc32"
)

// Signature computes the pseudonym signature for a (chat, nickname,
// user-secret) triple: stable within one chat, not traceable back to the
// secret. The server applies its own keyed transform on top, so peers
// never see this value directly.
func Signature(chatID, nick, userSecret string) string {
	sum := sha256.Sum256([]byte(chatID + "!" + nick + "!" + userSecret))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Color derives a deterministic display color from a nickname and its
// transformed signature, giving every pseudonym a stable visual identity
// without any server-side identity table. Collisions are tolerated.
func Color(nick, transformedSig string) string {
	sum := crc32.ChecksumIEEE([]byte(nick + "!" + transformedSig))
	hue := sum % 360
	return fmt.Sprintf("hsl(%d, 65%%, 45%%)", hue)
}
