package models

// Chat represents the server-stored entity for one chat room.
// Use with caution: a loaded Chat contains the plaintext key and secret.
type Chat struct {
	ID       string   `json:"id"`                 // assigned once from the chat counter, immutable
	Secret   string   `json:"secret,omitempty"`   // capability token required for deletion
	Key      string   `json:"key,omitempty"`      // optional access token; absent = public chat
	Messages []string `json:"messages,omitempty"` // envelope strings, oldest first
	Created  int64    `json:"created"`            // unix seconds
	Modified int64    `json:"modified"`
	Touched  int64    `json:"touched"`
}
