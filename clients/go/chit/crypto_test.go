package chit

import (
	"strings"
	"testing"
)

func newKey(t *testing.T) ChatKey {
	t.Helper()
	key, err := NewChatKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func newCrypto(t *testing.T, key ChatKey) *Crypto {
	t.Helper()
	c, err := NewCrypto(key)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newCrypto(t, newKey(t))

	for _, plaintext := range []string{
		"hello",
		"",
		"héllo wörld \U0001f512",
		strings.Repeat("long ", 1000),
	} {
		ct, iv, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatal(err)
		}
		got, err := c.Decrypt(ct, iv)
		if err != nil {
			t.Fatal(err)
		}
		if got != plaintext {
			t.Fatalf("round trip: got %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptUsesFreshIVs(t *testing.T) {
	c := newCrypto(t, newKey(t))

	ct1, iv1, err := c.Encrypt("same text")
	if err != nil {
		t.Fatal(err)
	}
	ct2, iv2, err := c.Encrypt("same text")
	if err != nil {
		t.Fatal(err)
	}
	if iv1 == iv2 {
		t.Fatal("nonce reused")
	}
	if ct1 == ct2 {
		t.Fatal("identical ciphertexts for identical plaintexts")
	}
}

func TestDecryptForeignKey(t *testing.T) {
	ct, iv, err := newCrypto(t, newKey(t)).Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	_, err = newCrypto(t, newKey(t)).Decrypt(ct, iv)
	if err == nil {
		t.Fatal("foreign key decrypted the message")
	}
	if !ErrCrypto(err) {
		t.Fatalf("err = %T, want CryptoError", err)
	}
}

func TestDecryptTamperedInput(t *testing.T) {
	c := newCrypto(t, newKey(t))
	ct, iv, err := c.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct{ name, ct, iv string }{
		{"bad iv base64", ct, "%%%"},
		{"short iv", ct, "YWJj"},
		{"bad ct base64", "%%%", iv},
		{"truncated ct", ct[:len(ct)/2], iv},
	} {
		if _, err := c.Decrypt(tc.ct, tc.iv); err == nil || !ErrCrypto(err) {
			t.Fatalf("%s: err = %v, want CryptoError", tc.name, err)
		}
	}
}

func TestChatKeyFromPassphrase(t *testing.T) {
	a := ChatKeyFromPassphrase("correct horse", DefaultPBKDF2)
	b := ChatKeyFromPassphrase("correct horse", DefaultPBKDF2)
	if a.Base64() != b.Base64() {
		t.Fatal("derivation not deterministic")
	}
	if len(a) != KeySize {
		t.Fatalf("len = %d, want %d", len(a), KeySize)
	}
	if other := ChatKeyFromPassphrase("battery staple", DefaultPBKDF2); other.Base64() == a.Base64() {
		t.Fatal("different passphrases derived the same key")
	}
}

func TestChatKeyBase64RoundTrip(t *testing.T) {
	key := newKey(t)
	decoded, err := ChatKeyFromBase64(key.Base64())
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Base64() != key.Base64() {
		t.Fatal("base64 round trip changed the key")
	}

	if _, err := ChatKeyFromBase64("not base64 %%%"); err == nil || !ErrCrypto(err) {
		t.Fatalf("err = %v, want CryptoError", err)
	}
	if _, err := ChatKeyFromBase64("YWJj"); err == nil || !ErrCrypto(err) {
		t.Fatalf("short key: err = %v, want CryptoError", err)
	}
}

func TestServerKeyHidesChatKey(t *testing.T) {
	key := newKey(t)
	sk := key.ServerKey()
	if sk == key.Base64() {
		t.Fatal("server key equals the chat key")
	}
	if sk != key.ServerKey() {
		t.Fatal("server key not deterministic")
	}
	if other := newKey(t); other.ServerKey() == sk {
		t.Fatal("distinct keys share a server key")
	}
}
