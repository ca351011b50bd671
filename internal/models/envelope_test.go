package models

import (
	"strings"
	"testing"
)

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope(`{"ct":"abc","iv":"def","sg":"sig","extra":"dropped"}`)
	if err != nil {
		t.Fatal(err)
	}
	if env.CT != "abc" || env.IV != "def" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.SG == nil || *env.SG != "sig" {
		t.Fatalf("sg = %v, want sig", env.SG)
	}

	encoded, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(encoded, "extra") {
		t.Fatalf("unknown field survived re-encoding: %s", encoded)
	}

	if _, err := ParseEnvelope("not json"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// A present-but-empty sg is distinct from an absent one; validation
// depends on the difference.
func TestParseEnvelopeDistinguishesEmptySG(t *testing.T) {
	env, err := ParseEnvelope(`{"ct":"abc","iv":"def","sg":""}`)
	if err != nil {
		t.Fatal(err)
	}
	if env.SG == nil || *env.SG != "" {
		t.Fatalf("sg = %v, want present empty", env.SG)
	}

	env, err = ParseEnvelope(`{"ct":"abc","iv":"def"}`)
	if err != nil {
		t.Fatal(err)
	}
	if env.SG != nil {
		t.Fatalf("sg = %v, want absent", env.SG)
	}

	encoded, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(encoded, "sg") {
		t.Fatalf("absent sg appeared in encoding: %s", encoded)
	}
}
