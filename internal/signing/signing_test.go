package signing_test

import (
	"strings"
	"testing"

	"github.com/notifyhub/eventdesk/internal/signing"
)

var key = []byte("test-secret")

func TestSign_Deterministic(t *testing.T) {
	payload := []byte(`{"type":"ticket","eventId":"e1"}`)
	a := signing.Sign(payload, key)
	b := signing.Sign(payload, key)
	if a != b {
		t.Fatalf("expected identical signatures, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a != strings.ToLower(a) {
		t.Fatal("expected lowercase hex")
	}
}

func TestVerify(t *testing.T) {
	payload := []byte(`{"type":"event","eventId":"e1","timestamp":1700000000000}`)
	sig := signing.Sign(payload, key)

	flipped := make([]byte, len(payload))
	copy(flipped, payload)
	flipped[10] ^= 0x01

	sigBytes := []byte(sig)
	if sigBytes[0] == 'a' {
		sigBytes[0] = 'b'
	} else {
		sigBytes[0] = 'a'
	}

	tests := []struct {
		name    string
		payload []byte
		sig     string
		key     []byte
		want    bool
	}{
		{"round trip", payload, sig, key, true},
		{"uppercase hex accepted", payload, strings.ToUpper(sig), key, true},
		{"payload bit flipped", flipped, sig, key, false},
		{"signature char changed", payload, string(sigBytes), key, false},
		{"wrong key", payload, sig, []byte("other"), false},
		{"not hex", payload, "zz" + sig[2:], key, false},
		{"truncated", payload, sig[:62], key, false},
		{"empty", payload, "", key, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := signing.Verify(tc.payload, tc.sig, tc.key); got != tc.want {
				t.Errorf("Verify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewSigner_EmptyKey(t *testing.T) {
	if _, err := signing.NewSigner(""); err != signing.ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestSigner_RoundTrip(t *testing.T) {
	s, err := signing.NewSigner("k")
	if err != nil {
		t.Fatal(err)
	}
	p := []byte("hello")
	if !s.Verify(p, s.Sign(p)) {
		t.Fatal("expected signer to verify its own signature")
	}
}
