package security

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	h := NewPINHasher("test-pepper")

	encoded, err := h.Hash("1234")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("expected PHC argon2id encoding, got %q", encoded)
	}

	ok, err := h.Verify("1234", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected correct PIN to verify")
	}

	ok, err = h.Verify("4321", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong PIN to fail verification")
	}
}

func TestHashIsSalted(t *testing.T) {
	h := NewPINHasher("pepper")

	a, err := h.Hash("0000")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	b, err := h.Hash("0000")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}

func TestPepperMatters(t *testing.T) {
	encoded, err := NewPINHasher("pepper-a").Hash("1234")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	ok, err := NewPINHasher("pepper-b").Verify("1234", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("expected verification under a different pepper to fail")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h := NewPINHasher("")

	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$not-base64!$aGFzaA",
	} {
		if _, err := h.Verify("1234", encoded); err == nil {
			t.Errorf("expected error for malformed hash %q", encoded)
		}
	}
}

func TestValidPINFormat(t *testing.T) {
	valid := []string{"0000", "1234", "9999"}
	for _, pin := range valid {
		if !ValidPINFormat(pin) {
			t.Errorf("expected %q to be a valid PIN", pin)
		}
	}

	invalid := []string{"", "123", "12345", "12a4", "12.4", "١٢٣٤"}
	for _, pin := range invalid {
		if ValidPINFormat(pin) {
			t.Errorf("expected %q to be rejected", pin)
		}
	}
}
