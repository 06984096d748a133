package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signed(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "app-secret"
	payload := []byte(`{"object":"whatsapp_business_account"}`)

	if !VerifySignature(secret, payload, signed(secret, payload)) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifySignature(secret, payload, "sha256=deadbeef") {
		t.Fatal("expected mismatched signature to fail")
	}
	if VerifySignature(secret, payload, "md5=abc") {
		t.Fatal("expected wrong prefix to fail")
	}
}

func TestVerifySignatureFallbacks(t *testing.T) {
	payload := []byte(`{}`)
	if !VerifySignature("", payload, "sha256=anything") {
		t.Fatal("expected empty secret to skip verification")
	}
	if !VerifySignature("secret", payload, "") {
		t.Fatal("expected missing header to be accepted")
	}
}
