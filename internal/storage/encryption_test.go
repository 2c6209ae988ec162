package storage

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"trailblazer_ai/internal/models"
)

func TestSealOpen(t *testing.T) {
	// Generate a 32-byte key (AES-256)
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	enc, err := NewEncryption(key)
	if err != nil {
		t.Fatalf("Failed to create encryption: %v", err)
	}

	plaintext := []byte("sk-ant-api03-secret")
	sealed, err := enc.Seal(plaintext)
	if err != nil {
		t.Fatalf("Failed to seal: %v", err)
	}

	iv, _ := base64.StdEncoding.DecodeString(sealed.IV)
	tag, _ := base64.StdEncoding.DecodeString(sealed.AuthTag)
	ct, _ := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if len(iv) != 12 || len(tag) != 16 || len(ct) != len(plaintext) {
		t.Fatalf("unexpected sealed shape: iv=%d tag=%d ct=%d", len(iv), len(tag), len(ct))
	}

	opened, err := enc.Open(sealed)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Errorf("Opened text doesn't match original. Got %s, want %s", opened, plaintext)
	}

	again, _ := enc.Seal(plaintext)
	if again.IV == sealed.IV {
		t.Errorf("IV must be fresh per seal")
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	enc, _ := NewEncryption(make([]byte, 32))
	sealed, _ := enc.Seal([]byte("secret"))

	tag, _ := base64.StdEncoding.DecodeString(sealed.AuthTag)
	tag[0] ^= 0xFF
	tampered := sealed
	tampered.AuthTag = base64.StdEncoding.EncodeToString(tag)

	if _, err := enc.Open(tampered); err == nil {
		t.Error("expected authentication failure")
	}

	other, _ := NewEncryption([]byte(strings.Repeat("k", 32)))
	if _, err := other.Open(sealed); err == nil {
		t.Error("expected failure with the wrong key")
	}

	bad := sealed
	bad.IV = base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := enc.Open(bad); err == nil {
		t.Error("expected failure for short iv")
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey(32)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		t.Fatalf("Generated key is not valid base64: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("Generated key has wrong length. Got %d, want 32", len(decoded))
	}

	enc, err := NewEncryptionFromBase64(key)
	if err != nil {
		t.Fatalf("Failed to create encryption with generated key: %v", err)
	}
	sealed, _ := enc.Seal([]byte("test"))
	opened, _ := enc.Open(sealed)
	if string(opened) != "test" {
		t.Errorf("Encryption with generated key failed")
	}
}

func TestInvalidKeySize(t *testing.T) {
	if _, err := NewEncryption([]byte("too-short")); err == nil {
		t.Error("Expected error for invalid key size")
	}
	if _, err := GenerateKey(20); err == nil {
		t.Error("Expected error for invalid key size in GenerateKey")
	}
	if _, err := NewEncryptionFromBase64(""); err == nil {
		t.Error("Expected error for empty key")
	}
}

func TestKeyRing_CredentialRoundTrip(t *testing.T) {
	master, _ := GenerateKey(32)
	kr, err := NewKeyRing(master, map[string]string{"bedrock": strings.Repeat("ab", 32)})
	if err != nil {
		t.Fatalf("NewKeyRing: %v", err)
	}

	cred := &models.ProviderCredential{Provider: models.ProviderBedrock}
	if err := kr.SealCredential(cred, "AKIAEXAMPLE", "wJalrXUtnFEMI"); err != nil {
		t.Fatalf("SealCredential: %v", err)
	}
	if cred.EncryptedAPIKey == "" || !cred.HasSecretKey() {
		t.Fatal("expected both secrets to be sealed")
	}

	apiKey, secret, err := kr.OpenCredential(cred)
	if err != nil {
		t.Fatalf("OpenCredential: %v", err)
	}
	if apiKey != "AKIAEXAMPLE" || secret != "wJalrXUtnFEMI" {
		t.Errorf("got %q / %q", apiKey, secret)
	}

	// a ring without the bedrock key cannot open it
	masterOnly, _ := NewKeyRing(master, nil)
	if _, _, err := masterOnly.OpenCredential(cred); err == nil {
		t.Error("expected decrypt failure with a different key")
	}
}

func TestKeyRing_ProvidersAreIsolated(t *testing.T) {
	kr, _ := NewKeyRing("a passphrase that is not base64!", nil)

	cred := &models.ProviderCredential{Provider: models.ProviderOpenAI}
	if err := kr.SealCredential(cred, "sk-openai", ""); err != nil {
		t.Fatalf("SealCredential: %v", err)
	}
	if cred.HasSecretKey() {
		t.Error("no secret key expected")
	}

	// same ciphertext presented as another provider's credential must not open
	cred.Provider = models.ProviderXAI
	if _, _, err := kr.OpenCredential(cred); err == nil {
		t.Error("expected failure across providers")
	}
}

func TestKeyRing_NoKey(t *testing.T) {
	kr, err := NewKeyRing("", nil)
	if err != nil {
		t.Fatalf("NewKeyRing: %v", err)
	}
	_, err = kr.For(models.ProviderAnthropic)
	if !errors.Is(err, ErrNoEncryptionKey) {
		t.Errorf("expected ErrNoEncryptionKey, got %v", err)
	}

	if _, err := NewKeyRing("", map[string]string{"mistral": "k"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
