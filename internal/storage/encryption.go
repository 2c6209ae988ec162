package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/crypto/hkdf"

	"trailblazer_ai/internal/models"
)

const (
	gcmNonceSize  = 12
	gcmTagSize    = 16
	derivedKeyLen = 32
)

// Encryption provides AES-GCM encryption/decryption for sensitive data
type Encryption struct {
	key []byte
}

// NewEncryption creates a new encryption service with the given key
// The key should be 16, 24, or 32 bytes for AES-128, AES-192, or AES-256
func NewEncryption(key []byte) (*Encryption, error) {
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, eris.Errorf("invalid key size: must be 16, 24, or 32 bytes, got %d", len(key))
	}

	return &Encryption{
		key: key,
	}, nil
}

// NewEncryptionFromBase64 creates a new encryption service from a base64-encoded key
func NewEncryptionFromBase64(encodedKey string) (*Encryption, error) {
	if encodedKey == "" {
		return nil, eris.New("encryption key cannot be empty")
	}

	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, eris.Wrap(err, "failed to decode base64 key")
	}

	return NewEncryption(key)
}

// GenerateKey generates a new random encryption key of the specified size
// Returns the key as a base64-encoded string for easy storage in environment variables
func GenerateKey(keySize int) (string, error) {
	if keySize != 16 && keySize != 24 && keySize != 32 {
		return "", eris.New("invalid key size: must be 16, 24, or 32 bytes")
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", eris.Wrap(err, "failed to generate random key")
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

// Sealed is an AES-GCM ciphertext with its IV and auth tag stored apart, each base64.
type Sealed struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

func (e *Encryption) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create GCM")
	}
	return gcm, nil
}

// Seal encrypts plaintext with a fresh random IV
func (e *Encryption) Seal(plaintext []byte) (Sealed, error) {
	gcm, err := e.gcm()
	if err != nil {
		return Sealed{}, err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Sealed{}, eris.Wrap(err, "failed to generate nonce")
	}

	out := gcm.Seal(nil, nonce, plaintext, nil)
	ct, tag := out[:len(out)-gcmTagSize], out[len(out)-gcmTagSize:]

	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// Open authenticates and decrypts a sealed value
func (e *Encryption) Open(s Sealed) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return nil, eris.Wrap(err, "failed to decode ciphertext")
	}
	nonce, err := base64.StdEncoding.DecodeString(s.IV)
	if err != nil {
		return nil, eris.Wrap(err, "failed to decode iv")
	}
	tag, err := base64.StdEncoding.DecodeString(s.AuthTag)
	if err != nil {
		return nil, eris.Wrap(err, "failed to decode auth tag")
	}
	if len(nonce) != gcmNonceSize {
		return nil, eris.Errorf("invalid iv length %d", len(nonce))
	}
	if len(tag) != gcmTagSize {
		return nil, eris.Errorf("invalid auth tag length %d", len(tag))
	}

	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return nil, eris.Wrap(err, "failed to decrypt")
	}
	return plaintext, nil
}

// KeyRing holds credential keys: one per provider when configured, else the shared master.
// Every provider's cipher key is derived with HKDF so the master never encrypts directly.
type KeyRing struct {
	master      []byte
	perProvider map[models.ProviderIdentity][]byte
}

// ErrNoEncryptionKey is returned when neither a provider key nor a master key is configured.
var ErrNoEncryptionKey = eris.New("no credential encryption key configured")

// NewKeyRing parses the master key and the optional per-provider keys.
// Keys may be hex, base64 or a passphrase.
func NewKeyRing(master string, perProvider map[string]string) (*KeyRing, error) {
	kr := &KeyRing{perProvider: make(map[models.ProviderIdentity][]byte)}
	if master != "" {
		kr.master = parseKeyMaterial(master)
	}
	for name, key := range perProvider {
		identity, err := models.ParseProviderIdentity(name)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid credential key provider %q", name)
		}
		if key != "" {
			kr.perProvider[identity] = parseKeyMaterial(key)
		}
	}
	return kr, nil
}

// For returns the cipher for one provider's credentials
func (k *KeyRing) For(provider models.ProviderIdentity) (*Encryption, error) {
	material, ok := k.perProvider[provider]
	if !ok {
		material = k.master
	}
	if len(material) == 0 {
		return nil, ErrNoEncryptionKey
	}

	key := make([]byte, derivedKeyLen)
	r := hkdf.New(sha256.New, material, nil, []byte("trailblazer/credentials/"+string(provider)))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, eris.Wrap(err, "failed to derive credential key")
	}
	return NewEncryption(key)
}

// SealCredential encrypts the plaintext secrets into cred
func (k *KeyRing) SealCredential(cred *models.ProviderCredential, apiKey, secretKey string) error {
	enc, err := k.For(cred.Provider)
	if err != nil {
		return err
	}

	sealed, err := enc.Seal([]byte(apiKey))
	if err != nil {
		return err
	}
	cred.EncryptedAPIKey, cred.APIKeyIV, cred.APIKeyAuthTag = sealed.Ciphertext, sealed.IV, sealed.AuthTag

	cred.EncryptedSecretKey, cred.SecretKeyIV, cred.SecretKeyAuthTag = nil, nil, nil
	if secretKey != "" {
		sealed, err := enc.Seal([]byte(secretKey))
		if err != nil {
			return err
		}
		cred.EncryptedSecretKey, cred.SecretKeyIV, cred.SecretKeyAuthTag = &sealed.Ciphertext, &sealed.IV, &sealed.AuthTag
	}
	return nil
}

// OpenCredential decrypts the API key and, when present, the secret key
func (k *KeyRing) OpenCredential(cred *models.ProviderCredential) (apiKey, secretKey string, err error) {
	enc, err := k.For(cred.Provider)
	if err != nil {
		return "", "", err
	}

	plain, err := enc.Open(Sealed{Ciphertext: cred.EncryptedAPIKey, IV: cred.APIKeyIV, AuthTag: cred.APIKeyAuthTag})
	if err != nil {
		return "", "", eris.Wrap(err, "api key")
	}
	apiKey = string(plain)

	if cred.HasSecretKey() {
		if cred.SecretKeyIV == nil || cred.SecretKeyAuthTag == nil {
			return "", "", eris.New("secret key is missing its iv or auth tag")
		}
		plain, err := enc.Open(Sealed{Ciphertext: *cred.EncryptedSecretKey, IV: *cred.SecretKeyIV, AuthTag: *cred.SecretKeyAuthTag})
		if err != nil {
			return "", "", eris.Wrap(err, "secret key")
		}
		secretKey = string(plain)
	}
	return apiKey, secretKey, nil
}

func parseKeyMaterial(s string) []byte {
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil {
			return b
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) >= 16 {
		return b
	}
	return []byte(s)
}
