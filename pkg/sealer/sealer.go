package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Development fallback key (32 bytes decoded); deployments override it via
// CHECKOUT_TOKEN_KEY.
const defaultKey = "ZmFubGluZS1jaGVja291dC10b2tlbi1kZWZhdWx0ISE="

// Sealer mints and verifies the opaque checkout tokens handed to admitted
// participants. A token binds (resource, participant) so a checkout session
// cannot be transplanted onto another resource or user.
type Sealer struct {
	key []byte
}

func New(base64Key string) (*Sealer, error) {
	if base64Key == "" {
		base64Key = defaultKey
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid checkout token key: %w", err)
	}
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("checkout token key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	return &Sealer{key: key}, nil
}

// SealCheckoutToken encrypts resource and participant ids into an opaque
// URL-safe token.
func (s *Sealer) SealCheckoutToken(resourceID, participantID string) (string, error) {
	plaintext := []byte(resourceID + ":" + participantID)

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ct := aesgcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(ct), nil
}

// OpenCheckoutToken decrypts a token back into (resourceID, participantID).
func (s *Sealer) OpenCheckoutToken(token string) (string, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("malformed token: %w", err)
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", "", err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", err
	}

	if len(data) < aesgcm.NonceSize() {
		return "", "", fmt.Errorf("malformed token: too short")
	}

	nonce, ct := data[:aesgcm.NonceSize()], data[aesgcm.NonceSize():]
	plaintext, err := aesgcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", "", fmt.Errorf("token verification failed: %w", err)
	}

	parts := strings.SplitN(string(plaintext), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed token payload")
	}

	return parts[0], parts[1], nil
}
