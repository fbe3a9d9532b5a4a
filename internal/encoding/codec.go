package encoding

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/revaristo12/chatliver1404/pkg/crypto"
)

// Codec transforms message content into its at-rest encoded form and back.
// This is an encoding boundary, not an end-to-end security boundary: the key
// lives in server configuration and the plaintext display copy is stored
// alongside the encoded copy.
type Codec interface {
	Encode(plaintext string) (string, error)
	Decode(encoded string) (string, error)
}

// PlainCodec stores content verbatim.
type PlainCodec struct{}

func (PlainCodec) Encode(plaintext string) (string, error) { return plaintext, nil }
func (PlainCodec) Decode(encoded string) (string, error)   { return encoded, nil }

// AESCodec encodes content with AES-256-GCM under a key derived from the
// configured secret.
type AESCodec struct {
	key []byte
}

// NewAESCodec derives a 256-bit key from the provided secret.
func NewAESCodec(secret string) (*AESCodec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("encoding: secret is required")
	}

	sum := sha256.Sum256([]byte(secret))
	return &AESCodec{key: sum[:]}, nil
}

func (c *AESCodec) Encode(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return crypto.Encrypt([]byte(plaintext), c.key)
}

func (c *AESCodec) Decode(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	plain, err := crypto.Decrypt(encoded, c.key)
	if err != nil {
		return "", fmt.Errorf("encoding: decode: %w", err)
	}
	return string(plain), nil
}

// New builds a codec by name. Supported: "aes", "plain".
func New(name, secret string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "aes":
		return NewAESCodec(secret)
	case "plain", "none":
		return PlainCodec{}, nil
	default:
		return nil, fmt.Errorf("encoding: unknown codec %q", name)
	}
}
