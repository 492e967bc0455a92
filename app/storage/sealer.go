package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sb1:"

var ErrTokenUnseal = errors.New("cannot unseal stored token")

// TokenSealer encrypts provider tokens before they reach the database.
type TokenSealer struct {
	key [32]byte
}

// NewTokenSealer derives the box key from secret. An empty secret yields nil,
// which stores tokens as plain text.
func NewTokenSealer(secret string) *TokenSealer {
	if secret == "" {
		return nil
	}
	return &TokenSealer{key: sha256.Sum256([]byte(secret))}
}

func (t *TokenSealer) Seal(plain string) (string, error) {
	if t == nil || plain == "" {
		return plain, nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", errors.Wrap(err, "read nonce")
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &t.key)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Values written before sealing was enabled pass through.
func (t *TokenSealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if t == nil {
		return "", ErrTokenUnseal
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(raw) < 24 {
		return "", ErrTokenUnseal
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &t.key)
	if !ok {
		return "", ErrTokenUnseal
	}
	return string(plain), nil
}
