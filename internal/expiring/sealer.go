package expiring

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"onboarding/pkg/platform/sentinel"
)

const (
	sealKeySize   = 32
	sealNonceSize = 24
)

var errUnseal = fmt.Errorf("unseal: %w", sentinel.ErrCorrupt)

// Sealer encrypts stored values at rest with NaCl secretbox. Shared backends
// hold names, emails and phone numbers, so they never see plaintext.
type Sealer struct {
	key [sealKeySize]byte
}

// NewSealer builds a Sealer from a base64-encoded 32 byte key.
func NewSealer(encodedKey string) (*Sealer, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	if len(raw) != sealKeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", sealKeySize, len(raw))
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal returns nonce || box.
func (s *Sealer) Seal(plain []byte) []byte {
	var nonce [sealNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		panic(fmt.Sprintf("read nonce: %v", err))
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key)
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < sealNonceSize+secretbox.Overhead {
		return nil, errUnseal
	}
	var nonce [sealNonceSize]byte
	copy(nonce[:], sealed[:sealNonceSize])
	plain, ok := secretbox.Open(nil, sealed[sealNonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errUnseal
	}
	return plain, nil
}
