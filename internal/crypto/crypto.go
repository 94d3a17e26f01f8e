// Package crypto seals platform tokens before they reach a persistence medium.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
	apperrors "github.com/rentcopilot/connection-hub/internal/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

type Service interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// NoopService passes tokens through unchanged (dev/test mode).
type NoopService struct{}

func (NoopService) Encrypt(plaintext string) (string, error)  { return plaintext, nil }
func (NoopService) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }

var (
	_ Service = NoopService{}
	_ Service = (*SealService)(nil)
)

// SealService encrypts with XChaCha20-Poly1305. Output is hex(nonce || ciphertext || tag).
type SealService struct {
	aead cipher.AEAD
}

// NewSealService takes a 32 byte key, hex encoded (64 characters).
func NewSealService(hexKey string) (*SealService, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidSecretKey, "[crypto.NewSealService] key is not hex")
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Wrapf(apperrors.ErrInvalidSecretKey, "[crypto.NewSealService] key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "[crypto.NewSealService] create cipher")
	}
	return &SealService{aead: aead}, nil
}

// New returns a SealService when a key is configured, NoopService otherwise.
func New(hexKey string) (Service, error) {
	if hexKey == "" {
		return NoopService{}, nil
	}
	svc, err := NewSealService(hexKey)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *SealService) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "[SealService.Encrypt] generate nonce")
	}
	return hex.EncodeToString(s.aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (s *SealService) Decrypt(ciphertext string) (string, error) {
	buffer, err := hex.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Wrap(err, "[SealService.Decrypt] decode hex")
	}
	if len(buffer) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", errors.New("[SealService.Decrypt] ciphertext too short")
	}
	nonce, sealed := buffer[:s.aead.NonceSize()], buffer[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errors.Wrap(err, "[SealService.Decrypt] open")
	}
	return string(plain), nil
}
