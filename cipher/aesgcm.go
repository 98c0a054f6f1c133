package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"

	"finvault/e2ee/consts"
	"finvault/e2ee/consts/errs"
	"finvault/e2ee/utils"

	"golang.org/x/crypto/pbkdf2"
)

const gcmTagSize = 16

// Engine runs the AEAD itself on raw key bytes. Engines report any
// authentication or platform failure wrapped in errs.ErrOperation.
type Engine interface {
	Seal(key, iv, plaintext, aad []byte) ([]byte, error)
	Open(key, iv, ciphertext, aad []byte) ([]byte, error)
}

// Platform describes what the embedding environment knows about its engine.
type Platform struct {
	// EmptyPlaintextFault is set on engines that throw a generic operation
	// error when sealing or opening an empty plaintext.
	EmptyPlaintextFault bool
}

type AESGCM struct {
	iterations int
	engine     Engine
	platform   Platform
}

type Option func(*AESGCM)

// WithIterations sets the PBKDF2 iteration count. Values below
// consts.MinKDFIterations are raised to it.
func WithIterations(n int) Option {
	return func(s *AESGCM) {
		s.iterations = max(n, consts.MinKDFIterations)
	}
}

// WithTestingIterations sets the iteration count without the floor. Only
// meant for tests.
func WithTestingIterations(n int) Option {
	return func(s *AESGCM) {
		s.iterations = max(n, 1)
	}
}

func WithEngine(e Engine) Option {
	return func(s *AESGCM) {
		s.engine = e
	}
}

func WithPlatform(p Platform) Option {
	return func(s *AESGCM) {
		s.platform = p
	}
}

func NewAESGCMCipher(opts ...Option) *AESGCM {
	s := &AESGCM{
		iterations: consts.DefaultKDFIterations,
		engine:     GCMEngine{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AESGCM) Iterations() int {
	return s.iterations
}

func (s *AESGCM) GenerateSalt() ([]byte, error) {
	return utils.Rand(consts.KEKSaltLen)
}

// DeriveKEK stretches pwd with PBKDF2-HMAC-SHA256. Same pwd and salt, same KEK.
func (s *AESGCM) DeriveKEK(pwd, salt []byte) (*KEK, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("kek salt cannot be empty")
	}
	return newKEK(pbkdf2.Key(pwd, salt, s.iterations, consts.DEKLen, sha256.New))
}

func (s *AESGCM) GenerateDEK() (*DEK, error) {
	raw, err := utils.Rand(consts.DEKLen)
	if err != nil {
		return nil, fmt.Errorf("failed to get random data key: %v", err)
	}
	return newDEK(raw, true)
}

// Wrap wraps dek with AES-KWP under kek.
func (s *AESGCM) Wrap(dek *DEK, kek *KEK) ([]byte, error) {
	if kek == nil {
		return nil, fmt.Errorf("kek cannot be nil")
	}
	if !dek.Extractable() {
		return nil, errs.ErrKeyNotExtractable
	}
	buf, err := dek.open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	edek, err := kek.kwp.Wrap(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("error wrapping data key : %v", err)
	}
	return edek, nil
}

// UnWrap fails with errs.ErrUnwrap when kek is not the key edek was wrapped
// under; the wrap's integrity check never lets a wrong key through.
func (s *AESGCM) UnWrap(edek []byte, kek *KEK, extractable bool) (*DEK, error) {
	if kek == nil {
		return nil, fmt.Errorf("kek cannot be nil")
	}
	raw, err := kek.kwp.Unwrap(edek)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnwrap, err)
	}
	dek, err := newDEK(raw, extractable)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnwrap, err)
	}
	return dek, nil
}

func (s *AESGCM) Encrypt(dek *DEK, aad, plaintext []byte) (string, error) {
	buf, err := dek.open()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()

	iv, err := utils.Rand(consts.IVLen)
	if err != nil {
		return "", err
	}

	enc, err := s.engine.Seal(buf.Bytes(), iv, plaintext, aad)
	if err != nil && s.emptyPlaintextFault(err, len(plaintext) == 0) {
		enc, err = s.engine.Seal(buf.Bytes(), iv, []byte(" "), aad)
	}
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}

	return EncodeEnvelope(iv, enc), nil
}

func (s *AESGCM) Decrypt(dek *DEK, aad []byte, envelope string) ([]byte, error) {
	iv, enc, err := DecodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	buf, err := dek.open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	raw, err := s.engine.Open(buf.Bytes(), iv, enc, aad)
	if err != nil {
		if s.emptyPlaintextFault(err, len(enc) == gcmTagSize) {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return raw, nil
}

// emptyPlaintextFault reports the one engine failure that is recovered: a
// generic operation error on an empty plaintext, on platforms known to
// raise it.
func (s *AESGCM) emptyPlaintextFault(err error, empty bool) bool {
	return s.platform.EmptyPlaintextFault && empty && errors.Is(err, errs.ErrOperation)
}

// >>>

// GCMEngine is AES-GCM from the standard library.
type GCMEngine struct{}

func (GCMEngine) aead(key, iv []byte) (stdcipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("error creating new cipher block : %v", err)
	}
	gcm, err := stdcipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("error wrapping cipher block in GCM : %v", err)
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: iv size does not match", errs.ErrOperation)
	}
	return gcm, nil
}

func (e GCMEngine) Seal(key, iv, plaintext, aad []byte) ([]byte, error) {
	gcm, err := e.aead(key, iv)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, iv, plaintext, aad), nil
}

func (e GCMEngine) Open(key, iv, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := e.aead(key, iv)
	if err != nil {
		return nil, err
	}
	raw, err := gcm.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrOperation, err)
	}
	return raw, nil
}
