package cipher

import (
	"fmt"

	"finvault/e2ee/consts"
	"finvault/e2ee/consts/errs"
	"finvault/e2ee/utils"

	"github.com/awnumar/memguard"
	"github.com/tink-crypto/tink-go/kwp/subtle"
)

// KEK only knows how to wrap and unwrap. The derived bytes are dropped as
// soon as the wrap primitive is built, so a KEK can never encrypt data.
type KEK struct {
	kwp *subtle.KWP
}

func newKEK(raw []byte) (*KEK, error) {
	defer utils.Clear(raw)
	kwp, err := subtle.NewKWP(raw)
	if err != nil {
		return nil, fmt.Errorf("error creating key wrap primitive : %v", err)
	}
	return &KEK{kwp: kwp}, nil
}

// DEK is a handle to data key material sealed in a memguard enclave.
// The raw bytes only leave the enclave for the duration of a cipher call,
// or through Export when the handle is extractable.
type DEK struct {
	enclave     *memguard.Enclave
	extractable bool
}

// newDEK takes ownership of raw; the slice is wiped.
func newDEK(raw []byte, extractable bool) (*DEK, error) {
	if len(raw) != consts.DEKLen {
		utils.Clear(raw)
		return nil, fmt.Errorf("data key must be %d bytes, got %d", consts.DEKLen, len(raw))
	}
	return &DEK{
		enclave:     memguard.NewEnclave(raw),
		extractable: extractable,
	}, nil
}

func (k *DEK) open() (*memguard.LockedBuffer, error) {
	if k == nil || k.enclave == nil {
		return nil, errs.ErrKeysNotInitialized
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open key enclave : %v", err)
	}
	return buf, nil
}

func (k *DEK) Extractable() bool {
	return k != nil && k.extractable
}

// Export returns a copy of the key bytes. Only extractable handles allow it.
func (k *DEK) Export() ([]byte, error) {
	if !k.Extractable() {
		return nil, errs.ErrKeyNotExtractable
	}
	buf, err := k.open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	raw := make([]byte, buf.Size())
	copy(raw, buf.Bytes())
	return raw, nil
}

// Destroy drops the enclave. The handle is unusable afterwards.
func (k *DEK) Destroy() {
	if k == nil {
		return
	}
	k.enclave = nil
}

// EncodeStoredKey serializes a live key for the session key store, the only
// place a non-extractable key is allowed to go.
func EncodeStoredKey(k *DEK) (string, error) {
	buf, err := k.open()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return utils.EncodeBase64(buf.Bytes()), nil
}

// DecodeStoredKey restores a key saved by EncodeStoredKey. The handle is
// never extractable.
func DecodeStoredKey(s string) (*DEK, error) {
	raw, err := utils.DecodeBase64(s)
	if err != nil {
		return nil, fmt.Errorf("stored key: %w", err)
	}
	return newDEK(raw, false)
}
