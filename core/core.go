package core

import (
	"errors"
	"fmt"

	"finvault/e2ee/cipher"
	"finvault/e2ee/consts"
	"finvault/e2ee/consts/errs"
	"finvault/e2ee/utils"
)

// Session houses the live data key of one user. There are no 'Get' methods
// on the key: everything that needs it, encrypt and decrypt, happens here.
type Session struct {
	cipher cipher.Cipher
	store  KeyStore

	dek    *cipher.DEK
	userID string
}

// NewSession returns an uninitialized session. A nil store behaves like
// NoStore.
func NewSession(c cipher.Cipher, store KeyStore) *Session {
	if store == nil {
		store = NoStore{}
	}
	return &Session{
		cipher: c,
		store:  store,
	}
}

// >>>

// WrappedKeys is the key material a remote store keeps next to a user:
// the wrapped data key and the salt of the password key. Both are opaque.
type WrappedKeys struct {
	EDEK    string `json:"edek"`
	KEKSalt string `json:"kekSalt"`
}

func (k *WrappedKeys) decode() (edek, salt []byte, err error) {
	if k == nil || k.EDEK == "" || k.KEKSalt == "" {
		return nil, nil, fmt.Errorf("wrapped keys cannot be empty")
	}
	if edek, err = utils.DecodeBase64(k.EDEK); err != nil {
		return nil, nil, fmt.Errorf("edek: %v", err)
	}
	if salt, err = utils.DecodeBase64(k.KEKSalt); err != nil {
		return nil, nil, fmt.Errorf("kek salt: %v", err)
	}
	return edek, salt, nil
}

func wrapNew(c cipher.Cipher, dek *cipher.DEK, pwd []byte) (*WrappedKeys, error) {
	salt, err := c.GenerateSalt()
	if err != nil {
		return nil, err
	}
	kek, err := c.DeriveKEK(pwd, salt)
	if err != nil {
		return nil, err
	}
	edek, err := c.Wrap(dek, kek)
	if err != nil {
		return nil, err
	}

	return &WrappedKeys{
		EDEK:    utils.EncodeBase64(edek),
		KEKSalt: utils.EncodeBase64(salt),
	}, nil
}

// GenerateKeysForNewUser creates the key hierarchy of a new account:
// salt, KEK, a fresh DEK and the DEK wrapped under the KEK. No session is
// touched; the caller persists the result.
func GenerateKeysForNewUser(c cipher.Cipher, pwd []byte) (*WrappedKeys, error) {
	dek, err := c.GenerateDEK()
	if err != nil {
		return nil, err
	}
	defer dek.Destroy()

	keys, err := wrapNew(c, dek, pwd)
	if err != nil {
		return nil, fmt.Errorf("error generating keys for new user : %v", err)
	}
	return keys, nil
}

// ChangeKeysForUser rewraps the same DEK under a KEK derived from newPwd and
// a new salt. The data key itself never changes, so existing ciphertexts
// stay readable.
func ChangeKeysForUser(c cipher.Cipher, oldPwd, newPwd []byte, keys *WrappedKeys) (*WrappedKeys, error) {
	dek, err := unwrap(c, keys, oldPwd, true)
	if err != nil {
		return nil, err
	}
	defer dek.Destroy()

	next, err := wrapNew(c, dek, newPwd)
	if err != nil {
		return nil, fmt.Errorf("error rewrapping data key : %v", err)
	}
	return next, nil
}

// unwrap reports every failure as errs.ErrInvalidPassword. A wrong password
// and a corrupted edek or salt are not told apart.
func unwrap(c cipher.Cipher, keys *WrappedKeys, pwd []byte, extractable bool) (*cipher.DEK, error) {
	edek, salt, err := keys.decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidPassword, err)
	}
	kek, err := c.DeriveKEK(pwd, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidPassword, err)
	}
	dek, err := c.UnWrap(edek, kek, extractable)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidPassword, err)
	}
	return dek, nil
}

// >>>

// Init unlocks the session with the user's password. The unwrapped key is
// not extractable. When the key store is available the key is cached there
// for InitFromStorage.
func (s *Session) Init(keys *WrappedKeys, pwd []byte, userID string) error {
	dek, err := unwrap(s.cipher, keys, pwd, false)
	if err != nil {
		return err
	}

	if s.store.Available() {
		encoded, err := cipher.EncodeStoredKey(dek)
		if err != nil {
			dek.Destroy()
			return err
		}
		if err = s.store.Save(StoredKey{UserID: userID, Key: encoded}); err != nil {
			dek.Destroy()
			return fmt.Errorf("error caching session key : %w", err)
		}
	}

	s.set(dek, userID)
	return nil
}

// InitFromStorage loads the cached key of userID without a password.
func (s *Session) InitFromStorage(userID string) error {
	if !s.store.Available() {
		return errs.ErrStorageUnavailable
	}
	stored, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("error reading session key : %w", err)
	}
	if stored == nil || stored.Key == "" {
		return errs.ErrKeysNotInStorage
	}
	if stored.UserID != userID {
		return errs.ErrUserMismatch
	}

	dek, err := cipher.DecodeStoredKey(stored.Key)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrKeysNotInStorage, err)
	}
	s.set(dek, userID)
	return nil
}

func (s *Session) set(dek *cipher.DEK, userID string) {
	s.dek.Destroy()
	s.dek = dek
	s.userID = userID
}

// DelSession drops the in-memory key. The key store is left alone, see
// ClearStorage.
func (s *Session) DelSession() {
	s.dek.Destroy()
	s.dek = nil
	s.userID = ""
}

func (s *Session) Initialized() bool {
	return s.dek != nil
}

func (s *Session) UserID() string {
	return s.userID
}

// >>>

// Encrypt seals one field value, bound to the session's user.
func (s *Session) Encrypt(plaintext string) (string, error) {
	if !s.Initialized() {
		return "", errs.ErrKeysNotInitialized
	}
	return s.cipher.Encrypt(s.dek, []byte(s.userID), cipher.TextToBytes(plaintext))
}

// Decrypt opens one envelope. The literal "null" marks a database NULL and
// is returned as is.
func (s *Session) Decrypt(envelope string) (string, error) {
	if !s.Initialized() {
		return "", errs.ErrKeysNotInitialized
	}
	if envelope == consts.NullSentinel {
		return envelope, nil
	}
	raw, err := s.cipher.Decrypt(s.dek, []byte(s.userID), envelope)
	if err != nil {
		return "", err
	}
	return cipher.BytesToText(raw), nil
}

// ClearStorage wipes the cached session key. Clearing an empty or
// unavailable store is not an error.
func ClearStorage(store KeyStore) error {
	if store == nil || !store.Available() {
		return nil
	}
	if err := store.Clear(); err != nil && !errors.Is(err, errs.ErrKeysNotInStorage) {
		return fmt.Errorf("error clearing session key : %w", err)
	}
	return nil
}
