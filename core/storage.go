package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"finvault/e2ee/consts"
	"finvault/e2ee/consts/errs"

	"github.com/zalando/go-keyring"
)

// StoredKey is what a KeyStore caches: the live data key of the current
// session and the user it belongs to.
type StoredKey struct {
	UserID string `json:"userId"`
	Key    string `json:"key"`
}

// KeyStore is the single-writer cache of the current session key.
// Load returns nil, nil when nothing is stored.
type KeyStore interface {
	Available() bool
	Save(key StoredKey) error
	Load() (*StoredKey, error)
	Clear() error
}

// >>>

// KeyringStore keeps the session key in the OS keyring, under one entry of
// one service.
type KeyringStore struct {
	service string
	entry   string
}

func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = consts.SERVICE_NAME_KEYS
	}
	return &KeyringStore{
		service: service,
		entry:   consts.KEYRING_ENTRY,
	}
}

// Available probes the keyring. A missing entry still means the keyring
// itself can be reached.
func (s *KeyringStore) Available() bool {
	_, err := keyring.Get(s.service, s.entry)
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

func (s *KeyringStore) Save(key StoredKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return err
	}
	if err = keyring.Set(s.service, s.entry, string(data)); err != nil {
		return fmt.Errorf("keyring set failed: %v", err)
	}
	return nil
}

func (s *KeyringStore) Load() (*StoredKey, error) {
	data, err := keyring.Get(s.service, s.entry)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get failed: %v", err)
	}

	key := new(StoredKey)
	if err = json.Unmarshal([]byte(data), key); err != nil {
		return nil, fmt.Errorf("stored key is corrupted: %v", err)
	}
	return key, nil
}

func (s *KeyringStore) Clear() error {
	err := keyring.Delete(s.service, s.entry)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete failed: %v", err)
	}
	return nil
}

// >>>

// MemoryStore is a process-local KeyStore, shared by every session that is
// handed the same instance.
type MemoryStore struct {
	mu  sync.Mutex
	key *StoredKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Available() bool { return true }

func (s *MemoryStore) Save(key StoredKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = &key
	return nil
}

func (s *MemoryStore) Load() (*StoredKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return nil, nil
	}
	key := *s.key
	return &key, nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = nil
	return nil
}

// NoStore is a platform without persistent key storage.
type NoStore struct{}

func (NoStore) Available() bool { return false }

func (NoStore) Save(StoredKey) error { return errs.ErrStorageUnavailable }

func (NoStore) Load() (*StoredKey, error) { return nil, errs.ErrStorageUnavailable }

func (NoStore) Clear() error { return nil }
