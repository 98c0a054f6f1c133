package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"finvault/e2ee/consts"
	"finvault/e2ee/logger"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
)

// Session cache backends.
const (
	CacheKeyring = "keyring"
	CacheMemory  = "memory"
	CacheNone    = "none"
)

type Settings struct {
	Crypto  Crypto  `toml:"crypto"`
	Pool    Pool    `toml:"pool"`
	Storage Storage `toml:"storage"`
	Logs    Logs    `toml:"logs"`

	logMaxAge time.Duration
	logLevel  logger.Level
}

type Crypto struct {
	KDFIterations int `toml:"kdf_iterations"`
	// EmptyPlaintextFault turns on the empty string workaround for engines
	// that fail on empty plaintexts.
	EmptyPlaintextFault bool `toml:"empty_plaintext_fault"`
}

type Pool struct {
	// Size of the worker pool, 0 picks one from the CPU count.
	Size int `toml:"size"`
}

type Storage struct {
	SessionCache   string `toml:"session_cache"`
	KeyringService string `toml:"keyring_service"`
	Database       string `toml:"database"`
	Schema         string `toml:"schema"`
}

type Logs struct {
	File    string `toml:"file"`
	Level   string `toml:"level"`
	MaxSize string `toml:"max_size"`
	MaxAge  string `toml:"max_age"`
}

func Default() *Settings {
	return &Settings{
		Crypto: Crypto{
			KDFIterations: consts.DefaultKDFIterations,
		},
		Storage: Storage{
			SessionCache:   CacheKeyring,
			KeyringService: consts.SERVICE_NAME_KEYS,
			Database:       consts.DB_FILE_PATH,
			Schema:         consts.SCHEMA_FILE_PATH,
		},
		Logs: Logs{
			File:    consts.LOGS_FILE_PATH,
			Level:   string(logger.InfoLevel),
			MaxSize: consts.LOGS_MAX_FILE_SIZE,
			MaxAge:  consts.LOGS_MAX_AGE,
		},
		logMaxAge: 28 * 24 * time.Hour,
		logLevel:  logger.InfoLevel,
	}
}

// NewSettings reads path over the defaults. A missing file is not an
// error.
func NewSettings(path string) (*Settings, error) {
	settings := Default()
	if err := settings.initSettings(path); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Settings) initSettings(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	md, err := toml.DecodeFile(path, s)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown settings: %s", strings.Join(keys, ", "))
	}

	return s.validate()
}

func (s *Settings) validate() error {
	if s.Crypto.KDFIterations < consts.MinKDFIterations {
		return fmt.Errorf("kdf_iterations must be at least %d, got %d", consts.MinKDFIterations, s.Crypto.KDFIterations)
	}
	if s.Pool.Size < 0 {
		return fmt.Errorf("pool size cannot be negative")
	}

	switch s.Storage.SessionCache {
	case CacheKeyring, CacheMemory, CacheNone:
	default:
		return fmt.Errorf("session_cache must be %q, %q or %q, got %q", CacheKeyring, CacheMemory, CacheNone, s.Storage.SessionCache)
	}

	level, err := logger.ParseLevel(s.Logs.Level)
	if err != nil {
		return err
	}
	s.logLevel = level

	if _, err = units.FromHumanSize(s.Logs.MaxSize); err != nil {
		return fmt.Errorf("invalid logs max_size %q: %v", s.Logs.MaxSize, err)
	}

	s.logMaxAge = 0
	if s.Logs.MaxAge != "" {
		if s.logMaxAge, err = time.ParseDuration(s.Logs.MaxAge); err != nil {
			return fmt.Errorf("invalid logs max_age %q: %v", s.Logs.MaxAge, err)
		}
	}
	return nil
}

func (s *Settings) LogLevel() logger.Level {
	return s.logLevel
}

// LogMaxAge is zero when entries never expire.
func (s *Settings) LogMaxAge() time.Duration {
	return s.logMaxAge
}
