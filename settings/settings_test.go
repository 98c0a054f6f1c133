package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finvault/e2ee/consts"
	"finvault/e2ee/logger"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finvault.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewSettings_Missing(t *testing.T) {
	s, err := NewSettings(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("NewSettings() error: %v", err)
	}
	if s.Crypto.KDFIterations != consts.DefaultKDFIterations {
		t.Errorf("KDFIterations = %d, want default", s.Crypto.KDFIterations)
	}
	if s.Storage.SessionCache != CacheKeyring {
		t.Errorf("SessionCache = %q, want %q", s.Storage.SessionCache, CacheKeyring)
	}
	if s.LogMaxAge() != 28*24*time.Hour {
		t.Errorf("LogMaxAge() = %v", s.LogMaxAge())
	}
}

func TestNewSettings_File(t *testing.T) {
	path := writeSettings(t, `
[crypto]
kdf_iterations = 1200000
empty_plaintext_fault = true

[pool]
size = 3

[storage]
session_cache = "memory"
database = "/tmp/x.db"

[logs]
level = "debug"
max_size = "2MB"
max_age = "24h"
`)

	s, err := NewSettings(path)
	if err != nil {
		t.Fatalf("NewSettings() error: %v", err)
	}
	if s.Crypto.KDFIterations != 1_200_000 || !s.Crypto.EmptyPlaintextFault {
		t.Errorf("Crypto = %+v", s.Crypto)
	}
	if s.Pool.Size != 3 {
		t.Errorf("Pool.Size = %d, want 3", s.Pool.Size)
	}
	if s.Storage.SessionCache != CacheMemory || s.Storage.Database != "/tmp/x.db" {
		t.Errorf("Storage = %+v", s.Storage)
	}
	if s.Storage.Schema != consts.SCHEMA_FILE_PATH {
		t.Errorf("unset Schema = %q, want default", s.Storage.Schema)
	}
	if s.LogLevel() != logger.DebugLevel || s.LogMaxAge() != 24*time.Hour {
		t.Errorf("LogLevel() = %q, LogMaxAge() = %v", s.LogLevel(), s.LogMaxAge())
	}
}

func TestNewSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"weak kdf", "[crypto]\nkdf_iterations = 1000\n", "kdf_iterations"},
		{"kdf just under the floor", "[crypto]\nkdf_iterations = 999999\n", "at least 1000000"},
		{"negative pool", "[pool]\nsize = -1\n", "pool size"},
		{"bad cache", "[storage]\nsession_cache = \"disk\"\n", "session_cache"},
		{"bad level", "[logs]\nlevel = \"loud\"\n", "log level"},
		{"bad size", "[logs]\nmax_size = \"huge\"\n", "max_size"},
		{"bad age", "[logs]\nmax_age = \"a while\"\n", "max_age"},
		{"unknown key", "[pool]\nworkers = 4\n", "unknown settings"},
		{"not toml", "pool = [", "failed to load"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSettings(writeSettings(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("NewSettings() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
