package consts

// Key material sizes, in bytes.
const (
	KEKSaltLen = 16
	DEKLen     = 32
	IVLen      = 12
)

// KDF iteration counts for PBKDF2-HMAC-SHA256.
const (
	DefaultKDFIterations = 1_000_000
	MinKDFIterations     = 1_000_000
)

// NullSentinel is how a database NULL travels through the string-only cipher pipeline.
const NullSentinel = "null"

// Worker contexts kept free for the caller's own goroutines.
const PoolHeadroom = 2
const MinPoolSize = 2

var SERVICE_NAME_KEYS = "finvault-session-keys"
var KEYRING_ENTRY = "session"
var SETTINGS_FILE_PATH = "finvault.toml"
var DB_FILE_PATH = "finvault.db"
var SCHEMA_FILE_PATH = "schema.yaml"
var LOGS_FILE_PATH = "finvault.logs.json"
var LOGS_MAX_FILE_SIZE = "15MB"
var LOGS_MAX_AGE = "672h" // 28 days
