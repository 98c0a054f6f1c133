package errs

import "errors"

// Errorf pairs an internal error with the message a user is allowed to see.
// Type groups the failure for logs; Error is never shown to the user unless
// ReturnRaw is set.
type Errorf struct {
	Type      string
	Message   string
	Error     error
	ReturnRaw bool
}

// Generic Errors
const (
	ErrInternal   = "INTERNAL_ERROR"
	ErrBadRequest = "BAD_REQUEST"
)

// Key lifecycle Errors
const (
	ErrInvalidCredentials = "INVALID_CREDENTIALS"
	ErrSessionRestore     = "SESSION_RESTORE_FAILED"
	ErrSessionClear       = "SESSION_CLEAR_FAILED"
)

// Transform Errors
const (
	ErrEncryptionFailed = "ENCRYPTION_FAILED"
	ErrDecryptionFailed = "DECRYPTION_FAILED"
	ErrBadFormat        = "INVALID_FORMAT"
)

// File & Storage Errors
const (
	ErrFileNotFound  = "FILE_NOT_FOUND"
	ErrStorageFailed = "STORAGE_OPERATION_FAILED"
)

// Key session errors.
var (
	// ErrInvalidPassword is returned when the EDEK cannot be unwrapped. A
	// corrupted EDEK or salt produces the same error.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrKeysNotInStorage is returned when the session key store holds no key.
	ErrKeysNotInStorage = errors.New("keys not in storage")

	// ErrUserMismatch is returned when the stored key belongs to another user.
	ErrUserMismatch = errors.New("stored keys belong to a different user")

	// ErrKeysNotInitialized is returned by encrypt/decrypt before a key is loaded.
	ErrKeysNotInitialized = errors.New("keys not initialized")

	// ErrStorageUnavailable is returned when the platform has no persistent key store.
	ErrStorageUnavailable = errors.New("key storage unavailable")
)

// Schema and payload errors.
var (
	ErrInvalidSchema = errors.New("invalid schema")
	ErrUnknownModel  = errors.New("unknown model")
	ErrShapeMismatch = errors.New("payload shape mismatch")
	ErrInvalidFormat = errors.New("invalid payload format")
	ErrConversion    = errors.New("cannot convert decrypted value")
)

// Cipher errors.
var (
	// ErrOperation is an underlying cipher failure: authentication, tampering
	// or a wrong associated data value.
	ErrOperation = errors.New("cipher operation failed")

	ErrUnwrap            = errors.New("key unwrap failed")
	ErrKeyNotExtractable = errors.New("key is not extractable")
	ErrMalformedEnvelope = errors.New("malformed ciphertext envelope")
)

// Pool and store errors.
var (
	ErrPoolNotReady = errors.New("worker pool not ready")
	ErrPoolClosed   = errors.New("worker pool closed")
	ErrUserNotFound = errors.New("user not found")
)
