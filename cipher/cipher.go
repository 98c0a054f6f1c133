package cipher

// DEK: Data Encryption Key, encrypts every user field.
// KEK: Key Encryption Key, derived from the password, only wraps the DEK.
// EDEK: the DEK wrapped under the KEK, the only form that is persisted.
type Cipher interface {
	GenerateSalt() (salt []byte, err error)
	DeriveKEK(pwd, salt []byte) (kek *KEK, err error)

	GenerateDEK() (dek *DEK, err error)
	Wrap(dek *DEK, kek *KEK) (edek []byte, err error)
	UnWrap(edek []byte, kek *KEK, extractable bool) (dek *DEK, err error)

	// Encrypt seals plaintext under dek, binding it to aad, and returns the
	// "<base64 iv>:<base64 ciphertext>" envelope.
	Encrypt(dek *DEK, aad, plaintext []byte) (envelope string, err error)
	Decrypt(dek *DEK, aad []byte, envelope string) (plaintext []byte, err error)
}
