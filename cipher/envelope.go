package cipher

import (
	"fmt"
	"strings"

	"finvault/e2ee/consts/errs"
	"finvault/e2ee/utils"
)

// ':' is outside the base64 alphabet, so the first colon always splits
// the iv from the ciphertext.
const envelopeSep = ":"

func EncodeEnvelope(iv, ciphertext []byte) string {
	return utils.EncodeBase64(iv) + envelopeSep + utils.EncodeBase64(ciphertext)
}

func DecodeEnvelope(envelope string) (iv, ciphertext []byte, err error) {
	ivStr, ctStr, ok := strings.Cut(envelope, envelopeSep)
	if !ok || ivStr == "" {
		return nil, nil, errs.ErrMalformedEnvelope
	}
	if iv, err = utils.DecodeBase64(ivStr); err != nil {
		return nil, nil, fmt.Errorf("%w: iv: %v", errs.ErrMalformedEnvelope, err)
	}
	if ciphertext, err = utils.DecodeBase64(ctStr); err != nil {
		return nil, nil, fmt.Errorf("%w: ciphertext: %v", errs.ErrMalformedEnvelope, err)
	}
	return iv, ciphertext, nil
}

// TextToBytes and BytesToText move field values in and out of the cipher.
// Field values are always UTF-8 text.
func TextToBytes(s string) []byte {
	return []byte(s)
}

func BytesToText(b []byte) string {
	return string(b)
}
