package callback

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"checkout-engine/internal/apperr"
)

// DefaultSignatureHeader carries the HMAC of the raw callback body
const DefaultSignatureHeader = "X-Callback-Signature"

// Verifier checks HMAC-SHA256 tags over exact request bytes
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier for the shared secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the hex encoded tag of body
func (v *Verifier) Sign(body []byte) string {
	return hex.EncodeToString(v.mac(body))
}

// Verify compares signature, hex or base64 encoded and optionally prefixed
// with "sha256=", against the tag of body in constant time
func (v *Verifier) Verify(body []byte, signature string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: callback secret not configured", apperr.ErrUnauthorized)
	}

	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return fmt.Errorf("%w: missing signature", apperr.ErrUnauthorized)
	}

	provided, err := decodeSignature(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	if !hmac.Equal(provided, v.mac(body)) {
		return fmt.Errorf("%w: signature mismatch", apperr.ErrUnauthorized)
	}
	return nil
}

func (v *Verifier) mac(body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write(body)
	return h.Sum(nil)
}

func decodeSignature(sig string) ([]byte, error) {
	if decoded, err := hex.DecodeString(sig); err == nil && len(decoded) == sha256.Size {
		return decoded, nil
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(sig); err == nil && len(decoded) == sha256.Size {
			return decoded, nil
		}
	}
	return nil, errors.New("signature is not a hex or base64 sha256 tag")
}
