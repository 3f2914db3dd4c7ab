// Package signature authenticates payment gateway callbacks.
//
// The gateway signs a query string built from a fixed list of callback keys
// with HMAC-SHA256 over a pre-shared secret. Values are used exactly as they
// were received: no escaping, trimming or re-encoding, so the field order and
// raw concatenation must not change.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"order-callback-service/internal/payload"

	"github.com/pkg/errors"
)

var ErrMalformedPayload = errors.New("malformed payment callback")

// keys that must carry a value, not only be present
var nonEmptyKeys = []string{
	"partnerCode", "orderId", "requestId", "amount", "resultCode", "transId", "responseTime",
}

type Verifier struct {
	accessKey string
	secretKey []byte
}

func NewVerifier(accessKey, secretKey string) *Verifier {
	return &Verifier{accessKey: accessKey, secretKey: []byte(secretKey)}
}

// CanonicalString builds the string the gateway signs:
// accessKey=..&amount=..&extraData=..&message=..&orderId=..&orderInfo=..&orderType=..
// &partnerCode=..&payType=..&requestId=..&responseTime=..&resultCode=..&transId=..
func CanonicalString(accessKey string, cb *payload.PaymentCallback) string {
	var b strings.Builder
	b.WriteString("accessKey=")
	b.WriteString(accessKey)
	for _, key := range payload.SignedKeys {
		b.WriteByte('&')
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(cb.Value(key))
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA256 of the callback's canonical string.
func (v *Verifier) Sign(cb *payload.PaymentCallback) string {
	mac := hmac.New(sha256.New, v.secretKey)
	mac.Write([]byte(CanonicalString(v.accessKey, cb)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether cb carries a valid signature. It returns
// ErrMalformedPayload when a field needed to check or act on the callback is
// missing; the verdict is false in that case.
func (v *Verifier) Verify(cb *payload.PaymentCallback) (bool, error) {
	if cb == nil {
		return false, ErrMalformedPayload
	}
	if err := checkRequired(cb); err != nil {
		return false, err
	}

	received, err := hex.DecodeString(cb.Signature)
	if err != nil {
		return false, nil
	}

	mac := hmac.New(sha256.New, v.secretKey)
	mac.Write([]byte(CanonicalString(v.accessKey, cb)))

	return hmac.Equal(mac.Sum(nil), received), nil
}

func checkRequired(cb *payload.PaymentCallback) error {
	for _, key := range payload.SignedKeys {
		if cb.Absent(key) {
			return errors.Wrapf(ErrMalformedPayload, "missing %s", key)
		}
	}
	for _, key := range nonEmptyKeys {
		if cb.Value(key) == "" {
			return errors.Wrapf(ErrMalformedPayload, "empty %s", key)
		}
	}
	if cb.UserID == "" {
		return errors.Wrap(ErrMalformedPayload, "empty userId")
	}
	if cb.Signature == "" {
		return errors.Wrap(ErrMalformedPayload, "empty signature")
	}
	return nil
}
