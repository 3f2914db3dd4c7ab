package callback

import (
	"order-callback-service/internal/signature"

	"github.com/pkg/errors"
)

var (
	ErrInvalidSignature = errors.New("invalid payment callback signature")
	ErrMalformedPayload = signature.ErrMalformedPayload
	ErrOrderNotFound    = errors.New("order not found")
	ErrStoreUnavailable = errors.New("order store unavailable")
)
