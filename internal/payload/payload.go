package payload

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Scalar keeps a JSON string or number exactly as it appeared on the wire.
// Quoted values are unquoted, numbers keep their literal text.
type Scalar string

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	*s = Scalar(data)
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	if len(s) > 0 && (s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) && json.Valid([]byte(s)) {
		return []byte(s), nil
	}
	return json.Marshal(string(s))
}

func (s Scalar) String() string {
	return string(s)
}

// PaymentCallback is the gateway's payment result notification.
type PaymentCallback struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       Scalar `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      Scalar `json:"transId"`
	ResultCode   Scalar `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime Scalar `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	UserID       string `json:"userId"`
	Signature    string `json:"signature"`

	absent map[string]bool
}

// SignedKeys lists the callback keys covered by the signature, in wire order.
var SignedKeys = []string{
	"amount", "extraData", "message", "orderId", "orderInfo", "orderType",
	"partnerCode", "payType", "requestId", "responseTime", "resultCode", "transId",
}

var unsignedKeys = []string{"userId", "signature"}

func (c *PaymentCallback) UnmarshalJSON(data []byte) error {
	type plain PaymentCallback
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	absent := make(map[string]bool)
	for _, keys := range [][]string{SignedKeys, unsignedKeys} {
		for _, key := range keys {
			value, ok := raw[key]
			if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
				absent[key] = true
			}
		}
	}

	*c = PaymentCallback(decoded)
	c.absent = absent
	return nil
}

// Absent reports whether key was missing or null in the decoded body.
// Callbacks built in code have every key present.
func (c *PaymentCallback) Absent(key string) bool {
	return c.absent[key]
}

// Value returns the raw value of a signed key.
func (c *PaymentCallback) Value(key string) string {
	switch key {
	case "amount":
		return c.Amount.String()
	case "extraData":
		return c.ExtraData
	case "message":
		return c.Message
	case "orderId":
		return c.OrderID
	case "orderInfo":
		return c.OrderInfo
	case "orderType":
		return c.OrderType
	case "partnerCode":
		return c.PartnerCode
	case "payType":
		return c.PayType
	case "requestId":
		return c.RequestID
	case "responseTime":
		return c.ResponseTime.String()
	case "resultCode":
		return c.ResultCode.String()
	case "transId":
		return c.TransID.String()
	case "userId":
		return c.UserID
	case "signature":
		return c.Signature
	}
	return ""
}

// Succeeded reports whether the gateway result code is 0. ok is false when the
// result code is not an integer. Codes of any length are accepted.
func (c *PaymentCallback) Succeeded() (succeeded bool, ok bool) {
	digits := strings.TrimLeft(c.ResultCode.String(), "+-")
	if len(c.ResultCode)-len(digits) > 1 || digits == "" {
		return false, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false, false
		}
	}
	return strings.Trim(digits, "0") == "", true
}

// CallbackResponse is returned to the gateway.
type CallbackResponse struct {
	Result  string `json:"result"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}
