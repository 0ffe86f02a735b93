package callback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"checkout-engine/internal/apperr"
	"checkout-engine/internal/models"
)

type envelope struct {
	Body struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        *int   `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []metadataItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type metadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseResult decodes a payment result callback
func ParseResult(body []byte) (models.PaymentOutcome, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.PaymentOutcome{}, fmt.Errorf("%w: malformed callback: %v", apperr.ErrInvalidArgument, err)
	}
	cb := env.Body.StkCallback
	if cb == nil {
		return models.PaymentOutcome{}, fmt.Errorf("%w: callback has no stkCallback body", apperr.ErrInvalidArgument)
	}
	if strings.TrimSpace(cb.CheckoutRequestID) == "" {
		return models.PaymentOutcome{}, fmt.Errorf("%w: callback has no request id", apperr.ErrInvalidArgument)
	}
	if cb.ResultCode == nil {
		return models.PaymentOutcome{}, fmt.Errorf("%w: callback has no result code", apperr.ErrInvalidArgument)
	}

	outcome := models.PaymentOutcome{
		ProviderRequestID: strings.TrimSpace(cb.CheckoutRequestID),
		MerchantRequestID: cb.MerchantRequestID,
		Success:           *cb.ResultCode == 0,
		ResultCode:        *cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if !outcome.Success {
		return outcome, nil
	}

	if cb.CallbackMetadata == nil {
		return outcome, fmt.Errorf("%w: successful callback has no metadata", apperr.ErrInvalidArgument)
	}
	hasAmount := false
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			amount, err := parseAmount(item.Value)
			if err != nil {
				return outcome, fmt.Errorf("%w: callback amount: %v", apperr.ErrInvalidArgument, err)
			}
			outcome.Amount = amount
			hasAmount = true
		case "MpesaReceiptNumber":
			outcome.ReceiptNumber = rawString(item.Value)
		case "PhoneNumber":
			outcome.PhoneNumber = rawString(item.Value)
		}
	}
	if !hasAmount {
		return outcome, fmt.Errorf("%w: successful callback has no amount", apperr.ErrInvalidArgument)
	}
	return outcome, nil
}

type timeoutBody struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	MerchantRequestID string `json:"MerchantRequestID"`
	ResultDesc        string `json:"ResultDesc"`
}

// ParseTimeout decodes a timeout notice. Both the result envelope and a
// flat body carrying the request id are accepted; either way the outcome is
// a failure.
func ParseTimeout(body []byte) (models.PaymentOutcome, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.PaymentOutcome{}, fmt.Errorf("%w: malformed timeout: %v", apperr.ErrInvalidArgument, err)
	}

	var t timeoutBody
	if cb := env.Body.StkCallback; cb != nil {
		t = timeoutBody{CheckoutRequestID: cb.CheckoutRequestID, MerchantRequestID: cb.MerchantRequestID, ResultDesc: cb.ResultDesc}
	} else if err := json.Unmarshal(body, &t); err != nil {
		return models.PaymentOutcome{}, fmt.Errorf("%w: malformed timeout: %v", apperr.ErrInvalidArgument, err)
	}

	if strings.TrimSpace(t.CheckoutRequestID) == "" {
		return models.PaymentOutcome{}, fmt.Errorf("%w: timeout has no request id", apperr.ErrInvalidArgument)
	}
	desc := t.ResultDesc
	if desc == "" {
		desc = "payment request timed out"
	}
	return models.PaymentOutcome{
		ProviderRequestID: strings.TrimSpace(t.CheckoutRequestID),
		MerchantRequestID: t.MerchantRequestID,
		Timeout:           true,
		ResultCode:        -1,
		ResultDesc:        desc,
	}, nil
}

func parseAmount(raw json.RawMessage) (int64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		s := rawString(raw)
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, fmt.Errorf("not a number: %s", raw)
		}
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, fmt.Errorf("not a whole amount: %s", raw)
	}
	return int64(f), nil
}

// rawString renders a JSON scalar without quotes; numbers keep their digits
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
