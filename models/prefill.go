package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
)

// Prefill carries the optional payload embedded in the landing page's
// `data` query parameter, typically produced by a QR code.
type Prefill struct {
	TransactionType string `json:"TransactionType"`
	Amount          int64  `json:"Amount,omitempty"`
}

// ErrBadPrefill is returned when the query parameter cannot be decoded
// into a prefill payload.
var ErrBadPrefill = errors.New("malformed prefill payload")

// EncodePrefill renders a prefill payload into its query-parameter form.
func EncodePrefill(p Prefill) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodePrefill parses the `data` query parameter. Base64-encoded JSON is
// the primary form; a URI-encoded JSON string is accepted as a fallback.
// A payload without a transaction type is rejected.
func DecodePrefill(raw string) (Prefill, error) {
	if raw == "" {
		return Prefill{}, ErrBadPrefill
	}

	var candidate []byte
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		candidate = b
	} else if s, err := url.QueryUnescape(raw); err == nil {
		candidate = []byte(s)
	} else {
		candidate = []byte(raw)
	}

	var p Prefill
	if err := json.Unmarshal(candidate, &p); err != nil {
		return Prefill{}, ErrBadPrefill
	}
	if p.TransactionType == "" {
		return Prefill{}, ErrBadPrefill
	}
	return p, nil
}
