package models

import (
	"fmt"
	"time"
)

// PaymentRequest is the user-facing form input.
type PaymentRequest struct {
	Name        string `json:"name" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Amount      int64  `json:"amount" binding:"required"`
}

// STKPushRequest is the body of the gateway's push endpoint.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is the gateway's acceptance of a push request. The
// CheckoutRequestID correlates the attempt across queries and callbacks.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKQueryRequest is the body of the gateway's status query endpoint.
type STKQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// STKQueryResponse reports the outcome of a push attempt. ResultCode "0"
// means the payer authorized the charge.
type STKQueryResponse struct {
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        string `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
}

// CallbackEnvelope is the structure the gateway posts to the callback URL.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback carries the final result of one push attempt. CallbackMetadata
// is present only when the payment went through.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata is a name/value list; item order is not guaranteed.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values are heterogeneous on the wire (strings and numbers).
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// Get returns the value of the named metadata entry as a string, matching
// by name rather than position.
func (m *CallbackMetadata) Get(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, item := range m.Item {
		if item.Name != name {
			continue
		}
		switch v := item.Value.(type) {
		case nil:
			return "", false
		case string:
			return v, true
		case float64:
			// JSON numbers decode as float64; receipt amounts and phone
			// numbers are whole values.
			return formatNumber(v), true
		default:
			return fmt.Sprintf("%v", v), true
		}
	}
	return "", false
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

// PaymentStatus is the lifecycle of one push attempt as seen by the browser.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusSuccess PaymentStatus = "success"
	StatusFailed  PaymentStatus = "failed"
	StatusTimeout PaymentStatus = "timeout"
)

// Terminal reports whether the status can no longer change.
func (s PaymentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusTimeout
}

// PaymentRecord is the store entity keyed by CheckoutRequestID. It is
// written by both the server-side poller and the callback handler and read
// by the browser-facing status endpoint.
type PaymentRecord struct {
	CheckoutRequestID string        `json:"checkout_request_id" redis:"checkout_request_id"`
	ReferenceID       string        `json:"reference_id" redis:"reference_id"`
	PhoneNumber       string        `json:"phone_number" redis:"phone_number"`
	Amount            int64         `json:"amount" redis:"amount"`
	Status            PaymentStatus `json:"status" redis:"status"`
	ResultDesc        string        `json:"result_desc" redis:"result_desc"`
	Receipt           string        `json:"receipt" redis:"receipt"`
	UpdatedAt         time.Time     `json:"updated_at" redis:"updated_at"`
}

// StatusResponse is what the browser's polling loop consumes.
type StatusResponse struct {
	CheckoutRequestID string        `json:"checkout_request_id"`
	Status            PaymentStatus `json:"status"`
	Description       string        `json:"description,omitempty"`
	Receipt           string        `json:"receipt,omitempty"`
}
