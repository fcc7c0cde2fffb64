package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mpesa-checkout-service/models"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	transactionType = "CustomerPayBillOnline"
)

// Config carries everything the client needs to talk to the Daraja API.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// Client talks to the M-Pesa Daraja gateway. A fresh bearer token is
// acquired for every push and every query; tokens are never cached.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a gateway client with an instrumented HTTP transport.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		now: time.Now,
	}
}

// Timestamp renders t as the gateway's YYYYMMDDHHmmss form: exactly 14
// zero-padded digits, local clock, no separators.
func Timestamp(t time.Time) string {
	return t.Format("20060102150405")
}

// Password derives the time-varying push password for the given timestamp.
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// Authenticate exchanges the static consumer credentials for a short-lived
// bearer token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Err: fmt.Errorf("token endpoint returned status %d", resp.StatusCode)}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", &AuthError{Err: err}
	}
	if tok.AccessToken == "" {
		return "", &AuthError{Err: fmt.Errorf("token endpoint response has no access_token")}
	}
	return tok.AccessToken, nil
}

// STKPush submits a payment prompt to the given (already normalized) phone
// number and returns the gateway's correlation identifier.
func (c *Client) STKPush(ctx context.Context, phone string, amount int64, reference string) (*models.STKPushResponse, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("mpesa.operation", "stk_push"),
		attribute.Int64("mpesa.amount", amount),
	)

	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	ts := Timestamp(c.now())
	body := models.STKPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   transactionType,
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  reference,
		TransactionDesc:   "Payment",
	}

	var out models.STKPushResponse
	if err := c.postJSON(ctx, pushPath, token, body, &out); err != nil {
		return nil, err
	}
	if out.CheckoutRequestID == "" {
		return nil, &GatewayError{Code: out.ResponseCode, Message: out.ResponseDescription}
	}
	span.SetAttributes(attribute.String("mpesa.checkout_request_id", out.CheckoutRequestID))
	return &out, nil
}

// STKQuery asks the gateway for the outcome of a push attempt. A fresh
// token is acquired per call, matching the push path.
func (c *Client) STKQuery(ctx context.Context, checkoutRequestID string) (*models.STKQueryResponse, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("mpesa.operation", "stk_query"),
		attribute.String("mpesa.checkout_request_id", checkoutRequestID),
	)

	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	ts := Timestamp(c.now())
	body := models.STKQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var out models.STKQueryResponse
	if err := c.postJSON(ctx, queryPath, token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// postJSON issues a bearer-authenticated POST and decodes the response.
// Structured gateway rejections come back as *GatewayError so callers can
// classify them by code.
func (c *Client) postJSON(ctx context.Context, path, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var gwErr struct {
			ErrorCode    string `json:"errorCode"`
			ErrorMessage string `json:"errorMessage"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&gwErr); decodeErr == nil && gwErr.ErrorCode != "" {
			return &GatewayError{Code: gwErr.ErrorCode, Message: gwErr.ErrorMessage}
		}
		return &GatewayError{Message: fmt.Sprintf("gateway returned status %d", resp.StatusCode)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
