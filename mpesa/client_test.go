package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpesa-checkout-service/models"
)

func TestTimestamp(t *testing.T) {
	at := time.Date(2026, time.March, 7, 9, 5, 3, 0, time.Local)
	ts := Timestamp(at)

	assert.Equal(t, "20260307090503", ts)
	assert.Regexp(t, regexp.MustCompile(`^\d{14}$`), ts)
}

func TestTimestamp_AlwaysFourteenDigits(t *testing.T) {
	// Single-digit month, day, hour, minute and second must all be
	// zero-padded.
	at := time.Date(2026, time.January, 1, 1, 1, 1, 0, time.Local)
	assert.Equal(t, "20260101010101", Timestamp(at))
}

func TestPassword(t *testing.T) {
	got := Password("174379", "passkey", "20260307090503")
	want := base64.StdEncoding.EncodeToString([]byte("174379passkey20260307090503"))
	assert.Equal(t, want, got)
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/callback/s3cret",
		Timeout:        2 * time.Second,
	})
}

func TestAuthenticate(t *testing.T) {
	t.Run("returns access token", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "key", user)
			assert.Equal(t, "secret", pass)
			assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "expires_in": "3599"})
		})
		client := testClient(t, mux)

		token, err := client.Authenticate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	})

	t.Run("missing access_token is an auth error", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{})
		})
		client := testClient(t, mux)

		_, err := client.Authenticate(context.Background())
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
	})

	t.Run("non-200 is an auth error", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		client := testClient(t, mux)

		_, err := client.Authenticate(context.Background())
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
	})
}

func TestSTKPush(t *testing.T) {
	tokenCalls := 0
	var pushed models.STKPushRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&pushed))
		json.NewEncoder(w).Encode(models.STKPushResponse{
			CheckoutRequestID: "ws_CO_123",
			ResponseCode:      "0",
		})
	})
	client := testClient(t, mux)
	client.now = func() time.Time {
		return time.Date(2026, time.March, 7, 9, 5, 3, 0, time.Local)
	}

	resp, err := client.STKPush(context.Background(), "254712345678", 150, "0712345678")
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_123", resp.CheckoutRequestID)
	assert.Equal(t, 1, tokenCalls, "push acquires exactly one fresh token")

	assert.Equal(t, "174379", pushed.BusinessShortCode)
	assert.Equal(t, "20260307090503", pushed.Timestamp)
	assert.Equal(t, Password("174379", "passkey", "20260307090503"), pushed.Password)
	assert.Equal(t, "CustomerPayBillOnline", pushed.TransactionType)
	assert.Equal(t, int64(150), pushed.Amount)
	assert.Equal(t, "254712345678", pushed.PartyA)
	assert.Equal(t, "174379", pushed.PartyB)
	assert.Equal(t, "254712345678", pushed.PhoneNumber)
	assert.Equal(t, "https://example.com/callback/s3cret", pushed.CallBackURL)
	assert.Equal(t, "0712345678", pushed.AccountReference)
}

func TestSTKQuery(t *testing.T) {
	t.Run("acquires a fresh token per query", func(t *testing.T) {
		tokenCalls := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
			tokenCalls++
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
		})
		mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
			var q models.STKQueryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
			assert.Equal(t, "ws_CO_123", q.CheckoutRequestID)
			json.NewEncoder(w).Encode(models.STKQueryResponse{ResultCode: "0", ResultDesc: "Success"})
		})
		client := testClient(t, mux)

		for i := 0; i < 3; i++ {
			resp, err := client.STKQuery(context.Background(), "ws_CO_123")
			require.NoError(t, err)
			assert.Equal(t, "0", resp.ResultCode)
		}
		assert.Equal(t, 3, tokenCalls)
	})

	t.Run("structured rejection surfaces the gateway code", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1"})
		})
		mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{
				"errorCode":    "500.001.1001",
				"errorMessage": "The transaction is being processed",
			})
		})
		client := testClient(t, mux)

		_, err := client.STKQuery(context.Background(), "ws_CO_123")
		var gwErr *GatewayError
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, "500.001.1001", gwErr.Code)
		assert.Equal(t, "The transaction is being processed", gwErr.Message)
	})
}
