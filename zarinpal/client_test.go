package zarinpal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("merchant-1", srv.URL+"/", time.Second)
}

func TestRequestPayment(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, requestPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"code":100,"message":"Success","authority":"A0000000000000000000000000000123"},"errors":[]}`))
	})

	authority, err := c.RequestPayment(context.Background(), PaymentRequest{
		Amount:      90000,
		Description: "Go course",
		CallbackURL: "http://site/verify",
		Email:       "a@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "A0000000000000000000000000000123", authority)

	assert.Equal(t, "merchant-1", got["merchant_id"])
	assert.EqualValues(t, 90000, got["amount"])
	assert.Equal(t, map[string]any{"email": "a@example.com"}, got["metadata"])
}

func TestRequestPaymentGatewayError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"data":[],"errors":{"code":-9,"message":"The input params invalid, validation error.","validations":[]}}`))
	})

	_, err := c.RequestPayment(context.Background(), PaymentRequest{Amount: 1})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, -9, gwErr.Code)
	assert.Contains(t, string(gwErr.Details), "validations")
}

func TestRequestPaymentErrorList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[],"errors":[{"code":-9,"message":"The input params invalid"}]}`))
	})

	_, err := c.RequestPayment(context.Background(), PaymentRequest{Amount: 1})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, -9, gwErr.Code)
	assert.Equal(t, "The input params invalid", gwErr.Message)
	assert.JSONEq(t, `[{"code":-9,"message":"The input params invalid"}]`, string(gwErr.Details))
}

func TestVerifyErrorListIsRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[],"errors":[{"code":-54,"message":"Invalid authority"}]}`))
	})

	res, err := c.Verify(context.Background(), 1000, "A1")
	require.NoError(t, err)
	assert.True(t, res.Rejected)
	assert.Equal(t, -54, res.Code)
	assert.Equal(t, "Invalid authority", res.Message)
}

func TestRequestPaymentTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := c.RequestPayment(context.Background(), PaymentRequest{Amount: 1})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		successful bool
		refID      RefID
		code       int
	}{
		{"numeric ref id", `{"data":{"code":100,"message":"Verified","ref_id":201,"card_pan":"502229******5995","card_hash":"1EBE"},"errors":[]}`, true, "201", 100},
		{"string ref id already verified", `{"data":{"code":101,"message":"Verified","ref_id":"REF123"},"errors":[]}`, true, "REF123", 101},
		{"success without ref id", `{"data":{"code":100,"message":"Verified"},"errors":[]}`, false, "", 100},
		{"gateway errors", `{"data":[],"errors":{"code":-51,"message":"Session is not valid"}}`, false, "", -51},
		{"other code", `{"data":{"code":-50,"message":"amount mismatch"},"errors":{}}`, false, "", -50},
		{"errors list", `{"data":[],"errors":[{"code":-9,"message":"The input params invalid"}]}`, false, "", -9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, verifyPath, r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := c.Verify(context.Background(), 1000, "A1")
			require.NoError(t, err)
			assert.Equal(t, tt.successful, res.Successful())
			assert.Equal(t, tt.refID, res.RefID)
			assert.Equal(t, tt.code, res.Code)
		})
	}
}

func TestVerifyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	c := NewClient("m", srv.URL, 20*time.Millisecond)
	_, err := c.Verify(context.Background(), 1, "A1")
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestStartPayURL(t *testing.T) {
	c := NewClient("m", "https://sandbox.zarinpal.com/", time.Second)
	assert.Equal(t, "https://sandbox.zarinpal.com/pg/StartPay/A1", c.StartPayURL("A1"))
}
