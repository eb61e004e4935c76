// Package zarinpal is a client for the Zarinpal v4 payment gateway.
package zarinpal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	requestPath  = "/pg/v4/payment/request.json"
	verifyPath   = "/pg/v4/payment/verify.json"
	startPayPath = "/pg/StartPay/"

	CodeSuccess         = 100
	CodeAlreadyVerified = 101
)

// ErrTransport marks failures to reach the gateway or to read its answer.
var ErrTransport = errors.New("zarinpal: gateway unreachable")

// GatewayError is an error reported by the gateway in its "errors" object.
type GatewayError struct {
	Code    int
	Message string
	Details json.RawMessage
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("zarinpal: code %d: %s", e.Code, e.Message)
}

type Client struct {
	merchantID string
	baseURL    string
	httpClient *http.Client
}

func NewClient(merchantID, baseURL string, timeout time.Duration) *Client {
	return &Client{
		merchantID: merchantID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type PaymentRequest struct {
	// Amount in rials.
	Amount      int64
	Description string
	CallbackURL string
	Email       string
	Mobile      string
}

type metadata struct {
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

type requestBody struct {
	MerchantID  string    `json:"merchant_id"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	CallbackURL string    `json:"callback_url"`
	Metadata    *metadata `json:"metadata,omitempty"`
}

type verifyBody struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

// envelope is the common response shape. Both fields switch between an
// object and an empty array depending on the outcome.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type errorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RefID accepts both numeric and string reference ids.
type RefID string

func (r *RefID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = RefID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("ref_id: %w", err)
	}
	*r = RefID(n.String())
	return nil
}

type VerifyResult struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	RefID    RefID  `json:"ref_id"`
	CardPan  string `json:"card_pan"`
	CardHash string `json:"card_hash"`
	// Rejected is set when the gateway answered with a non-empty errors object.
	Rejected bool `json:"-"`
}

// Successful reports a settled payment: code 100 or 101 with a reference id.
func (r *VerifyResult) Successful() bool {
	if r.Rejected || r.RefID == "" {
		return false
	}
	return r.Code == CodeSuccess || r.Code == CodeAlreadyVerified
}

// RequestPayment registers a payment and returns its authority.
func (c *Client) RequestPayment(ctx context.Context, req PaymentRequest) (string, error) {
	body := requestBody{
		MerchantID:  c.merchantID,
		Amount:      req.Amount,
		Description: req.Description,
		CallbackURL: req.CallbackURL,
	}
	if req.Email != "" || req.Mobile != "" {
		body.Metadata = &metadata{Email: req.Email, Mobile: req.Mobile}
	}

	env, err := c.post(ctx, requestPath, body)
	if err != nil {
		return "", err
	}
	if gwErr := parseErrors(env.Errors); gwErr != nil {
		return "", gwErr
	}

	var data struct {
		Code      int    `json:"code"`
		Message   string `json:"message"`
		Authority string `json:"authority"`
	}
	if isObject(env.Data) {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", fmt.Errorf("%w: decode data: %v", ErrTransport, err)
		}
	}
	if data.Authority == "" {
		return "", &GatewayError{Code: data.Code, Message: "no authority returned", Details: env.Data}
	}
	return data.Authority, nil
}

// Verify settles a payment. Only transport failures are returned as errors;
// gateway rejections come back as an unsuccessful result.
func (c *Client) Verify(ctx context.Context, amount int64, authority string) (*VerifyResult, error) {
	env, err := c.post(ctx, verifyPath, verifyBody{MerchantID: c.merchantID, Amount: amount, Authority: authority})
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{}
	if isObject(env.Data) {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return nil, fmt.Errorf("%w: decode data: %v", ErrTransport, err)
		}
	}
	if gwErr := parseErrors(env.Errors); gwErr != nil {
		result.Rejected = true
		result.Code = gwErr.Code
		result.Message = gwErr.Message
	}
	return result, nil
}

func (c *Client) StartPayURL(authority string) string {
	return c.baseURL + startPayPath + authority
}

func (c *Client) post(ctx context.Context, path string, payload any) (*envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: status %d: %v", ErrTransport, resp.StatusCode, err)
	}
	return &env, nil
}

// parseErrors reads the "errors" field, which may be an object or a list of
// objects. An empty object or list means no error.
func parseErrors(raw json.RawMessage) *GatewayError {
	var p errorPayload
	switch {
	case isObject(raw):
		if err := json.Unmarshal(raw, &p); err != nil {
			return &GatewayError{Message: "unreadable gateway error", Details: raw}
		}
	case isArray(raw):
		var list []errorPayload
		if err := json.Unmarshal(raw, &list); err != nil {
			return &GatewayError{Message: "unreadable gateway error", Details: raw}
		}
		if len(list) == 0 {
			return nil
		}
		p = list[0]
		if p.Code == 0 && p.Message == "" {
			return &GatewayError{Message: "gateway returned errors", Details: raw}
		}
	default:
		return nil
	}
	if p.Code == 0 && p.Message == "" {
		return nil
	}
	return &GatewayError{Code: p.Code, Message: p.Message, Details: raw}
}

func isObject(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) > 2 && s[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) > 2 && s[0] == '['
}
