// Package vnpay builds signed VNPay payment URLs and verifies return callbacks.
package vnpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/types"
)

const (
	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"
	paramTxnRef         = "vnp_TxnRef"
	paramResponseCode   = "vnp_ResponseCode"
	paramTxnStatus      = "vnp_TransactionStatus"
	paramAmount         = "vnp_Amount"
	createDateLayout    = "20060102150405"
	defaultClientIP     = "127.0.0.1"
)

// gatewayZone is the time zone VNPay expects vnp_CreateDate in.
var gatewayZone = time.FixedZone("ICT", 7*3600)

type PaymentRequest struct {
	OrderID     string
	Description string
	// Amount is in VND. The gateway receives it multiplied by 100.
	Amount    decimal.Decimal
	ClientIP  string
	ReturnURL string
	CreatedAt time.Time
}

type PaymentURL struct {
	URL    string `json:"url"`
	TxnRef string `json:"txn_ref"`
}

// Callback is the verified content of a return or IPN request.
type Callback struct {
	TxnRef            string          `json:"txn_ref"`
	ResponseCode      string          `json:"response_code"`
	TransactionStatus string          `json:"transaction_status"`
	Amount            decimal.Decimal `json:"amount"`
	Params            map[string]string
}

// Succeeded reports whether the gateway confirmed the payment.
func (c *Callback) Succeeded() bool {
	if c.ResponseCode != types.PaymentResponseCodeSuccess {
		return false
	}
	return c.TransactionStatus == "" || c.TransactionStatus == types.PaymentTransactionStatusSuccess
}

type Client struct {
	cfg config.VNPayConfig
}

func NewClient(cfg *config.Config) *Client {
	return &Client{cfg: cfg.Payment.VNPay}
}

func (c *Client) CreatePaymentURL(_ context.Context, req *PaymentRequest) (*PaymentURL, error) {
	if c.cfg.TmnCode == "" || c.cfg.HashSecret == "" {
		return nil, fmt.Errorf("vnpay: tmn_code and hash_secret must be configured")
	}
	if req.OrderID == "" {
		return nil, fmt.Errorf("vnpay: order id is required")
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("vnpay: amount must be positive, got %s", req.Amount)
	}
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = c.cfg.ReturnURL
	}
	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = defaultClientIP
	}
	locale := c.cfg.Locale
	if locale == "" {
		locale = "vn"
	}

	txnRef := fmt.Sprintf("%s_%d", req.OrderID, createdAt.UnixMilli())
	params := map[string]string{
		"vnp_Version":    c.cfg.Version,
		"vnp_Command":    "pay",
		"vnp_TmnCode":    c.cfg.TmnCode,
		paramAmount:      req.Amount.Mul(decimal.NewFromInt(100)).Truncate(0).String(),
		"vnp_CurrCode":   "VND",
		paramTxnRef:      txnRef,
		"vnp_OrderInfo":  req.Description,
		"vnp_OrderType":  "other",
		"vnp_Locale":     locale,
		"vnp_ReturnUrl":  returnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": createdAt.In(gatewayZone).Format(createDateLayout),
	}
	query := encode(params)
	signature := Sign(c.cfg.HashSecret, query)
	return &PaymentURL{
		URL:    c.cfg.PayURL + "?" + query + "&" + paramSecureHash + "=" + signature,
		TxnRef: txnRef,
	}, nil
}

// VerifyCallback checks the signature of the gateway parameters and extracts the result.
// It does not judge whether the payment succeeded; see Callback.Succeeded.
func (c *Client) VerifyCallback(params map[string]string) (*Callback, error) {
	received := params[paramSecureHash]
	if received == "" {
		return nil, fmt.Errorf("vnpay: missing %s", paramSecureHash)
	}
	signed := make(map[string]string, len(params))
	for k, v := range params {
		if k == paramSecureHash || k == paramSecureHashType || v == "" {
			continue
		}
		signed[k] = v
	}
	expected := Sign(c.cfg.HashSecret, encode(signed))
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return nil, fmt.Errorf("vnpay: invalid signature")
	}
	cb := &Callback{
		TxnRef:            params[paramTxnRef],
		ResponseCode:      params[paramResponseCode],
		TransactionStatus: params[paramTxnStatus],
		Params:            params,
	}
	if raw := params[paramAmount]; raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errs.Validation(paramAmount, "amount %q is not a number", raw)
		}
		cb.Amount = amount.Div(decimal.NewFromInt(100))
	}
	if cb.TxnRef == "" {
		return nil, fmt.Errorf("vnpay: missing %s", paramTxnRef)
	}
	return cb, nil
}

// Sign returns the lowercase hex HMAC-SHA512 of data.
func Sign(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// encode joins key=value pairs sorted by key, with values query-escaped.
func encode(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	return strings.Join(parts, "&")
}
