// Package baseclient talks to the collaborator services: base-service (units,
// households, residents, inspections), notification-service and finance-service.
package baseclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/errs"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
)

// ErrNotFound is returned when a collaborator answers 404.
var ErrNotFound = errors.New("resource not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	serviceBase         = "base-service"
	serviceNotification = "notification-service"
	serviceFinance      = "finance-service"
	serviceAsset        = "asset-service"
)

// Client is a JSON-over-HTTP client for all collaborators.
type Client struct {
	baseURL         string
	notificationURL string
	financeURL      string
	assetURL        string
	http            *http.Client
	timeout         time.Duration
	retries         uint64
	log             *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	cc := cfg.Clients
	timeout := cc.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	assetURL := cc.AssetServiceURL
	if assetURL == "" {
		assetURL = cc.BaseServiceURL
	}
	return &Client{
		baseURL:         strings.TrimRight(cc.BaseServiceURL, "/"),
		notificationURL: strings.TrimRight(cc.NotificationServiceURL, "/"),
		financeURL:      strings.TrimRight(cc.FinanceServiceURL, "/"),
		assetURL:        strings.TrimRight(assetURL, "/"),
		http:            &http.Client{},
		timeout:         timeout,
		retries:         cc.Retries,
		log:             log,
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// IsClientError reports whether a collaborator rejected the request itself.
// Sending the same request again cannot succeed.
func IsClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code >= 400 && se.code < 500
}

// do sends one JSON request and decodes the response into out when out is not nil.
// Transport errors and 5xx responses are retried; 4xx responses are not.
func (c *Client) do(ctx context.Context, service, method, url string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return errs.External(service, method+" "+url, errors.Wrap(err, "encode request"))
		}
	}

	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(callCtx, method, url, body)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "build request"))
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if tid := logctx.TraceID(ctx); tid != "" {
			req.Header.Set("X-Trace-Id", tid)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return errors.Wrap(err, "send request")
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "read response")
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case resp.StatusCode >= 500:
			return &statusError{code: resp.StatusCode, body: truncate(raw)}
		case resp.StatusCode >= 300:
			return backoff.Permanent(&statusError{code: resp.StatusCode, body: truncate(raw)})
		}
		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return backoff.Permanent(errors.Wrap(err, "decode response"))
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), c.retries), ctx)
	err := backoff.Retry(op, bo)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	logctx.FromCtx(ctx, c.log).Warnw("collaborator call failed", "service", service, "method", method, "url", url, "err", err)
	return errs.External(service, method+" "+url, err)
}

func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second
	return bo
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
