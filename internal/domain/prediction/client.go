package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single prediction call.
const DefaultTimeout = 10 * time.Second

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.httpClient.Timeout = d }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// Client posts prediction requests to an external model server. It makes one
// attempt per call and never retries.
type Client struct {
	url        string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Predict sends req and decodes the prediction. The response may be flat or
// nested under a "response" object.
func (c *Client) Predict(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug().Err(err).Str("url", c.url).Dur("latency", time.Since(start)).Msg("prediction request failed")
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	c.logger.Debug().Int("status", resp.StatusCode).Dur("latency", time.Since(start)).Msg("prediction response")

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp.StatusCode, body)
	}
	return decodeResult(body)
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case isConnectionError(err):
		return fmt.Errorf("%w: %v", ErrConnection, err)
	default:
		return fmt.Errorf("%w: %v", ErrRequest, err)
	}
}

func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func newStatusError(code int, body []byte) *StatusError {
	se := &StatusError{Code: code, Body: string(body)}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return se
	}
	raw, ok := obj["detail"]
	if !ok {
		return se
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		se.Detail = s
	} else {
		se.Detail = string(raw)
	}
	return se
}

func decodeResult(body []byte) (*Result, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrMalformedResponse)
	}
	if nested, ok := obj["response"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil && inner != nil {
			obj = inner
		}
	}

	res := &Result{Category: "Unknown", Probabilities: map[string]float64{}}
	if raw, ok := obj["predicted_category"]; ok {
		if err := json.Unmarshal(raw, &res.Category); err != nil {
			return nil, fmt.Errorf("%w: predicted_category: %v", ErrMalformedResponse, err)
		}
	}
	if raw, ok := obj["confidence"]; ok {
		if err := json.Unmarshal(raw, &res.Confidence); err != nil {
			return nil, fmt.Errorf("%w: confidence: %v", ErrMalformedResponse, err)
		}
	}
	if raw, ok := obj["class_probabilities"]; ok {
		if err := json.Unmarshal(raw, &res.Probabilities); err != nil {
			return nil, fmt.Errorf("%w: class_probabilities: %v", ErrMalformedResponse, err)
		}
	}
	return res, nil
}
