package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/earnbot/pkg/logger"
	"github.com/betbot/earnbot/pkg/ratelimit"
)

const (
	// DefaultHost is the production REST host.
	DefaultHost = "https://api.bitget.com"
	// DefaultRateLimit is the documented per-key request budget.
	DefaultRateLimit = 10
	// DefaultTimeout bounds every single HTTP call. A request must never
	// hang indefinitely.
	DefaultTimeout = 10 * time.Second

	successCode   = "00000"
	defaultLocale = "en-US"
)

// Executor issues one authenticated call and returns the unwrapped data
// payload. Implemented by Client; capability packages depend on this
// interface so tests can substitute a fake.
type Executor interface {
	Execute(ctx context.Context, method, path string, params map[string]string, body any) (json.RawMessage, error)
}

// Options configures a Client.
type Options struct {
	Host        string // default DefaultHost
	Credentials Credentials
	Timeout     time.Duration // default DefaultTimeout
	RateLimit   int           // requests per second, default DefaultRateLimit
	Locale      string        // default en-US
}

// Client is the authenticated, rate-limited request core. All capability
// packages (earn, spot, mix) share one Client so they also share its rate
// limit window.
type Client struct {
	http    *resty.Client
	signer  *Signer
	creds   Credentials
	limiter ratelimit.RateLimiter
	locale  string
	log     *logrus.Entry

	// now is a hook for tests; production uses time.Now.
	now func() time.Time
}

// NewClient creates a request core for the given credentials.
func NewClient(opts Options) *Client {
	host := strings.TrimSuffix(opts.Host, "/")
	if host == "" {
		host = DefaultHost
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	locale := opts.Locale
	if locale == "" {
		locale = defaultLocale
	}

	// Retries stay out of this layer: repeating a place-order call creates
	// a new order unless the caller supplies a stable clientOid, so retry
	// policy belongs to callers.
	rc := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout)

	return &Client{
		http:    rc,
		signer:  NewSigner(opts.Credentials.APISecret),
		creds:   opts.Credentials,
		limiter: ratelimit.NewSlidingWindow(limit, time.Second),
		locale:  locale,
		log:     logger.WithField("component", "bitget"),
		now:     time.Now,
	}
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Execute builds, signs and sends one request, classifying the response.
//
// Every call consumes one rate-limit slot and one wall-clock timestamp.
// On success the `data` payload is returned unwrapped; failures map to
// TransportError, HTTPError or APIError.
func (c *Client) Execute(ctx context.Context, method, path string, params map[string]string, body any) (json.RawMessage, error) {
	// A bad method is a caller bug, not a transport failure; reject it
	// before consuming a rate-limit slot.
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPut:
	default:
		return nil, &ValidationError{Op: "request", Reason: "unsupported method " + method}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}

	query := CanonicalQuery(params)
	bodyStr, err := marshalBody(body)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal body for %s %s", method, path)
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	sig := c.signer.Sign(ts, method, path, query, bodyStr)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("ACCESS-KEY", c.creds.APIKey).
		SetHeader("ACCESS-SIGN", sig).
		SetHeader("ACCESS-PASSPHRASE", c.creds.Passphrase).
		SetHeader("ACCESS-TIMESTAMP", ts).
		SetHeader("Content-Type", "application/json").
		SetHeader("locale", c.locale)
	if bodyStr != "" {
		req.SetBody(bodyStr)
	}

	endpoint := path + query
	c.log.Debugf("%s %s", method, endpoint)

	resp, err := send(req, method, endpoint)
	if err != nil {
		return nil, &TransportError{Method: method, Endpoint: endpoint, Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &HTTPError{
			Method:   method,
			Endpoint: endpoint,
			Status:   resp.StatusCode(),
			Body:     strings.TrimSpace(string(resp.Body())),
		}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, errors.Wrapf(err, "decode response for %s %s", method, endpoint)
	}
	if env.Code != successCode {
		return nil, &APIError{
			Method:   method,
			Endpoint: endpoint,
			Code:     env.Code,
			Message:  env.Msg,
		}
	}
	return env.Data, nil
}

func send(req *resty.Request, method, endpoint string) (*resty.Response, error) {
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return req.Get(endpoint)
	case http.MethodPost:
		return req.Post(endpoint)
	case http.MethodDelete:
		return req.Delete(endpoint)
	case http.MethodPut:
		return req.Put(endpoint)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

// marshalBody serializes the body as compact JSON, or the empty string when
// there is none. The serialized form is both signed and sent.
func marshalBody(body any) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case string:
		return b, nil
	case []byte:
		return string(b), nil
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}
