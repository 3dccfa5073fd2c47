package httpclient

import (
	"net/http"
	"time"

	"github.com/jrsteele09/equiptrack-client/events"
	"github.com/rs/zerolog"
)

// Defaults used when neither the client config nor the call override them.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 1
	DefaultRetryDelay = time.Second
)

// Config holds the client wide settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns the unified client defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithBus sets the bus lifecycle and status events are emitted on.
func WithBus(bus *events.Bus) Option {
	return func(c *Client) {
		c.bus = bus
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) {
		c.auth = a
	}
}

// WithIDGenerator overrides how request ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(c *Client) {
		c.newID = fn
	}
}

// RequestOption configures a single call
type RequestOption func(*requestOptions)

type requestOptions struct {
	header          http.Header
	params          map[string]any
	responseType    ResponseType
	timeout         *time.Duration
	maxRetries      *int
	retryDelay      *time.Duration
	id              string
	skipAuthRefresh bool
}

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.header.Set(key, value)
	}
}

func WithHeaders(h map[string]string) RequestOption {
	return func(o *requestOptions) {
		for k, v := range h {
			o.header.Set(k, v)
		}
	}
}

// WithParams adds query parameters, see EncodeParams for the format.
func WithParams(params map[string]any) RequestOption {
	return func(o *requestOptions) {
		if o.params == nil {
			o.params = map[string]any{}
		}
		for k, v := range params {
			o.params[k] = v
		}
	}
}

func WithResponseType(rt ResponseType) RequestOption {
	return func(o *requestOptions) {
		o.responseType = rt
	}
}

// WithTimeout bounds each attempt. Zero disables the per-attempt deadline.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.timeout = &d
	}
}

func WithMaxRetries(n int) RequestOption {
	return func(o *requestOptions) {
		if n < 0 {
			n = 0
		}
		o.maxRetries = &n
	}
}

// WithRetryDelay sets the base backoff; attempt n waits n times this delay.
func WithRetryDelay(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.retryDelay = &d
	}
}

// WithRequestID sets the id used for Cancel and in lifecycle events.
func WithRequestID(id string) RequestOption {
	return func(o *requestOptions) {
		o.id = id
	}
}

// WithoutAuthRefresh disables the refresh-and-replay flow on 401. The auth endpoints use it
// so a failing refresh cannot recurse.
func WithoutAuthRefresh() RequestOption {
	return func(o *requestOptions) {
		o.skipAuthRefresh = true
	}
}
