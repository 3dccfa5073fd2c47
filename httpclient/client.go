package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/equiptrack-client/events"
	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Authenticator supplies bearer tokens and refreshes them after a 401.
type Authenticator interface {
	AccessToken() string

	// ForceRefresh returns a fresh access token. staleToken is the token the failed request
	// carried, so implementations can skip the refresh when it has already been replaced.
	ForceRefresh(ctx context.Context, staleToken string) (string, error)
}

// RequestInterceptor receives a copy of the outgoing request and returns the request to send.
// A returned error aborts the call.
type RequestInterceptor func(ctx context.Context, req Request) (Request, error)

// ResponseInterceptor receives a successful response and returns the one handed to the caller.
type ResponseInterceptor func(ctx context.Context, resp Response) (Response, error)

// RequestEvent is the payload of the request:start and request:end events.
type RequestEvent struct {
	ID       string
	Method   string
	URL      string
	Status   int
	Duration time.Duration
	Retried  bool
	Err      error
}

// PendingRequest describes an in-flight call.
type PendingRequest struct {
	ID        string
	Method    string
	URL       string
	StartTime time.Time
	Retried   bool
}

type registered[T any] struct {
	id int
	fn T
}

type inflight struct {
	info   PendingRequest
	cancel context.CancelCauseFunc
}

// Client is the single chokepoint for calls to the EquipTrack API.
type Client struct {
	cfg   Config
	http  *http.Client
	bus   *events.Bus
	log   zerolog.Logger
	newID func() string

	mu                   sync.RWMutex
	headers              http.Header
	auth                 Authenticator
	nextInterceptorID    int
	requestInterceptors  []registered[RequestInterceptor]
	responseInterceptors []registered[ResponseInterceptor]

	pendingMu sync.Mutex
	pending   map[string]*inflight
}

// New creates a client. Zero Timeout or RetryDelay take the package defaults; MaxRetries is
// used as given.
func New(cfg Config, options ...Option) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:   cfg,
		http:  &http.Client{},
		log:   log.Logger,
		newID: uuid.NewString,
		headers: http.Header{
			"Content-Type":     {"application/json"},
			"Accept":           {"application/json"},
			"X-Requested-With": {"XMLHttpRequest"},
		},
		pending: map[string]*inflight{},
	}
	for _, opt := range options {
		opt(c)
	}
	if c.bus == nil {
		c.bus = events.New(events.WithLogger(c.log))
	}
	return c
}

// Bus returns the bus the client emits on.
func (c *Client) Bus() *events.Bus {
	return c.bus
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// SetAuthenticator installs the token provider used for bearer attachment and 401 recovery.
func (c *Client) SetAuthenticator(a Authenticator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = a
}

// SetHeader sets a default header sent with every request.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Set(key, value)
}

func (c *Client) RemoveHeader(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Del(key)
}

// AddRequestInterceptor registers fn after the existing request interceptors. The returned
// function removes it.
func (c *Client) AddRequestInterceptor(fn RequestInterceptor) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextInterceptorID++
	id := c.nextInterceptorID
	c.requestInterceptors = append(c.requestInterceptors, registered[RequestInterceptor]{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.requestInterceptors = slices.DeleteFunc(c.requestInterceptors, func(r registered[RequestInterceptor]) bool {
			return r.id == id
		})
	}
}

// AddResponseInterceptor registers fn after the existing response interceptors. The returned
// function removes it.
func (c *Client) AddResponseInterceptor(fn ResponseInterceptor) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextInterceptorID++
	id := c.nextInterceptorID
	c.responseInterceptors = append(c.responseInterceptors, registered[ResponseInterceptor]{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.responseInterceptors = slices.DeleteFunc(c.responseInterceptors, func(r registered[ResponseInterceptor]) bool {
			return r.id == id
		})
	}
}

func (c *Client) Get(ctx context.Context, url string, options ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, options...)
}

func (c *Client) Post(ctx context.Context, url string, body any, options ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, url, body, options...)
}

func (c *Client) Put(ctx context.Context, url string, body any, options ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPut, url, body, options...)
}

func (c *Client) Patch(ctx context.Context, url string, body any, options ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, url, body, options...)
}

func (c *Client) Delete(ctx context.Context, url string, options ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, url, nil, options...)
}

// Do performs a call. Relative urls are resolved against the base URL. Cancelling ctx, or
// calling Cancel with the request id, fails the call with ErrCancelled and stops retries.
func (c *Client) Do(ctx context.Context, method, url string, body any, options ...RequestOption) (*Response, error) {
	req, err := c.newRequest(method, url, body, options)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	entry := c.track(req, cancel)
	defer c.untrack(entry)

	c.log.Debug().Str("request_id", req.ID).Str("method", req.Method).Str("url", req.URL).Msg("request started")
	c.bus.Emit(events.RequestStart, RequestEvent{ID: req.ID, Method: req.Method, URL: req.URL})

	resp, err := c.execute(ctx, req)

	end := RequestEvent{
		ID:       req.ID,
		Method:   req.Method,
		URL:      req.URL,
		Duration: time.Since(req.StartTime),
		Retried:  c.retried(entry),
		Err:      err,
	}
	var he *HTTPError
	switch {
	case resp != nil:
		end.Status = resp.Status
	case apperrors.As(err, &he):
		end.Status = he.Status
	}
	c.log.Debug().Str("request_id", req.ID).Int("status", end.Status).Dur("duration", end.Duration).Err(err).Msg("request finished")
	c.bus.Emit(events.RequestEnd, end)

	return resp, err
}

// Cancel aborts an in-flight request. It reports whether the id was pending.
func (c *Client) Cancel(id string) bool {
	c.pendingMu.Lock()
	entry, ok := c.pending[id]
	c.pendingMu.Unlock()
	if ok {
		entry.cancel(apperrors.ErrCancelled)
	}
	return ok
}

// Pending lists the in-flight requests ordered by start time.
func (c *Client) Pending() []PendingRequest {
	c.pendingMu.Lock()
	out := make([]PendingRequest, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p.info)
	}
	c.pendingMu.Unlock()
	slices.SortFunc(out, func(a, b PendingRequest) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return out
}

func (c *Client) track(req Request, cancel context.CancelCauseFunc) *inflight {
	entry := &inflight{
		info:   PendingRequest{ID: req.ID, Method: req.Method, URL: req.URL, StartTime: req.StartTime},
		cancel: cancel,
	}
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pending[req.ID] = entry
	return entry
}

func (c *Client) untrack(entry *inflight) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.pending[entry.info.ID] == entry {
		delete(c.pending, entry.info.ID)
	}
}

func (c *Client) markRetried(entry *inflight) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	entry.info.Retried = true
}

func (c *Client) retried(entry *inflight) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return entry.info.Retried
}

func (c *Client) newRequest(method, url string, body any, options []RequestOption) (Request, error) {
	o := requestOptions{header: http.Header{}, responseType: ResponseJSON}
	for _, opt := range options {
		opt(&o)
	}

	data, contentType, err := encodeBody(body)
	if err != nil {
		return Request{}, fmt.Errorf("[Client.Do] %s %s: encode body: %w", method, url, err)
	}

	c.mu.RLock()
	header := c.headers.Clone()
	auth := c.auth
	c.mu.RUnlock()

	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	for k, v := range o.header {
		header[k] = v
	}
	if auth != nil && header.Get("Authorization") == "" {
		if token := auth.AccessToken(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	req := Request{
		ID:              o.id,
		Method:          strings.ToUpper(method),
		URL:             appendQuery(c.resolve(url), EncodeParams(o.params)),
		Header:          header,
		Body:            data,
		ResponseType:    o.responseType,
		Timeout:         c.cfg.Timeout,
		MaxRetries:      c.cfg.MaxRetries,
		RetryDelay:      c.cfg.RetryDelay,
		SkipAuthRefresh: o.skipAuthRefresh,
		StartTime:       time.Now(),
	}
	if req.ID == "" {
		req.ID = c.newID()
	}
	if o.timeout != nil {
		req.Timeout = *o.timeout
	}
	if o.maxRetries != nil {
		req.MaxRetries = *o.maxRetries
	}
	if o.retryDelay != nil {
		req.RetryDelay = *o.retryDelay
	}
	return req, nil
}

func (c *Client) resolve(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") || c.cfg.BaseURL == "" {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return c.cfg.BaseURL + url
}

func (c *Client) execute(ctx context.Context, req Request) (*Response, error) {
	req, err := c.interceptRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req)
	if err != nil && c.shouldReplay(req, err) {
		resp, err = c.replay(ctx, req, err)
	}
	if err != nil {
		// a failed refresh is announced by the authenticator as session:expired
		if !apperrors.Is(err, apperrors.ErrSessionExpired) {
			c.report(req, err)
		}
		return nil, err
	}
	return c.interceptResponse(ctx, resp)
}

func (c *Client) interceptRequest(ctx context.Context, req Request) (Request, error) {
	c.mu.RLock()
	interceptors := slices.Clone(c.requestInterceptors)
	c.mu.RUnlock()

	for _, ic := range interceptors {
		next, err := ic.fn(ctx, req.Clone())
		if err != nil {
			return Request{}, fmt.Errorf("[Client.Do] %s %s: request interceptor: %w", req.Method, req.URL, err)
		}
		req = next
	}
	return req, nil
}

func (c *Client) interceptResponse(ctx context.Context, resp *Response) (*Response, error) {
	c.mu.RLock()
	interceptors := slices.Clone(c.responseInterceptors)
	c.mu.RUnlock()

	out := *resp
	for _, ic := range interceptors {
		next, err := ic.fn(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("[Client.Do] %s %s: response interceptor: %w", resp.Request.Method, resp.Request.URL, err)
		}
		out = next
	}
	return &out, nil
}

// send runs the transport call with the retry policy: transport failures and timeouts are
// retried, status errors and cancellation are not.
func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := c.roundTrip(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt > req.MaxRetries || !retryable(err) || ctx.Err() != nil {
			return nil, err
		}

		delay := req.RetryDelay * time.Duration(attempt)
		c.log.Warn().Err(err).Str("request_id", req.ID).Int("attempt", attempt).Dur("delay", delay).Msg("retrying request")
		if err := sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("[Client.Do] %s %s: %w", req.Method, req.URL, err)
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if req.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("[Client.Do] %s %s: %w", req.Method, req.URL, err)
	}
	httpReq.Header = req.Header.Clone()

	start := time.Now()
	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, abortError(ctx, attemptCtx, req, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, abortError(ctx, attemptCtx, req, err)
	}

	resp := &Response{
		Status:     res.StatusCode,
		StatusText: http.StatusText(res.StatusCode),
		Header:     res.Header,
		Raw:        raw,
		Request:    req,
		Duration:   time.Since(start),
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		resp.Data = decodeData(raw, ResponseJSON)
		return nil, newStatusError(resp)
	}
	resp.Data = decodeData(raw, req.ResponseType)
	return resp, nil
}

func (c *Client) shouldReplay(req Request, err error) bool {
	var he *HTTPError
	if !apperrors.As(err, &he) || he.Status != http.StatusUnauthorized {
		return false
	}
	return !req.SkipAuthRefresh && !req.Retried && c.authenticator() != nil
}

// replay refreshes the token and sends the request once more. It does not run the request
// interceptors again. When there is no session to refresh the original 401 is returned.
func (c *Client) replay(ctx context.Context, req Request, unauthorized error) (*Response, error) {
	stale := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	c.log.Debug().Str("request_id", req.ID).Msg("401 received, refreshing token")

	token, err := c.authenticator().ForceRefresh(ctx, stale)
	if err != nil {
		if ctx.Err() != nil {
			return nil, contextError(ctx, fmt.Sprintf("[Client.Do] %s %s", req.Method, req.URL))
		}
		if apperrors.Is(err, apperrors.ErrNotAuthenticated) {
			return nil, unauthorized
		}
		if !apperrors.Is(err, apperrors.ErrSessionExpired) {
			err = fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err)
		}
		return nil, fmt.Errorf("[Client.Do] %s %s: %w", req.Method, req.URL, err)
	}

	retry := req.Clone()
	retry.Retried = true
	retry.Header.Set("Authorization", "Bearer "+token)

	c.pendingMu.Lock()
	entry := c.pending[req.ID]
	c.pendingMu.Unlock()
	if entry != nil {
		c.markRetried(entry)
	}
	return c.send(ctx, retry)
}

func (c *Client) authenticator() Authenticator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

// report emits the status policy event for a failed call.
func (c *Client) report(req Request, err error) {
	name, evt, ok := statusEventFor(req, err)
	if !ok {
		return
	}
	c.log.Debug().Str("request_id", req.ID).Str("event", name).Int("status", evt.Status).Msg(evt.Message)
	c.bus.Emit(name, evt)
}

func retryable(err error) bool {
	return apperrors.Is(err, apperrors.ErrNetwork) || apperrors.Is(err, apperrors.ErrTimeout)
}

// abortError classifies a transport failure: the caller's context wins, then the attempt
// deadline, then anything else is a network error.
func abortError(parent, attempt context.Context, req Request, err error) error {
	prefix := fmt.Sprintf("[Client.Do] %s %s", req.Method, req.URL)
	if parent.Err() != nil {
		return contextError(parent, prefix)
	}
	var ne net.Error
	if attempt.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%s: %w after %s", prefix, apperrors.ErrTimeout, req.Timeout)
	}
	return fmt.Errorf("%s: %w: %w", prefix, apperrors.ErrNetwork, err)
}

func contextError(ctx context.Context, prefix string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", prefix, apperrors.ErrTimeout)
	}
	return fmt.Errorf("%s: %w", prefix, apperrors.ErrCancelled)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return contextError(ctx, "backoff")
	case <-t.C:
		return nil
	}
}
