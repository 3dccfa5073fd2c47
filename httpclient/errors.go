package httpclient

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/equiptrack-client/internal/utils"
)

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Status  int
	Data    any
	Body    []byte
	Header  http.Header
	Request Request
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: request failed with status code %d", e.Request.Method, e.Request.URL, e.Status)
}

// Message returns the server supplied message, falling back to the status policy's.
func (e *HTTPError) Message() string {
	if m, ok := e.Data.(map[string]any); ok {
		if s, ok := m["message"].(string); ok && s != "" {
			return s
		}
		if s, ok := m["error"].(string); ok && s != "" {
			return s
		}
	}
	return PolicyFor(e.Status).Message
}

// ValidationError is a 422 response. FieldErrors may be empty when the server only sent a
// message.
type ValidationError struct {
	*HTTPError
	FieldErrors map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (%d field errors)", e.HTTPError.Error(), len(e.FieldErrors))
}

func (e *ValidationError) Unwrap() error {
	return e.HTTPError
}

// Fields returns the names of the invalid fields in sorted order.
func (e *ValidationError) Fields() []string {
	return sortedKeys(e.FieldErrors)
}

func newStatusError(resp *Response) error {
	he := &HTTPError{
		Status:  resp.Status,
		Data:    resp.Data,
		Body:    resp.Raw,
		Header:  resp.Header,
		Request: resp.Request,
	}
	if resp.Status != http.StatusUnprocessableEntity {
		return he
	}
	return &ValidationError{HTTPError: he, FieldErrors: fieldErrors(resp.Data)}
}

// fieldErrors accepts {"errors": {"field": "msg" | ["msg", ...]}}.
func fieldErrors(data any) map[string][]string {
	out := map[string][]string{}
	m, ok := data.(map[string]any)
	if !ok {
		return out
	}
	errs, ok := m["errors"].(map[string]any)
	if !ok {
		return out
	}
	for field, raw := range errs {
		switch v := raw.(type) {
		case string:
			out[field] = []string{v}
		case []any:
			out[field] = utils.ToStringSlice(v)
		}
	}
	return out
}
