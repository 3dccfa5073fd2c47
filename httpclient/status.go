package httpclient

import (
	"net/http"

	"github.com/jrsteele09/equiptrack-client/events"
	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
)

// Category groups failures for user facing messages.
type Category string

const (
	CategoryNetwork     Category = "network"
	CategoryValidation  Category = "validation"
	CategoryAuth        Category = "auth"
	CategoryForbidden   Category = "forbidden"
	CategoryNotFound    Category = "not-found"
	CategoryRateLimited Category = "rate-limited"
	CategoryServer      Category = "server"
	CategoryUnknown     Category = "unknown"
)

// StatusPolicy is the reaction to a failed status code.
type StatusPolicy struct {
	Event    string
	Category Category
	Message  string
}

var statusPolicies = map[int]StatusPolicy{
	http.StatusBadRequest:          {events.APIValidationError, CategoryValidation, "The request was invalid."},
	http.StatusUnauthorized:        {events.AuthRequired, CategoryAuth, "Your session has expired. Please log in again."},
	http.StatusForbidden:           {events.Forbidden, CategoryForbidden, "You do not have permission to perform this action."},
	http.StatusNotFound:            {events.ResourceNotFound, CategoryNotFound, "The requested resource was not found."},
	http.StatusUnprocessableEntity: {events.APIValidationError, CategoryValidation, "Please correct the highlighted fields."},
	http.StatusTooManyRequests:     {events.RateLimitExceeded, CategoryRateLimited, "Too many requests. Please try again later."},
	http.StatusInternalServerError: {events.ServerError, CategoryServer, "A server error occurred. Please try again later."},
	http.StatusServiceUnavailable:  {events.ServiceUnavailable, CategoryServer, "The service is temporarily unavailable."},
}

var (
	otherServerPolicy = StatusPolicy{events.APIRequestError, CategoryServer, "A server error occurred. Please try again later."}
	otherPolicy       = StatusPolicy{events.APIRequestError, CategoryUnknown, "An unexpected error occurred."}
	networkPolicy     = StatusPolicy{events.APIRequestError, CategoryNetwork, "Unable to reach the server. Check your connection."}
)

// PolicyFor returns the policy for a status code.
func PolicyFor(status int) StatusPolicy {
	if p, ok := statusPolicies[status]; ok {
		return p
	}
	if status >= 500 {
		return otherServerPolicy
	}
	return otherPolicy
}

// CategoryOf maps any error returned by the client to exactly one category.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	var he *HTTPError
	if apperrors.As(err, &he) {
		return PolicyFor(he.Status).Category
	}
	switch {
	case apperrors.Is(err, apperrors.ErrNetwork),
		apperrors.Is(err, apperrors.ErrTimeout),
		apperrors.Is(err, apperrors.ErrCancelled):
		return CategoryNetwork
	case apperrors.Is(err, apperrors.ErrSessionExpired),
		apperrors.Is(err, apperrors.ErrInvalidCredentials),
		apperrors.Is(err, apperrors.ErrNotAuthenticated),
		apperrors.Is(err, apperrors.ErrNoRefreshToken):
		return CategoryAuth
	}
	return CategoryUnknown
}

// StatusEvent is the payload of the status policy events.
type StatusEvent struct {
	RequestID   string
	Method      string
	URL         string
	Status      int
	Category    Category
	Message     string
	RetryAfter  string
	FieldErrors map[string][]string
	Err         error
}

func statusEventFor(req Request, err error) (string, StatusEvent, bool) {
	evt := StatusEvent{RequestID: req.ID, Method: req.Method, URL: req.URL, Err: err}

	var he *HTTPError
	if apperrors.As(err, &he) {
		p := PolicyFor(he.Status)
		evt.Status = he.Status
		evt.Category = p.Category
		evt.Message = he.Message()
		evt.RetryAfter = he.Header.Get("Retry-After")
		var ve *ValidationError
		if apperrors.As(err, &ve) {
			evt.FieldErrors = ve.FieldErrors
		}
		return p.Event, evt, true
	}

	if apperrors.Is(err, apperrors.ErrNetwork) || apperrors.Is(err, apperrors.ErrTimeout) {
		evt.Category = networkPolicy.Category
		evt.Message = networkPolicy.Message
		return networkPolicy.Event, evt, true
	}
	return "", evt, false
}
