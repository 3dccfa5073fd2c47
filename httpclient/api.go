package httpclient

import "context"

// API is the part of Client the resource services depend on.
type API interface {
	Get(ctx context.Context, url string, options ...RequestOption) (*Response, error)
	Post(ctx context.Context, url string, body any, options ...RequestOption) (*Response, error)
	Put(ctx context.Context, url string, body any, options ...RequestOption) (*Response, error)
	Patch(ctx context.Context, url string, body any, options ...RequestOption) (*Response, error)
	Delete(ctx context.Context, url string, options ...RequestOption) (*Response, error)
	Upload(ctx context.Context, url string, form *Multipart, options ...RequestOption) (*Response, error)
	Download(ctx context.Context, url, fallback string, options ...RequestOption) (*Download, error)
}

var _ API = (*Client)(nil)

// Page is the envelope used by paginated list endpoints.
type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

// DecodeAs decodes the body of resp into a new T.
func DecodeAs[T any](resp *Response) (*T, error) {
	var v T
	if err := resp.Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}
