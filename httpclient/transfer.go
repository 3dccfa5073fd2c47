package httpclient

import (
	"context"
	"mime"
	"net/http"
	"path"
	"strings"
)

// Upload posts a multipart form containing the file and the extra fields.
func (c *Client) Upload(ctx context.Context, url string, form *Multipart, options ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, url, form, options...)
}

// Download is a fetched file.
type Download struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Download fetches url as raw bytes. The file name comes from Content-Disposition, then the
// fallback, then the last path segment of the url.
func (c *Client) Download(ctx context.Context, url, fallback string, options ...RequestOption) (*Download, error) {
	options = append(options, WithResponseType(ResponseBlob), WithHeader("Accept", "*/*"))
	resp, err := c.Get(ctx, url, options...)
	if err != nil {
		return nil, err
	}

	name := fallback
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	} else if name == "" {
		name = path.Base(strings.SplitN(resp.Request.URL, "?", 2)[0])
	}
	return &Download{
		FileName:    name,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        resp.Raw,
	}, nil
}
