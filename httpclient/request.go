package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// ResponseType controls how a response body is exposed in Response.Data.
type ResponseType string

const (
	ResponseJSON        ResponseType = "json"
	ResponseText        ResponseType = "text"
	ResponseBlob        ResponseType = "blob"
	ResponseArrayBuffer ResponseType = "arraybuffer"
)

// Request is the outgoing call as seen by interceptors. Interceptors receive a copy and
// return the request to use from then on.
type Request struct {
	ID           string
	Method       string
	URL          string
	Header       http.Header
	Body         []byte
	ResponseType ResponseType
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration

	// SkipAuthRefresh disables the refresh-and-replay flow on 401
	SkipAuthRefresh bool

	// Retried is set on the replay issued after a token refresh
	Retried   bool
	StartTime time.Time
}

// Clone returns a copy whose header map can be modified freely.
func (r Request) Clone() Request {
	r.Header = r.Header.Clone()
	if r.Header == nil {
		r.Header = http.Header{}
	}
	return r
}

// Response is a completed 2xx call.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header

	// Data is the decoded body: any JSON value (or the raw text when the body is not
	// JSON) for ResponseJSON, a string for ResponseText, []byte otherwise
	Data     any
	Raw      []byte
	Request  Request
	Duration time.Duration
}

// Decode unmarshals the raw JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("[Response.Decode] %w", err)
	}
	return nil
}

// Multipart describes a file upload. Fields that are not strings are JSON encoded.
type Multipart struct {
	FieldName string
	FileName  string
	File      io.Reader
	Fields    map[string]any
}

func (m *Multipart) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if m.File != nil {
		field := m.FieldName
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, m.FileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, m.File); err != nil {
			return nil, "", err
		}
	}

	for _, k := range sortedKeys(m.Fields) {
		v := m.Fields[k]
		if v == nil {
			continue
		}
		var value string
		switch tv := v.(type) {
		case string:
			value = tv
		case fmt.Stringer:
			value = tv.String()
		default:
			b, err := json.Marshal(tv)
			if err != nil {
				return nil, "", err
			}
			value = string(b)
		}
		if err := w.WriteField(k, value); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// encodeBody serialises body once so it can be resent on retries. The returned content
// type, when not empty, overrides the default header.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "", nil
	case string:
		return []byte(b), "", nil
	case url.Values:
		return []byte(b.Encode()), "application/x-www-form-urlencoded", nil
	case *Multipart:
		return b.encode()
	case io.Reader:
		data, err := io.ReadAll(b)
		return data, "", err
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}

func decodeData(raw []byte, responseType ResponseType) any {
	switch responseType {
	case ResponseText:
		return string(raw)
	case ResponseBlob, ResponseArrayBuffer:
		return raw
	}
	if len(raw) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return string(raw)
	}
	return data
}
