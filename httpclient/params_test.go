package httpclient_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jrsteele09/equiptrack-client/httpclient"
	apperrors "github.com/jrsteele09/equiptrack-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestEncodeParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"empty", nil, ""},
		{"scalars sorted", map[string]any{"page": 2, "per_page": 25, "q": "cordless drill"}, "page=2&per_page=25&q=cordless%20drill"},
		{"nil skipped", map[string]any{"status": nil, "page": 1}, "page=1"},
		{"nested map", map[string]any{"filter": map[string]any{"status": "available", "location": "B-2"}}, "filter[location]=B-2&filter[status]=available"},
		{"slice", map[string]any{"ids": []int{3, 1}}, "ids[]=3&ids[]=1"},
		{"slice of maps", map[string]any{"sort": []map[string]string{{"field": "name", "dir": "asc"}}}, "sort[0][dir]=asc&sort[0][field]=name"},
		{"deep", map[string]any{"f": map[string]any{"tags": []string{"a&b", "c"}}}, "f[tags][]=a%26b&f[tags][]=c"},
		{"escaped key", map[string]any{"a b": "x"}, "a%20b=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, httpclient.EncodeParams(tt.params))
		})
	}
}

func TestPolicyTable(t *testing.T) {
	tests := []struct {
		status   int
		event    string
		category httpclient.Category
	}{
		{400, "api:validation:error", httpclient.CategoryValidation},
		{401, "auth:required", httpclient.CategoryAuth},
		{403, "auth:forbidden", httpclient.CategoryForbidden},
		{404, "resource:not_found", httpclient.CategoryNotFound},
		{422, "api:validation:error", httpclient.CategoryValidation},
		{429, "rate_limit:exceeded", httpclient.CategoryRateLimited},
		{500, "server:error", httpclient.CategoryServer},
		{503, "service:unavailable", httpclient.CategoryServer},
		{502, "api:request:error", httpclient.CategoryServer},
		{409, "api:request:error", httpclient.CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			p := httpclient.PolicyFor(tt.status)
			require.Equal(t, tt.event, p.Event)
			require.Equal(t, tt.category, p.Category)
			require.NotEmpty(t, p.Message)
			require.Equal(t, tt.category, httpclient.CategoryOf(&httpclient.HTTPError{Status: tt.status}))
		})
	}
}

func TestCategoryOfSentinels(t *testing.T) {
	require.Equal(t, httpclient.CategoryNetwork, httpclient.CategoryOf(fmt.Errorf("x: %w", apperrors.ErrTimeout)))
	require.Equal(t, httpclient.CategoryNetwork, httpclient.CategoryOf(apperrors.ErrCancelled))
	require.Equal(t, httpclient.CategoryAuth, httpclient.CategoryOf(apperrors.ErrInvalidCredentials))
	require.Equal(t, httpclient.CategoryUnknown, httpclient.CategoryOf(errors.New("odd")))
	require.Equal(t, httpclient.CategoryUnknown, httpclient.CategoryOf(nil))
}
