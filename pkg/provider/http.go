package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pario-ai/quotaguard/pkg/config"
)

// DefaultErrorFields are the body fields the common market-data APIs use to
// report errors with a 200 status.
var DefaultErrorFields = []string{"Error Message", "Note", "Information"}

const maxBody = 8 << 20

// HTTPFetcher calls a provider with an HTTP GET and flat query parameters.
type HTTPFetcher struct {
	name        string
	baseURL     string
	apiKey      string
	apiKeyParam string
	errorFields []string
	client      *http.Client
}

// NewHTTPFetcher builds a fetcher from a provider config.
func NewHTTPFetcher(cfg config.ProviderConfig) (*HTTPFetcher, error) {
	if _, err := url.Parse(cfg.URL); err != nil || cfg.URL == "" {
		return nil, fmt.Errorf("provider %s: invalid url %q", cfg.Name, cfg.URL)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("provider %s: invalid proxy: %w", cfg.Name, err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fields := cfg.ErrorFields
	if len(fields) == 0 {
		fields = DefaultErrorFields
	}
	keyParam := cfg.APIKeyParam
	if keyParam == "" {
		keyParam = "apikey"
	}
	return &HTTPFetcher{
		name:        cfg.Name,
		baseURL:     cfg.URL,
		apiKey:      cfg.APIKey,
		apiKeyParam: keyParam,
		errorFields: fields,
		client:      &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

func (f *HTTPFetcher) Name() string { return f.name }

// Fetch performs the call. A non-2xx status, a body that is not JSON, or a
// body carrying one of the error fields is a failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, params map[string]string) ([]byte, error) {
	u, _ := url.Parse(f.baseURL)
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	if f.apiKey != "" {
		q.Set(f.apiKeyParam, f.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Provider: f.name, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		kind := KindTransport
		if errors.Is(err, context.Canceled) {
			kind = KindCanceled
		}
		return nil, &Error{Provider: f.name, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &Error{Provider: f.name, Kind: KindTransport, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Provider: f.name, Kind: KindStatus, Status: resp.StatusCode, Detail: snippet(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, &Error{Provider: f.name, Kind: KindDecode, Detail: snippet(body)}
	}
	if field, msg, ok := f.sentinel(body); ok {
		return nil, &Error{Provider: f.name, Kind: KindSentinel, Detail: field + ": " + msg}
	}
	return body, nil
}

func (f *HTTPFetcher) sentinel(body []byte) (field, msg string, ok bool) {
	results := gjson.GetManyBytes(body, f.errorFields...)
	for i, r := range results {
		if r.Exists() {
			return f.errorFields[i], r.String(), true
		}
	}
	return "", "", false
}

func snippet(b []byte) string {
	const n = 200
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
