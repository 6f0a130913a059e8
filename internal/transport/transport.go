// Package transport provides http.RoundTripper wrappers for outbound API calls.
package transport

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// QueryKeyTransport adds an API key to the query string of every request
type QueryKeyTransport struct {
	base  http.RoundTripper
	param string
	key   string
}

// WithQueryKey wraps base so every request carries key=<key>
func WithQueryKey(base http.RoundTripper, key string) *QueryKeyTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &QueryKeyTransport{base: base, param: "key", key: key}
}

func (t *QueryKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request
	r := req.Clone(req.Context())
	q := r.URL.Query()
	q.Set(t.param, t.key)
	r.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(r)
}

// WithBearer wraps base so every request carries an Authorization: Bearer header
func WithBearer(base http.RoundTripper, token string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		Base:   base,
	}
}

// LoggingTransport logs one line per round trip. The query string is never logged because it may hold a credential.
type LoggingTransport struct {
	base   http.RoundTripper
	logger zerolog.Logger
}

func WithLogging(base http.RoundTripper, logger zerolog.Logger) *LoggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &LoggingTransport{base: base, logger: logger}
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	event := t.logger.Debug().
		Str("method", req.Method).
		Str("host", req.URL.Host).
		Str("path", req.URL.Path).
		Dur("elapsed", time.Since(start))
	if err != nil {
		event.Err(err).Msg("Request failed")
		return resp, err
	}
	event.Int("status", resp.StatusCode).Msg("Request completed")
	return resp, nil
}
