package transport

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	query string
	auth  string
}

func newCaptureServer(t *testing.T, c *capture) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.query = r.URL.RawQuery
		c.auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWithQueryKey(t *testing.T) {
	var c capture
	srv := newCaptureServer(t, &c)
	client := &http.Client{Transport: WithQueryKey(nil, "s3cret")}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/models/m:generateContent?alt=json", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "alt=json&key=s3cret", c.query)
	assert.Empty(t, c.auth)
	assert.Equal(t, "alt=json", req.URL.RawQuery, "caller's request is left untouched")
}

func TestWithBearer(t *testing.T) {
	var c capture
	srv := newCaptureServer(t, &c)
	client := &http.Client{Transport: WithBearer(nil, "tok")}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok", c.auth)
	assert.Empty(t, c.query)
}

func TestWithLogging_OmitsQuery(t *testing.T) {
	var c capture
	srv := newCaptureServer(t, &c)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	client := &http.Client{Transport: WithLogging(WithQueryKey(nil, "s3cret"), logger)}

	resp, err := client.Get(srv.URL + "/path")
	require.NoError(t, err)
	resp.Body.Close()

	out := buf.String()
	assert.Contains(t, out, `"status":204`)
	assert.Contains(t, out, `"path":"/path"`)
	assert.NotContains(t, out, "s3cret")
}
