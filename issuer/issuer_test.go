package issuer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/visica/account"
)

func generator(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPIssuer(t *testing.T) {
	ctx := context.Background()

	t.Run("first candidate", func(t *testing.T) {
		srv := generator(t, http.StatusOK, `{"pws":["correct horse battery staple","second"]}`)
		p, err := NewHTTPIssuer(srv.URL).Issue(ctx)
		require.NoError(t, err)
		assert.Equal(t, "correct horse battery staple", p)
	})

	failures := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"pws":["x"]}`},
		{"empty list", http.StatusOK, `{"pws":[]}`},
		{"missing field", http.StatusOK, `{}`},
		{"blank candidate", http.StatusOK, `{"pws":["  "]}`},
		{"malformed body", http.StatusOK, `{"pws":`},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			srv := generator(t, tt.status, tt.body)
			_, err := NewHTTPIssuer(srv.URL).Issue(ctx)
			assert.ErrorIs(t, err, account.ErrGeneratorUnavailable)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := generator(t, http.StatusOK, `{"pws":["x"]}`)
		url := srv.URL
		srv.Close()
		_, err := NewHTTPIssuer(url).Issue(ctx)
		assert.ErrorIs(t, err, account.ErrGeneratorUnavailable)
	})

	t.Run("no retry", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		_, err := NewHTTPIssuer(srv.URL, WithHTTPClient(srv.Client())).Issue(ctx)
		assert.ErrorIs(t, err, account.ErrGeneratorUnavailable)
		assert.Equal(t, 1, calls)
	})

	t.Run("default url", func(t *testing.T) {
		assert.Equal(t, DefaultURL, NewHTTPIssuer("").url)
	})
}

func TestLocalIssuer(t *testing.T) {
	ctx := context.Background()
	iss := NewLocalIssuer()

	p1, err := iss.Issue(ctx)
	require.NoError(t, err)
	p2, err := iss.Issue(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	groups := strings.Split(p1, "-")
	assert.Len(t, groups, 8)
	for _, g := range groups {
		assert.Len(t, g, 5)
	}

	_, err = LocalIssuer{}.Issue(ctx)
	assert.ErrorIs(t, err, account.ErrGeneratorUnavailable)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = iss.Issue(cancelled)
	assert.ErrorIs(t, err, account.ErrGeneratorUnavailable)
}
