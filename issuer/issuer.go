// Package issuer obtains fresh account passphrases.
//
// Issuers never retry and never log the values they produce: a passphrase is
// a secret from the moment it exists.
package issuer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jmcleod/visica/account"
	"github.com/jmcleod/visica/internal/util"
)

// DefaultURL is the public passphrase generator used when none is configured.
const DefaultURL = "https://makemeapassword.ligos.net/api/v1/passphrase/json"

// maxResponseSize bounds how much of the generator's body is read.
const maxResponseSize = 64 << 10

// Issuer produces one high-entropy, human-transcribable passphrase.
type Issuer interface {
	Issue(ctx context.Context) (string, error)
}

// HTTPIssuer fetches candidates from an external JSON generator and returns
// the first one.
type HTTPIssuer struct {
	url    string
	client *http.Client
}

var _ Issuer = (*HTTPIssuer)(nil)

// Option configures an HTTPIssuer.
type Option func(*HTTPIssuer)

// WithHTTPClient sets the client used to reach the generator.
func WithHTTPClient(c *http.Client) Option {
	return func(i *HTTPIssuer) {
		i.client = c
	}
}

// NewHTTPIssuer returns an issuer for the generator at url. An empty url
// selects DefaultURL.
func NewHTTPIssuer(url string, opts ...Option) *HTTPIssuer {
	if url == "" {
		url = DefaultURL
	}
	i := &HTTPIssuer{url: url, client: http.DefaultClient}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type generatorResponse struct {
	Passphrases []string `json:"pws"`
}

// Issue performs one GET against the generator.
func (i *HTTPIssuer) Issue(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", account.ErrGeneratorUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", account.ErrGeneratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: generator returned %s", account.ErrGeneratorUnavailable, resp.Status)
	}

	var body generatorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", account.ErrGeneratorUnavailable, err)
	}
	if len(body.Passphrases) == 0 || strings.TrimSpace(body.Passphrases[0]) == "" {
		return "", fmt.Errorf("%w: no candidates returned", account.ErrGeneratorUnavailable)
	}
	return body.Passphrases[0], nil
}

// LocalIssuer generates passphrases in-process as dash-separated groups of
// unambiguous characters, e.g. "7KQM-X2RP-...". It needs no network access.
type LocalIssuer struct {
	Groups   int
	GroupLen int
}

var _ Issuer = LocalIssuer{}

// NewLocalIssuer returns a LocalIssuer producing eight groups of five
// characters (about 194 bits of entropy).
func NewLocalIssuer() LocalIssuer {
	return LocalIssuer{Groups: 8, GroupLen: 5}
}

func (l LocalIssuer) Issue(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", account.ErrGeneratorUnavailable, err)
	}
	if l.Groups <= 0 || l.GroupLen <= 0 {
		return "", fmt.Errorf("%w: invalid local issuer shape %dx%d", account.ErrGeneratorUnavailable, l.Groups, l.GroupLen)
	}
	groups := make([]string, l.Groups)
	for n := range groups {
		g, err := util.RandomString(util.UnambiguousAlphabet, l.GroupLen)
		if err != nil {
			return "", fmt.Errorf("%w: %v", account.ErrGeneratorUnavailable, err)
		}
		groups[n] = g
	}
	return strings.Join(groups, "-"), nil
}
