// Package remote is the HTTP client for the account record collection. It
// implements gateway.RecordStore against a visica server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmcleod/visica/account"
	"github.com/jmcleod/visica/api"
	"github.com/jmcleod/visica/gateway"
)

const maxResponseSize = 1 << 20

// Store talks to the record collection under baseURL, e.g.
// "https://visica.example.com/api/v1".
type Store struct {
	collection string
	client     *http.Client
	query      bool
}

var _ gateway.RecordStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient sets the client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.client = c
	}
}

// WithQueryCredential sends the passphrase as the "passphrase" query
// parameter instead of the X-Passphrase header, for servers that predate
// header credentials.
func WithQueryCredential() Option {
	return func(s *Store) {
		s.query = true
	}
}

// New returns a Store for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Store, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid server URL %q", account.ErrInvalidInput, baseURL)
	}
	s := &Store{
		collection: strings.TrimRight(baseURL, "/") + api.CollectionPath,
		client:     http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// recordWire mirrors api.RecordResponse with status optional, since a
// record without a status is active.
type recordWire struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Data   string `json:"data"`
	Status *bool  `json:"status"`
}

type findWire struct {
	Items []recordWire `json:"items"`
}

func (s *Store) Lookup(ctx context.Context, passphrase string) ([]gateway.StoredRecord, error) {
	var resp findWire
	if err := s.do(ctx, http.MethodGet, "", passphrase, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]gateway.StoredRecord, len(resp.Items))
	for n, item := range resp.Items {
		out[n] = gateway.StoredRecord{ID: item.ID, Status: item.Status}
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id, passphrase string) (gateway.StoredRecord, error) {
	var resp recordWire
	if err := s.do(ctx, http.MethodGet, id, passphrase, nil, &resp); err != nil {
		return gateway.StoredRecord{}, err
	}
	return toStored(resp), nil
}

func (s *Store) Insert(ctx context.Context, rec gateway.NewRecord) (gateway.StoredRecord, error) {
	status := rec.Status
	req := api.CreateRecordRequest{
		Name:       rec.Name,
		Passphrase: rec.Passphrase,
		Data:       rec.Data,
		Status:     &status,
	}
	var resp recordWire
	if err := s.do(ctx, http.MethodPost, "", "", req, &resp); err != nil {
		return gateway.StoredRecord{}, err
	}
	return toStored(resp), nil
}

func (s *Store) Patch(ctx context.Context, id, passphrase string, patch gateway.RecordPatch) (gateway.StoredRecord, error) {
	req := api.UpdateRecordRequest{Name: patch.Name, Data: patch.Data}
	var resp recordWire
	if err := s.do(ctx, http.MethodPatch, id, passphrase, req, &resp); err != nil {
		return gateway.StoredRecord{}, err
	}
	return toStored(resp), nil
}

func (s *Store) Remove(ctx context.Context, id, passphrase string) error {
	return s.do(ctx, http.MethodDelete, id, passphrase, nil, nil)
}

// do sends one request. An empty id addresses the collection itself; a
// non-empty passphrase is attached as the credential (or filter).
func (s *Store) do(ctx context.Context, method, id, passphrase string, body, out any) error {
	target := s.collection
	if id != "" {
		target += "/" + url.PathEscape(id)
	}
	if passphrase != "" && s.query {
		target += "?" + url.Values{"passphrase": {passphrase}}.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", account.ErrStoreUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if passphrase != "" && !s.query {
		req.Header.Set("X-Passphrase", passphrase)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%w: %s %s: %v", account.ErrStoreUnavailable, method, redact(target), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", account.ErrStoreUnavailable, err)
	}
	return nil
}

// statusError maps an HTTP error response to the account error taxonomy.
func statusError(resp *http.Response) error {
	var body api.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		sentinel = account.ErrInvalidInput
	case http.StatusUnauthorized:
		sentinel = account.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = account.ErrForbidden
	case http.StatusNotFound:
		sentinel = account.ErrNotFound
	case http.StatusConflict:
		if strings.Contains(msg, "passphrase") {
			sentinel = account.ErrDuplicate
		} else {
			sentinel = account.ErrStoreUnavailable
		}
	default:
		sentinel = account.ErrStoreUnavailable
	}
	return fmt.Errorf("%w: %s (HTTP %d)", sentinel, msg, resp.StatusCode)
}

// redact drops the query string, which may hold the passphrase.
func redact(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

func toStored(r recordWire) gateway.StoredRecord {
	return gateway.StoredRecord(r)
}
