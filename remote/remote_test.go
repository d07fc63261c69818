package remote_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/visica/account"
	"github.com/jmcleod/visica/api"
	"github.com/jmcleod/visica/gateway"
	"github.com/jmcleod/visica/gateway/gatewaytest"
	icrypto "github.com/jmcleod/visica/internal/crypto"
	"github.com/jmcleod/visica/records"
	"github.com/jmcleod/visica/remote"
	"github.com/jmcleod/visica/session"
	"github.com/jmcleod/visica/storage"
	"github.com/jmcleod/visica/storage/memory"
)

const staple = "correct horse battery staple"

type env struct {
	url  string
	repo *memory.Repository
	svc  *records.Service
}

func newEnv(t *testing.T, opts ...api.Option) *env {
	t.Helper()
	repo := memory.NewRepository()
	svc := records.NewService(repo)
	opts = append([]api.Option{api.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	a := api.New(svc, opts...)
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &env{url: srv.URL + "/api/v1", repo: repo, svc: svc}
}

func newGateway(t *testing.T, e *env, passphrases []string, opts ...remote.Option) *gateway.Gateway {
	t.Helper()
	store, err := remote.New(e.url, opts...)
	require.NoError(t, err)
	return gateway.New(store, gatewaytest.NewIssuer(passphrases...))
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	gw := newGateway(t, e, []string{staple})

	id, passphrase, err := gw.Create(ctx, "Ava", account.Data{})
	require.NoError(t, err)
	assert.Equal(t, staple, passphrase)

	resolved, err := gw.Resolve(ctx, passphrase)
	require.NoError(t, err)
	assert.Equal(t, id, resolved)
	again, err := gw.Resolve(ctx, passphrase)
	require.NoError(t, err)
	assert.Equal(t, resolved, again)

	acct, err := gw.View(ctx, passphrase)
	require.NoError(t, err)
	assert.Equal(t, account.Account{ID: id, Name: "Ava", Data: account.Data{}, Status: true}, acct)

	name := "Bea"
	updated, err := gw.Update(ctx, passphrase, account.Patch{Name: &name, Data: account.Data{"GITHUB_TOKEN": "ghp_x"}})
	require.NoError(t, err)
	assert.Equal(t, "Bea", updated.Name)
	assert.Equal(t, account.Data{"GITHUB_TOKEN": "ghp_x"}, updated.Data)

	require.NoError(t, gw.Delete(ctx, passphrase))
	_, err = gw.Resolve(ctx, passphrase)
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestEndToEndQueryCredential(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	gw := newGateway(t, e, []string{staple}, remote.WithQueryCredential())

	_, passphrase, err := gw.Create(ctx, "Ava", nil)
	require.NoError(t, err)
	acct, err := gw.View(ctx, passphrase)
	require.NoError(t, err)
	assert.Equal(t, "Ava", acct.Name)
}

func TestEndToEndBanned(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	gw := newGateway(t, e, []string{staple})
	id, passphrase, err := gw.Create(ctx, "Ava", nil)
	require.NoError(t, err)
	_, err = e.svc.SetStatus(ctx, id, false)
	require.NoError(t, err)

	acct, err := gw.View(ctx, passphrase)
	require.NoError(t, err)
	assert.True(t, acct.Banned())

	name := "Bea"
	_, err = gw.Update(ctx, passphrase, account.Patch{Name: &name})
	assert.ErrorIs(t, err, account.ErrForbidden)
	assert.ErrorIs(t, gw.Delete(ctx, passphrase), account.ErrForbidden)

	rec, err := e.repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ava", rec.Name)
}

func TestEndToEndAmbiguous(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	gw := newGateway(t, e, []string{staple})
	_, passphrase, err := gw.Create(ctx, "Ava", nil)
	require.NoError(t, err)

	e.repo.Insert(&storage.Record{ID: "zz-copy", LookupID: icrypto.LookupID(passphrase), Name: "Copy", Status: true, Version: 1})

	_, err = gw.Resolve(ctx, passphrase)
	assert.ErrorIs(t, err, account.ErrAmbiguousCredential)
	assert.ErrorIs(t, gw.Delete(ctx, passphrase), account.ErrAmbiguousCredential)
}

// vanishingStore deletes the record on the server just before fetching it.
type vanishingStore struct {
	gateway.RecordStore
	repo *memory.Repository
}

func (s vanishingStore) Get(ctx context.Context, id, passphrase string) (gateway.StoredRecord, error) {
	if err := s.repo.Delete(ctx, id); err != nil {
		return gateway.StoredRecord{}, err
	}
	return s.RecordStore.Get(ctx, id, passphrase)
}

func TestEndToEndRecordRemovedBeforeFetch(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, passphrase, err := newGateway(t, e, []string{staple}).Create(ctx, "Ava", nil)
	require.NoError(t, err)

	store, err := remote.New(e.url)
	require.NoError(t, err)
	gw := gateway.New(vanishingStore{RecordStore: store, repo: e.repo}, gatewaytest.NewIssuer())

	_, err = gw.View(ctx, passphrase)
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestEndToEndDuplicate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	gw := newGateway(t, e, []string{staple, staple})
	_, _, err := gw.Create(ctx, "Ava", nil)
	require.NoError(t, err)

	_, _, err = gw.Create(ctx, "Bea", nil)
	assert.ErrorIs(t, err, account.ErrDuplicate)
}

func TestEndToEndSessionRestore(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	gw := newGateway(t, e, []string{staple})
	slot := &session.MemorySlot{}

	first := session.NewManager(gw, slot)
	created, _, err := first.CreateAccount(ctx, "Ava")
	require.NoError(t, err)

	// A new process picks the session back up from the slot.
	second := session.NewManager(gw, slot)
	restored, ok := second.Restore(ctx)
	require.True(t, ok)
	assert.Equal(t, created, restored)

	require.NoError(t, second.DeleteAccount(ctx))

	third := session.NewManager(gw, slot)
	_, ok = third.Restore(ctx)
	assert.False(t, ok)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusBadRequest, `{"error":"name must not be empty"}`, account.ErrInvalidInput},
		{http.StatusUnauthorized, `{"error":"credential rejected"}`, account.ErrUnauthorized},
		{http.StatusForbidden, `{"error":"record is banned"}`, account.ErrForbidden},
		{http.StatusNotFound, ``, account.ErrNotFound},
		{http.StatusConflict, `{"error":"passphrase already in use"}`, account.ErrDuplicate},
		{http.StatusConflict, `{"error":"concurrent update, retry"}`, account.ErrStoreUnavailable},
		{http.StatusBadGateway, `<html>bad gateway</html>`, account.ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			store, err := remote.New(srv.URL)
			require.NoError(t, err)
			_, err = store.Get(context.Background(), "r1", staple)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWireFormat(t *testing.T) {
	var (
		mu        sync.Mutex
		gotHeader string
		gotQuery  url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotHeader = r.Header.Get("X-Passphrase")
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		// No status field: the record must read as active.
		io.WriteString(w, `{"items":[{"id":"r1"}],"total_count":1,"limit":50,"offset":0,"has_more":false}`)
	}))
	defer srv.Close()

	store, err := remote.New(srv.URL)
	require.NoError(t, err)
	matches, err := store.Lookup(context.Background(), staple)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.True(t, matches[0].Active())
	mu.Lock()
	assert.Equal(t, staple, gotHeader)
	assert.Empty(t, gotQuery.Get("passphrase"))
	mu.Unlock()

	store, err = remote.New(srv.URL, remote.WithQueryCredential())
	require.NoError(t, err)
	_, err = store.Lookup(context.Background(), staple)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, gotHeader)
	assert.Equal(t, staple, gotQuery.Get("passphrase"))
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	store, err := remote.New(srv.URL, remote.WithQueryCredential())
	require.NoError(t, err)
	_, err = store.Lookup(context.Background(), staple)
	assert.ErrorIs(t, err, account.ErrStoreUnavailable)
	assert.NotContains(t, err.Error(), url.QueryEscape(staple))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := remote.New("not a url")
	assert.ErrorIs(t, err, account.ErrInvalidInput)
}
