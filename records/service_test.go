package records_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	icrypto "github.com/jmcleod/visica/internal/crypto"
	"github.com/jmcleod/visica/records"
	"github.com/jmcleod/visica/storage"
	"github.com/jmcleod/visica/storage/memory"
)

const staple = "correct horse battery staple"

func newService(t *testing.T) (*records.Service, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return records.NewService(repo, records.WithClock(func() time.Time { return clock })), repo
}

func create(t *testing.T, svc *records.Service, name, passphrase, data string) records.Account {
	t.Helper()
	acct, err := svc.Create(context.Background(), records.NewAccount{Name: name, Passphrase: passphrase, Data: data})
	require.NoError(t, err)
	return acct
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	created := create(t, svc, "Ava", staple, `{"GITHUB_TOKEN":"ghp_x"}`)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Status)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), created.Created)

	got, err := svc.Get(ctx, created.ID, staple)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	// Nothing derived from the plaintext is stored except the lookup digest.
	rec, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, icrypto.LookupID(staple), rec.LookupID)
	assert.NotContains(t, string(rec.Data.Ciphertext), "ghp_x")
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	cases := map[string]records.NewAccount{
		"blank name":     {Name: " ", Passphrase: staple},
		"no passphrase":  {Name: "Ava"},
		"data not json":  {Name: "Ava", Passphrase: staple, Data: "nope"},
		"data not flat":  {Name: "Ava", Passphrase: staple, Data: `{"a":{"b":"c"}}`},
		"control in key": {Name: "Ava", Passphrase: staple, Data: "{\"a\\u0000\":\"b\"}"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), in)
			var verr *records.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestCreateDuplicatePassphrase(t *testing.T) {
	svc, _ := newService(t)
	create(t, svc, "Ava", staple, "")

	_, err := svc.Create(context.Background(), records.NewAccount{Name: "Bea", Passphrase: staple})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestCreateBanned(t *testing.T) {
	svc, _ := newService(t)
	banned := false
	acct, err := svc.Create(context.Background(), records.NewAccount{Name: "Ava", Passphrase: staple, Status: &banned})
	require.NoError(t, err)
	assert.False(t, acct.Status)
	assert.Equal(t, "{}", acct.Data)
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	a := create(t, svc, "Ava", staple, "")
	create(t, svc, "Bea", "another passphrase entirely", "")

	matches, err := svc.Find(ctx, staple)
	require.NoError(t, err)
	assert.Equal(t, []records.Match{{ID: a.ID, Status: true}}, matches)

	matches, err = svc.Find(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, matches)

	// A corrupted store with duplicate lookup IDs reports every match.
	repo.Insert(&storage.Record{ID: "zz-dup", LookupID: icrypto.LookupID(staple), Name: "Dup", Status: true, Version: 1})
	matches, err = svc.Find(ctx, staple)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestGetAuthorization(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := create(t, svc, "Ava", staple, "")
	b := create(t, svc, "Bea", "bea's own passphrase", "")

	_, err := svc.Get(ctx, a.ID, "wrong")
	assert.ErrorIs(t, err, records.ErrUnauthorized)

	_, err = svc.Get(ctx, b.ID, staple)
	assert.ErrorIs(t, err, records.ErrUnauthorized, "a passphrase only authorizes its own record")

	_, err = svc.Get(ctx, a.ID, "")
	assert.ErrorIs(t, err, records.ErrUnauthorized)

	_, err = svc.Get(ctx, "missing", staple)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	a := create(t, svc, "Ava", staple, `{"GITHUB_TOKEN":""}`)

	name := "Bea"
	updated, err := svc.Update(ctx, a.ID, staple, records.Changes{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Bea", updated.Name)
	assert.JSONEq(t, `{"GITHUB_TOKEN":""}`, updated.Data)

	data := `{"GITHUB_TOKEN":"ghp_x"}`
	updated, err = svc.Update(ctx, a.ID, staple, records.Changes{Data: &data})
	require.NoError(t, err)
	assert.Equal(t, data, updated.Data)

	rec, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), rec.Version)

	_, err = svc.Update(ctx, a.ID, staple, records.Changes{})
	var verr *records.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Update(ctx, a.ID, "wrong", records.Changes{Name: &name})
	assert.ErrorIs(t, err, records.ErrUnauthorized)
}

func TestBannedRecordsAreReadOnly(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	a := create(t, svc, "Ava", staple, "")

	summary, err := svc.SetStatus(ctx, a.ID, false)
	require.NoError(t, err)
	assert.False(t, summary.Status)

	got, err := svc.Get(ctx, a.ID, staple)
	require.NoError(t, err)
	assert.False(t, got.Status)

	name := "Bea"
	_, err = svc.Update(ctx, a.ID, staple, records.Changes{Name: &name})
	assert.ErrorIs(t, err, records.ErrBanned)
	assert.ErrorIs(t, svc.Delete(ctx, a.ID, staple), records.ErrBanned)

	rec, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ava", rec.Name)

	_, err = svc.SetStatus(ctx, a.ID, true)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, a.ID, staple))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := create(t, svc, "Ava", staple, "")

	assert.ErrorIs(t, svc.Delete(ctx, a.ID, "wrong"), records.ErrUnauthorized)
	require.NoError(t, svc.Delete(ctx, a.ID, staple))

	matches, err := svc.Find(ctx, staple)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.ErrorIs(t, svc.Delete(ctx, a.ID, staple), storage.ErrNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := create(t, svc, "Ava", staple, `{"GITHUB_TOKEN":"ghp_x"}`)
	b := create(t, svc, "Bea", "bea's own passphrase", "")

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}

func TestUpdateRetriesOnCASConflict(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepo{Repository: memory.NewRepository(), conflicts: 2}
	svc := records.NewService(repo)
	a, err := svc.Create(ctx, records.NewAccount{Name: "Ava", Passphrase: staple})
	require.NoError(t, err)

	name := "Bea"
	updated, err := svc.Update(ctx, a.ID, staple, records.Changes{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Bea", updated.Name)
	assert.Equal(t, 3, repo.puts)

	repo.conflicts = 10
	_, err = svc.Update(ctx, a.ID, staple, records.Changes{Name: &name})
	assert.ErrorIs(t, err, storage.ErrCASFailed)
}

func TestContextCancelled(t *testing.T) {
	svc, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Create(ctx, records.NewAccount{Name: "Ava", Passphrase: staple})
	assert.True(t, errors.Is(err, context.Canceled))
}

// flakyRepo fails the first conflicts PutCAS calls with ErrCASFailed.
type flakyRepo struct {
	*memory.Repository
	conflicts int
	puts      int
}

func (r *flakyRepo) PutCAS(ctx context.Context, rec *storage.Record, expected uint64) error {
	r.puts++
	if r.conflicts > 0 {
		r.conflicts--
		return storage.ErrCASFailed
	}
	return r.Repository.PutCAS(ctx, rec, expected)
}
