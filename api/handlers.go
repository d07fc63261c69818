package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/visica/records"
	"github.com/jmcleod/visica/storage"
)

// Health reports that the server is up.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// FindRecords handles GET /collections/accounts/records. The passphrase
// filter is mandatory; the collection is never listed unfiltered.
func (a *API) FindRecords(w http.ResponseWriter, r *http.Request) {
	passphrase, ok := a.passphraseFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "passphrase filter is required")
		return
	}
	a.noteQueryCredential(r)

	matches, err := a.records.Find(r.Context(), passphrase)
	if err != nil {
		mapError(w, err)
		return
	}

	switch len(matches) {
	case 0:
		a.audit.log(AuditRecordLookupMiss, r)
	case 1:
		a.audit.logEvent(AuditRecordLookup, r, matches[0].ID)
	default:
		ids := make([]string, len(matches))
		for n, m := range matches {
			ids[n] = m.ID
		}
		a.audit.log(AuditRecordAmbiguous, r, slog.Any("record_ids", ids))
	}

	items := make([]RecordMatch, len(matches))
	for n, m := range matches {
		items[n] = RecordMatch{ID: m.ID, Status: m.Status}
	}
	items, meta := page(r, items)
	writeJSON(w, http.StatusOK, FindRecordsResponse{Items: items, PaginationMeta: meta})
}

// CreateRecord handles POST /collections/accounts/records.
func (a *API) CreateRecord(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateRecordRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	acct, err := a.records.Create(r.Context(), records.NewAccount{
		Name:       req.Name,
		Passphrase: req.Passphrase,
		Data:       req.Data,
		Status:     req.Status,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			a.audit.logFailure(AuditRecordDuplicate, r, "passphrase already in use")
		}
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditRecordCreated, r, acct.ID)
	writeJSON(w, http.StatusCreated, toRecordResponse(acct))
}

// GetRecord handles GET /collections/accounts/records/{id}.
func (a *API) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.noteQueryCredential(r)

	acct, err := a.records.Get(r.Context(), id, passphraseFromContext(r.Context()))
	if err != nil {
		a.auditRefusal(r, id, err)
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditRecordViewed, r, id)
	writeJSON(w, http.StatusOK, toRecordResponse(acct))
}

// UpdateRecord handles PATCH /collections/accounts/records/{id}.
func (a *API) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.noteQueryCredential(r)

	req, ok := decodeJSON[UpdateRecordRequest](w, r, maxBodySize)
	if !ok {
		return
	}

	acct, err := a.records.Update(r.Context(), id, passphraseFromContext(r.Context()), records.Changes{
		Name: req.Name,
		Data: req.Data,
	})
	if err != nil {
		a.auditRefusal(r, id, err)
		mapError(w, err)
		return
	}

	var fields []string
	if req.Name != nil {
		fields = append(fields, "name")
	}
	if req.Data != nil {
		fields = append(fields, "data")
	}
	a.audit.logEvent(AuditRecordUpdated, r, id, slog.Any("fields", fields))
	writeJSON(w, http.StatusOK, toRecordResponse(acct))
}

// DeleteRecord handles DELETE /collections/accounts/records/{id}.
func (a *API) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.noteQueryCredential(r)

	if err := a.records.Delete(r.Context(), id, passphraseFromContext(r.Context())); err != nil {
		a.auditRefusal(r, id, err)
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditRecordDeleted, r, id)
	w.WriteHeader(http.StatusNoContent)
}

// auditRefusal records credential rejections and banned mutations.
func (a *API) auditRefusal(r *http.Request, id string, err error) {
	switch {
	case errors.Is(err, records.ErrUnauthorized):
		a.audit.logEvent(AuditCredentialRejected, r, id)
	case errors.Is(err, records.ErrBanned):
		a.audit.logEvent(AuditBannedMutation, r, id, slog.String("method", r.Method))
	}
}

// noteQueryCredential flags requests that carried the passphrase in the URL,
// where proxies and access logs can capture it.
func (a *API) noteQueryCredential(r *http.Request) {
	if r.Header.Get(passphraseHeader) == "" && r.URL.Query().Has(passphraseQuery) && a.queryCredential {
		a.audit.log(AuditQueryCredentialUsed, r)
	}
}

func toRecordResponse(acct records.Account) RecordResponse {
	return RecordResponse{
		ID:      acct.ID,
		Name:    acct.Name,
		Data:    acct.Data,
		Status:  acct.Status,
		Created: acct.Created,
		Updated: acct.Updated,
	}
}
