package api

import "time"

// RecordMatch is one result of a passphrase-filtered lookup. Only the ID and
// status are exposed; everything else needs an authorized fetch.
type RecordMatch struct {
	ID     string `json:"id"`
	Status bool   `json:"status"`
}

// FindRecordsResponse is returned from GET /collections/accounts/records.
type FindRecordsResponse struct {
	Items []RecordMatch `json:"items"`
	PaginationMeta
}

// RecordResponse is a full record as returned to an authorized caller.
// Data is the JSON-serialized mapping of key names to secret values.
type RecordResponse struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Data    string    `json:"data"`
	Status  bool      `json:"status"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// CreateRecordRequest is the JSON body for POST /collections/accounts/records.
// The passphrase travels in the body, so creation needs no credential.
type CreateRecordRequest struct {
	Name       string `json:"name"`
	Passphrase string `json:"passphrase"`
	Data       string `json:"data,omitempty"`
	Status     *bool  `json:"status,omitempty"`
}

// UpdateRecordRequest is the JSON body for PATCH /collections/accounts/records/{id}.
type UpdateRecordRequest struct {
	Name *string `json:"name,omitempty"`
	Data *string `json:"data,omitempty"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
