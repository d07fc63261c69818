package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jmcleod/visica/records"
	"github.com/jmcleod/visica/storage"
)

const maxBodySize = 128 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// decodeJSON reads a size-limited JSON body into T. On failure it writes a
// 400 response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit))
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// mapError writes the HTTP status for err. Unknown errors are reported as
// 500 without their message.
func mapError(w http.ResponseWriter, err error) {
	var verr *records.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, records.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "credential rejected")
	case errors.Is(err, records.ErrBanned):
		writeError(w, http.StatusForbidden, "record is banned")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case errors.Is(err, storage.ErrDuplicate):
		writeError(w, http.StatusConflict, "passphrase already in use")
	case errors.Is(err, storage.ErrCASFailed):
		writeError(w, http.StatusConflict, "concurrent update, retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
