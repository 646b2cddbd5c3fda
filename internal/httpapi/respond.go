package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fleetwatch/fleetwatch/internal/apperr"
)

// writeJSON mirrors the teacher's handler idiom of
// json.NewEncoder(w).Encode(...) after setting the content type, kept
// here as a shared helper since every handler in this package does it.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as the {code, message, details} envelope of
// spec.md §7, mapped to its HTTP status via apperr.HTTPStatus.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	body := map[string]interface{}{"message": err.Error()}
	if e, ok := apperr.As(err); ok {
		body["code"] = e.Code
		if e.Details != nil {
			body["details"] = e.Details
		}
		body["message"] = e.Message
	} else {
		body["code"] = apperr.CodeInternal
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

func notFoundRoute() error {
	return apperr.NotFound("no route matches this request")
}
