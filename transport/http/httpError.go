package http

import (
	"encoding/json"
	"net/http"

	"github.com/autom8ter/viewdb/errors"
)

// httpError writes the error as json with the status matching its code
func httpError(w http.ResponseWriter, err error) {
	e := errors.Extract(err)
	if cde := int(e.Code); cde < 400 || cde >= 600 {
		e.Code = errors.Internal
	}
	writeJSON(w, int(e.Code), json.RawMessage(e.Error()))
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}
