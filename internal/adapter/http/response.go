package http

import (
	"encoding/json"
	"net/http"

	"github.com/tempora/tempora/pkg/apperror"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// writeError maps a use-case error onto its stable status code and body.
func writeError(w http.ResponseWriter, err error) {
	appErr := apperror.Map(err)
	writeJSON(w, appErr.Status, errorBody{Code: appErr.Code, Message: appErr.Message})
}
