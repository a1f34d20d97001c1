package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agentfoundry/sessiond/internal/core"
)

// ErrorResponse is the wire form of every sessiond error.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a sessiond error response.
func WriteError(w http.ResponseWriter, err *core.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code.HTTPStatus())
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    string(err.Code),
		Message: err.Message,
	})
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteFailure maps any error to its HTTP form. AppErrors keep their code,
// an optimistic-lock conflict becomes SESS_VERSION_CONFLICT, and anything
// else is reported as a generic internal error; the detail stays in the log.
func WriteFailure(w http.ResponseWriter, err error) {
	var app *core.AppError
	if errors.As(err, &app) {
		WriteError(w, app)
		return
	}
	var conflict *core.VersionConflictError
	if errors.As(err, &conflict) {
		WriteError(w, core.NewAppError(core.ErrVersionConflict, "session version conflict"))
		return
	}
	WriteError(w, core.NewAppError(core.ErrInternal, "internal error"))
}
