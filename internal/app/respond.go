package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	apperrors "github.com/GetwithitMan/gwi-pos-sub015/internal/platform/errors"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("app: encode response: %v", err)
	}
}

// writeError maps an application error to its HTTP status. Anything not
// a typed error is reported as internal without leaking the message.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
			Code:    string(apperrors.CodeInternal),
			Message: "internal error",
		}})
		return
	}
	writeJSON(w, appErr.Code.HTTPStatus(), errorResponse{Error: errorBody{
		Code:     string(appErr.Code),
		Message:  appErr.Message,
		Metadata: appErr.Metadata,
	}})
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
