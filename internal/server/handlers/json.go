package handlers

import (
	"net/http"

	"github.com/bytedance/sonic"

	apperrors "github.com/eventwindow/eventwindow/internal/errors"
)

// respondWithError renders err as the standard error envelope.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "Unable to encode response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}
