package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"collab-playlist/internal/playlist"
)

// Error codes carried in the error envelope.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeDuplicateTrack = "DUPLICATE_TRACK"
	CodeNotFound       = "NOT_FOUND"
	CodeRateLimited    = "RATE_LIMITED"
	CodeServerError    = "SERVER_ERROR"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Code: code, Message: msg, Details: details},
	})
}

// writeServiceError maps the playlist error taxonomy onto HTTP.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error, details any) {
	switch {
	case errors.Is(err, playlist.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
	case errors.Is(err, playlist.ErrDuplicateTrack):
		writeError(w, http.StatusBadRequest, CodeDuplicateTrack, err.Error(), details)
	case errors.Is(err, playlist.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "Playlist item not found", nil)
	default:
		log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeServerError, "Internal server error", nil)
	}
}

// decodeJSON reads a JSON object body. An empty body decodes as {}.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
