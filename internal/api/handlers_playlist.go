package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"collab-playlist/internal/playlist"
)

func (s *Server) handleListPlaylist(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Playlist(r.Context())
	if err != nil {
		writeServiceError(w, s.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type addTrackRequest struct {
	TrackID string `json:"track_id"`
	AddedBy string `json:"added_by"`
}

func (s *Server) handleAddTrack(w http.ResponseWriter, r *http.Request) {
	var body addTrackRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body", nil)
		return
	}

	item, _, err := s.svc.Add(r.Context(), body.TrackID, body.AddedBy)
	if err != nil {
		writeServiceError(w, s.log, err, map[string]string{"track_id": strings.TrimSpace(body.TrackID)})
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type updateItemRequest struct {
	Position  *float64 `json:"position"`
	IsPlaying *bool    `json:"is_playing"`
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body updateItemRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body", nil)
		return
	}

	if _, err := s.svc.Update(r.Context(), id, playlist.Update{
		Position:  body.Position,
		IsPlaying: body.IsPlaying,
	}); err != nil {
		writeServiceError(w, s.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type voteRequest struct {
	Direction string `json:"direction"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body voteRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body", nil)
		return
	}

	votes, _, err := s.svc.Vote(r.Context(), id, body.Direction)
	if err != nil {
		writeServiceError(w, s.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "votes": votes})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.svc.Remove(r.Context(), id); err != nil {
		writeServiceError(w, s.log, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
