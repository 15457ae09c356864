package api

import (
	"net/http"

	"collab-playlist/internal/playlist"
)

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tracks, err := s.svc.Tracks(r.Context(), playlist.TrackFilter{
		Query: q.Get("q"),
		Genre: q.Get("genre"),
	})
	if err != nil {
		writeServiceError(w, s.log, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}
