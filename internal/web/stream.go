package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appLog "classcal/internal/log"
	"classcal/internal/model"
)

const streamKeepAlive = 25 * time.Second

type streamEvent struct {
	Version uint64        `json:"version"`
	Classes []model.Class `json:"classes"`
}

// handleStream pushes the class list as server-sent events: the current
// list first, then a fresh one after every change. A slow client only ever
// sees the newest list.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming is not supported.")
		return
	}

	ctx := r.Context()
	updates, err := s.classes.Subscribe(ctx)
	if err != nil {
		appLog.Error("api: stream subscribe failed", err)
		writeError(w, http.StatusInternalServerError, "Error loading classes.")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(streamEvent{Version: snap.Version, Classes: snap.Available()})
			if err != nil {
				appLog.Error("api: stream encode failed", err)
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: classes\ndata: %s\n\n", snap.Version, data); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
