package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/quangvo5803/HomeCareDN-sub005/internal/notify"
)

// New streams hub events to the client as server-sent events until the
// client disconnects. Events published while the client is catching up may
// be dropped; the stream is a live feed, not a replay log.
func New(log *slog.Logger, hub *notify.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.api.events.New"

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		id, ch := hub.Subscribe()
		defer hub.Unsubscribe(id)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		log.Debug("event stream opened", slog.String("op", op), slog.String("subscriber", id))

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(evt)
				if err != nil {
					log.Error("failed to encode event", slog.String("error", err.Error()))
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data)
				flusher.Flush()
			}
		}
	}
}
