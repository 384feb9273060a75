package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Devmainman/kurosadmin/internal/resource"
	"github.com/Devmainman/kurosadmin/pkg/httputil"
)

// streamHandler serves server-sent event streams. A watched key counts as
// observed by the cache for as long as the stream is open, so it is
// refetched as soon as a write invalidates it.
type streamHandler struct {
	cache   Cache
	session Session
	logger  *slog.Logger
}

// Collection handles GET /watch/{type}.
func (h *streamHandler) Collection(w http.ResponseWriter, r *http.Request) {
	t, err := entityType(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.watch(w, r, collectionKey(t, r.URL.Query()))
}

// Detail handles GET /watch/{type}/{id}.
func (h *streamHandler) Detail(w http.ResponseWriter, r *http.Request) {
	t, err := entityType(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.watch(w, r, resource.DetailKey(t, chi.URLParam(r, "id")))
}

func (h *streamHandler) watch(w http.ResponseWriter, r *http.Request, key resource.Key) {
	sub := h.cache.Subscribe(key)
	defer sub.Close()

	rc := startStream(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-sub.Updates():
			if !ok {
				return
			}
			if err := writeEvent(w, rc, "entry", newEntryView(e)); err != nil {
				h.logger.DebugContext(r.Context(), "watch stream closed",
					slog.String("key", key.String()),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

// Session handles GET /session/events. Views use it to leave the protected
// tree as soon as the session ends.
func (h *streamHandler) Session(w http.ResponseWriter, r *http.Request) {
	updates, cancel := h.session.Subscribe()
	defer cancel()

	rc := startStream(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, rc, "session", s); err != nil {
				return
			}
		}
	}
}

func startStream(w http.ResponseWriter) *http.ResponseController {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()
	return rc
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}
