package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/watchit/internal/events"
)

const sseKeepAlive = 15 * time.Second

// handleEvents streams hub events as Server-Sent Events. A Last-Event-ID
// header resumes after that id; ?watch=ID drops run events of other watches.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	live, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	stream := &sseStream{
		w:       w,
		flusher: flusher,
		watchID: r.URL.Query().Get("watch"),
		last:    parseLastEventID(r.Header.Get("Last-Event-ID")),
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// The subscription predates the snapshot, so the two overlap; send
	// drops ids it has already seen.
	for _, ev := range s.events.SnapshotSince(stream.last) {
		if stream.send(ev) != nil {
			return
		}
	}
	flusher.Flush()

	ping := time.NewTicker(sseKeepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-live:
			if !ok || stream.send(ev) != nil {
				return
			}
		case <-ping.C:
			if stream.comment("keep-alive") != nil {
				return
			}
		}
	}
}

type sseStream struct {
	w       io.Writer
	flusher http.Flusher
	watchID string
	last    int64
}

func (s *sseStream) send(ev events.Event) error {
	if ev.ID <= s.last {
		return nil
	}
	s.last = ev.ID
	if !ev.ForWatch(s.watchID) {
		return nil
	}
	// Payloads are compact JSON, so a single data line carries them.
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func parseLastEventID(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
