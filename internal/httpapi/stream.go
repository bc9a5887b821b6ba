package httpapi

import (
	"context"
	"net/http"
	"time"

	"tallybook.org/internal/stream"
)

// Events handles Server-Sent Events for live book activity.
func (a *API) Events(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The middleware wrappers expose the underlying Flusher via Unwrap.
	rc := http.NewResponseController(w)
	// Lift the server write timeout for this response; the feed outlives it.
	_ = rc.SetWriteDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.stream.Subscribe(ctx)

	// Send an initial comment to establish the stream
	if _, err := w.Write([]byte(": stream started\n\n")); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	for event := range ch {
		payload, err := jsonCodec.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// publish pushes a book event to live subscribers, if any.
func (a *API) publish(evt stream.BookEvent) {
	if a.stream == nil {
		return
	}
	a.stream.Publish(evt)
}
