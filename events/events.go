package events

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/r3labs/sse/v2"
)

const (
	StreamAssignments = "assignments"
	StreamNotices     = "notices"
	StreamPlayback    = "playback"
	StreamSearch      = "search"
	StreamThumbnails  = "thumbnails"
)

var Streams = []string{
	StreamAssignments,
	StreamNotices,
	StreamPlayback,
	StreamSearch,
	StreamThumbnails,
}

// Publisher pushes state changes out to connected consoles
type Publisher interface {
	Publish(stream string, v any)
}

// Broker fans JSON events out over server-sent events. Clients subscribe
// with /events?stream=<name>.
type Broker struct {
	server *sse.Server
}

func NewBroker() *Broker {
	server := sse.New()
	server.AutoReplay = false
	for _, stream := range Streams {
		server.CreateStream(stream)
	}
	return &Broker{server: server}
}

func (b *Broker) Publish(stream string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode event", slog.String("stream", stream), slog.Any("error", err))
		return
	}
	b.server.Publish(stream, &sse.Event{Data: data})
}

func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.server.ServeHTTP(w, r)
}

func (b *Broker) Close() {
	b.server.Close()
}

// Discard drops every event. Handy when nothing is listening.
type Discard struct{}

func (Discard) Publish(string, any) {}
