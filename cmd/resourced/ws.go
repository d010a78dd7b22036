package main

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/arclabs/resourcefsm/internal/corelog"
)

// StreamServer upgrades GET /resources/{id}/stream to a websocket
// connection and pushes one JSON line per transition StreamHub observes
// for that resource.
type StreamServer struct {
	hub      *StreamHub
	registry *Registry
	upgrader websocket.Upgrader
	logger   corelog.Logger
}

// NewStreamServer returns a StreamServer backed by hub and registry.
func NewStreamServer(hub *StreamHub, registry *Registry, logger corelog.Logger) *StreamServer {
	return &StreamServer{
		hub:      hub,
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const prefix, suffix = "/resources/", "/stream"
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)

	if _, err := s.registry.Get(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("resourced: websocket upgrade for %s: %v", id, err)
		return
	}
	defer conn.Close()

	ch := s.hub.Subscribe(id)
	defer s.hub.Unsubscribe(id, ch)

	for evt := range ch {
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
	}
}
