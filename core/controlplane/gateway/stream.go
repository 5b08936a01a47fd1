package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cordum/stageflow/core/editor"
	"github.com/cordum/stageflow/core/infra/bus"
	"github.com/cordum/stageflow/core/infra/logging"
	"github.com/gorilla/websocket"
)

const (
	configSubjects       = "stageflow.config.>"
	notificationSubjects = "stageflow.editor.>"

	// streamRetryDelay is how long JetStream waits before redelivering a
	// config event the stream buffer could not take.
	streamRetryDelay = 250 * time.Millisecond
)

var errStreamFull = errors.New("stream buffer full")

type streamClient struct {
	ch        chan *bus.Event
	sessionID string
}

// wants reports whether evt should reach this client. Clients bound to a
// session only receive that session's notifications plus config events.
func (c *streamClient) wants(evt *bus.Event) bool {
	if c.sessionID == "" || evt.Type != editor.EventNotification {
		return true
	}
	var n editor.Notification
	if err := evt.Decode(&n); err != nil {
		return false
	}
	return n.SessionID == c.sessionID
}

// startBusTaps subscribes to config and notification events once for the lifetime of the gateway.
func (s *server) startBusTaps() {
	if s.bus == nil {
		return
	}
	taps := []struct {
		subject string
		handler func(*bus.Event) error
	}{
		{configSubjects, s.tapConfigEvent},
		{notificationSubjects, s.tapNotification},
	}
	for _, tap := range taps {
		if err := s.bus.Subscribe(tap.subject, "", tap.handler); err != nil {
			logging.Error("api-gateway", "bus subscribe failed", "subject", tap.subject, "error", err)
		}
	}
}

// tapConfigEvent asks for redelivery when the buffer is full. Config subjects
// are durable under JetStream, so saved and deleted events are not lost.
func (s *server) tapConfigEvent(evt *bus.Event) error {
	select {
	case s.eventsCh <- evt:
		return nil
	default:
		return bus.RetryAfter(errStreamFull, streamRetryDelay)
	}
}

// tapNotification drops editor notifications when the buffer is full.
func (s *server) tapNotification(evt *bus.Event) error {
	select {
	case s.eventsCh <- evt:
	default:
		logging.Debug("api-gateway", "stream buffer full, dropping notification", "type", evt.Type)
	}
	return nil
}

// broadcastLoop fans events out to websocket clients until ctx is done.
func (s *server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-s.eventsCh:
			s.broadcast(evt)
		}
	}
}

func (s *server) broadcast(evt *bus.Event) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		if !c.wants(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
		}
	}
}

func (s *server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	logging.Info("gateway", "ws connection attempt", "remote", r.RemoteAddr, "session", sessionID)
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("gateway", "ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	client := &streamClient{ch: make(chan *bus.Event, 100), sessionID: sessionID}
	s.clientsMu.Lock()
	s.clients[ws] = client
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, ws)
		s.clientsMu.Unlock()
	}()

	// Reader detects client close; inbound messages are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-client.ch:
			data, err := json.Marshal(evt)
			if err != nil {
				logging.Error("gateway", "marshal event failed", "error", err)
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
