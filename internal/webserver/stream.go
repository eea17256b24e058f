package webserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zsprackett/tubewatch/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsFrame mirrors one stream event on /ws.
type wsFrame struct {
	ID    uint64 `json:"id"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func ping() events.Event {
	return events.Event{Name: events.Ping, Data: time.Now().UTC().Format(time.RFC3339)}
}

func (s *Server) handleEvents(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ch := s.hub.subscribe(ping())
	defer s.hub.unsubscribe(ch)
	s.logger.Debug("webserver: stream client connected", "remote", c.ClientIP())

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("webserver: stream client gone", "remote", c.ClientIP())
			return
		case <-ticker.C:
			s.hub.send(ch, ping())
		case f := <-ch:
			if err := writeFrame(c.Writer, f); err != nil {
				s.logger.Debug("webserver: stream write failed", "err", err)
				return
			}
		}
	}
}

func writeFrame(w gin.ResponseWriter, f frame) error {
	data, err := f.Event.Payload()
	if err != nil {
		return err
	}
	err = sse.Encode(w, sse.Event{
		Id:    strconv.FormatUint(f.ID, 10),
		Event: f.Event.Name,
		Data:  data,
	})
	if err != nil {
		return err
	}
	w.Flush()
	return nil
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Incoming messages are ignored; the read loop only notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-ch:
			msg := wsFrame{ID: f.ID, Event: f.Event.Name, Data: f.Event.Data}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
