package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"scout/internal/bridge"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// handleWebSocket serves one connection. Frames are processed one at a time
// in arrival order, so a caller that pipelines requests still sees them
// applied in the order it sent them.
func (s *Server) handleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return nil
	}
	conn := &wsConn{Conn: ws}
	defer conn.Close()

	ws.SetReadLimit(s.maxPayload)
	readTimeout := 2 * s.pingInterval
	ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	ctx := c.Request().Context()
	log := s.log.WithField("remote", c.RealIP())
	log.Debug("websocket connected")

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("websocket closed")
			}
			return nil
		}
		ws.SetReadDeadline(time.Now().Add(readTimeout))

		reply := s.handleFrame(ctx, data, log)
		if err := conn.writeJSON(reply); err != nil {
			log.WithError(err).Warn("websocket write failed")
			return nil
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, data []byte, log logrus.FieldLogger) Reply {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Reply{Error: "invalid frame: " + err.Error()}
	}
	if f.Task == "" {
		return Reply{ID: f.ID, Error: "invalid frame: missing task"}
	}

	out, err := bridge.Dispatch(ctx, s.ch, f.Task, f.Arg)
	if err != nil {
		log.WithError(err).WithField("task", f.Task).Warn("task rejected")
		return Reply{ID: f.ID, Error: err.Error()}
	}
	return resultReply(f.ID, out)
}

func (s *Server) pingLoop(conn *wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	return c.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(DefaultWriteTimeout))
}
