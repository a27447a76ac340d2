// Package transport exposes a bridge.Channel to out-of-process execution
// contexts over HTTP and WebSocket.
package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"scout/internal/bridge"
	"scout/internal/logging"
	"scout/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxPayloadBytes = 10 << 20
	DefaultPingInterval    = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
)

type Option func(*Server)

// WithMaxPayloadBytes caps request bodies and WebSocket frames.
func WithMaxPayloadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPayload = n
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) { s.log = logging.OrDiscard(l) }
}

// Server routes task requests to a Channel.
type Server struct {
	ch           bridge.Channel
	e            *echo.Echo
	log          logrus.FieldLogger
	maxPayload   int64
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds the echo instance and registers all routes.
func NewServer(ch bridge.Channel, opts ...Option) *Server {
	s := &Server{
		ch:           ch,
		log:          logging.Discard(),
		maxPayload:   DefaultMaxPayloadBytes,
		pingInterval: DefaultPingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Execution contexts run on arbitrary test origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(requestLogger(s.log))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(strconv.FormatInt(s.maxPayload, 10) + "B"))
	s.e = e
	s.RegisterRoutes(e)
	return s
}

// RegisterRoutes registers the task, health, metrics and WebSocket routes.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.POST("/tasks/:name", s.handleTask)
	e.GET("/ws", s.handleWebSocket)
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// ServeHTTP lets the server run under httptest or any http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) handleTask(c echo.Context) error {
	task := c.Param("name")
	arg, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}

	out, err := bridge.Dispatch(c.Request().Context(), s.ch, task, arg)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, bridge.ErrUnknownTask) {
			status = http.StatusNotFound
		}
		s.log.WithError(err).WithField("task", task).Warn("task rejected")
		return c.JSON(status, errorBody(err))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "healthy",
		"tasks":  bridge.Tasks(),
	})
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

// requestLogger logs one line per request through logrus.
func requestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			log.WithFields(logrus.Fields{
				"method":  req.Method,
				"path":    req.URL.Path,
				"status":  c.Response().Status,
				"latency": time.Since(start).Round(time.Microsecond).String(),
			}).Debug("request")
			return nil
		}
	}
}
