// Package httpd serves the calendar widget contract: the REST surface
// the widget edits through and the websocket it receives live updates
// on.
package httpd

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lumenisola/obsidian-full-calendar/engine"
	"github.com/lumenisola/obsidian-full-calendar/host"
	"github.com/lumenisola/obsidian-full-calendar/parser"
	"github.com/lumenisola/obsidian-full-calendar/resolver"
	"github.com/lumenisola/obsidian-full-calendar/settings"
	"github.com/lumenisola/obsidian-full-calendar/types"
)

// Server exposes one engine over HTTP.
type Server struct {
	engine *engine.Engine
	hub    *Hub
	log    zerolog.Logger
	router *gin.Engine
}

// New assembles the router. The hub is registered under /ws and is
// expected to be attached to the engine as a listener by the caller.
func New(e *engine.Engine, cfg *settings.Config, hub *Hub, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: e, hub: hub, log: log}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/calendar", s.calendar)
		api.POST("/events", s.createEvent)
		api.POST("/events/modify", s.modifyEvent)
		api.POST("/events/open", s.openEvent)
	}
	r.GET("/ws", hub.Serve)

	s.router = r
	return s
}

// Handler returns the assembled router for an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// calendar returns the full view payload, one entry per configured
// source.
func (s *Server) calendar(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sources": s.engine.Sources(c.Request.Context()),
	})
}

// createEvent persists a selection as a new event document.
func (s *Server) createEvent(c *gin.Context) {
	var body struct {
		Title  string `json:"title"`
		Source string `json:"source"`
		Start  string `json:"start"`
		End    string `json:"end"`
		AllDay bool   `json:"allDay"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	start, ok := parser.Stamp(body.Start)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start"})
		return
	}
	var end time.Time
	if body.End != "" {
		if end, ok = parser.Stamp(body.End); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end"})
			return
		}
	}
	p, err := s.engine.CreateEvent(c.Request.Context(), body.Source, body.Title, start, end, body.AllDay)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": p})
}

// modifyEvent applies a widget drag, resize, or dialog submit. A failed
// edit maps to a status that makes the widget revert the change.
func (s *Server) modifyEvent(c *gin.Context) {
	var in types.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.ModifyEvent(c.Request.Context(), in); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": in.ID, "modified": true})
}

// openEvent returns an event's fields for the edit dialog, or sends its
// document to the configured editor.
func (s *Server) openEvent(c *gin.Context) {
	var body struct {
		ID       string `json:"id"`
		InEditor bool   `json:"inEditor"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	ev, err := s.engine.OpenEvent(c.Request.Context(), body.ID, body.InEditor)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": ev})
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, host.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, resolver.ErrAmbiguous):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrEditInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNoEditor):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// requestLogger logs one line per handled request.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
