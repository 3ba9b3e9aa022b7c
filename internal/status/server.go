// Package status serves a small local HTTP API over a running viewer:
// published values, readiness, connection flags and counters, the image on
// display, and the retry and reconnect controls.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/frameview/internal/blob"
	"github.com/example/frameview/internal/conn"
	"github.com/example/frameview/internal/logging"
	"github.com/example/frameview/internal/pump"
	"github.com/example/frameview/internal/state"
	"github.com/example/frameview/internal/surface"
)

// Stream is the part of a stream.Stream the API reads and controls.
type Stream interface {
	ImgInitted() bool
	ImgLoading() bool
	Phase() pump.Phase
	Stats() pump.Stats

	Connected() bool
	Active() bool
	Loading() bool
	ReconnectEnabled() bool
	SetReconnectEnabled(on bool)
	Retry() error
}

type Display interface {
	Payload() ([]byte, string, bool)
	Stats() surface.Stats
}

type Deps struct {
	Stream    Stream
	Display   Display
	Published *state.Published
	Blobs     interface{ Stats() blob.Stats }
}

type ImageStatus struct {
	Initted bool   `json:"initted"`
	Loading bool   `json:"loading"`
	Phase   string `json:"phase"`
}

type ConnectionStatus struct {
	Connected        bool `json:"connected"`
	Active           bool `json:"active"`
	Loading          bool `json:"loading"`
	ReconnectEnabled bool `json:"reconnect_enabled"`
}

type StatsResponse struct {
	State      state.Snapshot   `json:"state"`
	Image      ImageStatus      `json:"image"`
	Connection ConnectionStatus `json:"connection"`
	Pump       pump.Stats       `json:"pump"`
	Surface    surface.Stats    `json:"surface"`
	Blobs      blob.Stats       `json:"blobs"`
}

type Server struct {
	deps       Deps
	router     *gin.Engine
	httpServer *http.Server
	started    time.Time
}

func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, started: time.Now()}

	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/stats", s.handleStats)
		api.GET("/frame", s.handleFrame)
		api.POST("/retry", s.handleRetry)
		api.PUT("/reconnect", s.handleReconnect)
	}

	s.router = r
	return s
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debugf("status: %s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Handler: s.router}
	go func() {
		logging.Infof("Status API listening on http://%s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Errorf("Status server error: %v", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	st := s.deps.Stream
	resp := StatsResponse{
		State: s.deps.Published.Snapshot(),
		Image: ImageStatus{
			Initted: st.ImgInitted(),
			Loading: st.ImgLoading(),
			Phase:   st.Phase().String(),
		},
		Connection: ConnectionStatus{
			Connected:        st.Connected(),
			Active:           st.Active(),
			Loading:          st.Loading(),
			ReconnectEnabled: st.ReconnectEnabled(),
		},
		Pump:    st.Stats(),
		Surface: s.deps.Display.Stats(),
		Blobs:   s.deps.Blobs.Stats(),
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFrame(c *gin.Context) {
	data, mime, ok := s.deps.Display.Payload()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	if ts, known := s.deps.Published.FrameTimestamp.Get(); known {
		c.Header("X-Frame-Timestamp", strconv.FormatFloat(ts, 'f', -1, 64))
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, mime, data)
}

func (s *Server) handleRetry(c *gin.Context) {
	if err := s.deps.Stream.Retry(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, conn.ErrClosed) {
			code = http.StatusConflict
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "reconnecting"})
}

func (s *Server) handleReconnect(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.deps.Stream.SetReconnectEnabled(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"reconnect_enabled": s.deps.Stream.ReconnectEnabled()})
}
