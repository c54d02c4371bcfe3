package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/hostbridge/internal/auth"
	"github.com/danmuck/hostbridge/internal/bridge"
	"github.com/danmuck/hostbridge/internal/logs"
	"github.com/danmuck/hostbridge/internal/observability"
	"github.com/danmuck/hostbridge/internal/protocol/session"
	"github.com/danmuck/hostbridge/internal/relay"
	"github.com/danmuck/hostbridge/internal/windowmode"
)

const component = "admin"

// Backend is the plugin surface the admin API drives. Every method must be
// safe off the host thread. *bridge.Plugin satisfies it.
type Backend interface {
	Status() bridge.Status
	WindowNames() []string
	RequestWindowMode(name string, mode windowmode.Mode) error
	PostConsole(text string, color session.RGB)
	RequestControllerATIS(callsign string) error
}

type Options struct {
	Listen      string
	CorsOrigins []string
	Logger      zerolog.Logger
	Version     string
	// Token guards the action routes; empty leaves them open.
	Token       string
}

type Server struct {
	opts      Options
	backend   Backend
	router    *gin.Engine
	startedAt time.Time
}

func New(opts Options, backend Backend) *Server {
	observability.RegisterMetrics()
	s := &Server{opts: opts, backend: backend, startedAt: time.Now()}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(s.opts.Logger))
	r.Use(observability.RequestMetrics(component))
	if len(s.opts.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  s.opts.CorsOrigins,
			AllowMethods:  []string{"GET", "POST"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", observability.RequestIDHeader},
			ExposeHeaders: []string{observability.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/health", s.health)
	r.GET("/status", s.status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/windows", s.windows)

	actions := r.Group("/", requireToken(auth.ForToken(s.opts.Token)))
	actions.POST("/windows/:name/mode", s.windowMode)
	actions.POST("/console", s.console)
	actions.POST("/atis/:callsign", s.atis)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logs.Infof("admin.Server.Run listen=%s", s.opts.Listen)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logs.Infof("admin.Server.Run stopped")
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	st := s.backend.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).String(),
		"service": "hostbridge",
		"version": s.opts.Version,
		"enabled": st.Enabled,
		"relay":   st.Relay,
	})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Status())
}

func (s *Server) windows(c *gin.Context) {
	st := s.backend.Status()
	out := make([]gin.H, 0)
	for _, name := range s.backend.WindowNames() {
		mode, open := st.Windows[name]
		if !open {
			mode = windowmode.ModeNone.String()
		}
		out = append(out, gin.H{"name": name, "open": open, "mode": mode})
	}
	c.JSON(http.StatusOK, gin.H{"windows": out})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) windowMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := windowmode.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := c.Param("name")
	if err := s.backend.RequestWindowMode(name, mode); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "window": name, "mode": mode.String()})
}

type consoleRequest struct {
	Text  string  `json:"text" binding:"required"`
	Color *uint32 `json:"color"`
}

func (s *Server) console(c *gin.Context) {
	var req consoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	color := session.White
	if req.Color != nil {
		if *req.Color > 0xFFFFFF {
			c.JSON(http.StatusBadRequest, gin.H{"error": "color must be 0xRRGGBB"})
			return
		}
		color = session.RGB(*req.Color)
	}
	s.backend.PostConsole(req.Text, color)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (s *Server) atis(c *gin.Context) {
	callsign := c.Param("callsign")
	if err := s.backend.RequestControllerATIS(callsign); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent", "callsign": callsign})
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, open := v.(auth.Open); open {
			c.Next()
			return
		}
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			err = v.Validate(token)
		}
		if err != nil {
			logs.Warnf("admin.requireToken denied request_id=%s path=%s", c.GetString("request_id"), c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, bridge.ErrUnknownWindow):
		return http.StatusNotFound
	case errors.Is(err, windowmode.ErrWindowClosed):
		return http.StatusConflict
	case errors.Is(err, relay.ErrNotConnected), errors.Is(err, relay.ErrOutboxFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
