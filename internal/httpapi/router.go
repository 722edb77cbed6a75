package httpapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/httpmiddleware"
)

// Options wires the router to its collaborators.
type Options struct {
	Service  *attendance.Service
	Sessions auth.Sessions
	Limiter  httpmiddleware.Limiter
	Logger   *zap.Logger
	// PublicBaseURL is the student-facing origin used in join links and QR codes.
	PublicBaseURL string
	CORSOrigins   []string
	// Checks are reported by /healthz; any false check makes it return 503.
	Checks map[string]func(context.Context) bool
}

type server struct {
	svc      *attendance.Service
	sessions auth.Sessions
	logger   *zap.Logger
	baseURL  string
}

// NewRouter builds the gin engine serving the public and instructor APIs.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{
		svc:      opts.Service,
		sessions: opts.Sessions,
		logger:   logger,
		baseURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(logger, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(opts.Checks))

	r.POST("/v1/auth/refresh", s.refresh)

	public := r.Group("/v1/public")
	if opts.Limiter != nil {
		public.Use(httpmiddleware.Middleware(opts.Limiter, logger))
	}
	public.GET("/sheets/:id", s.publicSheet)
	public.POST("/sheets/:id/signins", s.signIn)

	instructor := r.Group("/v1", auth.InstructorAuth(opts.Sessions.Issuer))
	instructor.GET("/sheets", s.listSheets)
	instructor.POST("/sheets", s.createSheet)
	instructor.GET("/sheets/:id", s.getSheet)
	instructor.PATCH("/sheets/:id", s.updateSheet)
	instructor.DELETE("/sheets/:id", s.deleteSheet)
	instructor.POST("/sheets/:id/activate", s.setActive(true))
	instructor.POST("/sheets/:id/deactivate", s.setActive(false))
	instructor.GET("/sheets/:id/log", s.sheetLog)
	instructor.GET("/sheets/:id/log.csv", s.sheetLogCSV)
	instructor.GET("/sheets/:id/qr.png", s.sheetQR)

	return r
}

func (s *server) joinURL(sheetID string) string {
	return s.baseURL + "/student?sheetId=" + url.QueryEscape(sheetID)
}

func (s *server) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pair, err := s.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.logger.Info("refresh rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func healthz(checks map[string]func(context.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		body := gin.H{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			ok := check(ctx)
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
