// Package httpapi exposes the scheduler and the attendance engine over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusevents/internal/actionlog"
	"campusevents/internal/attendance"
	"campusevents/internal/auth"
	"campusevents/internal/clock"
	"campusevents/internal/domain"
	"campusevents/internal/httpmiddleware"
	"campusevents/internal/logx"
	"campusevents/internal/scheduler"
)

// Config holds the HTTP-facing settings.
type Config struct {
	JWTIssuer       string
	JWTSigningKey   string
	AccessTTL       time.Duration
	RateLimitPerMin int
	// DevTokens enables POST /v1/auth/token, which mints tokens for any
	// subject and role. Never enable outside development.
	DevTokens bool
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// ActionHistory lists the persisted action log of an event.
type ActionHistory interface {
	List(ctx context.Context, eventID string) ([]actionlog.Entry, error)
}

// Deps are the collaborators the handlers call into. Actions is optional;
// without it the action-log route is not registered.
type Deps struct {
	Events     domain.EventRepository
	Scheduler  *scheduler.Service
	Attendance *attendance.Service
	Actions    ActionHistory
	Clock      clock.Clock
	Log        logx.Logger
	Gatherer   prometheus.Gatherer
	Health     map[string]HealthCheck
	Limiter    *httpmiddleware.RateLimiter
}

// Server builds the gin router.
type Server struct {
	cfg  Config
	deps Deps
	log  logx.Logger
}

func New(cfg Config, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Limiter == nil {
		deps.Limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, deps: deps, log: log.With(logx.String("component", "http"))}
}

// Router returns the configured engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log, "/healthz", "/metrics"))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(s.deps.Limiter.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.healthz)

	if s.cfg.DevTokens {
		r.POST("/v1/auth/token", s.issueToken)
	}

	v1 := r.Group("/v1", auth.Bearer(s.cfg.JWTSigningKey, s.cfg.JWTIssuer))
	organizer := auth.RequireRole(auth.RoleOrganizer)
	student := auth.RequireRole(auth.RoleStudent)
	admin := auth.RequireRole()

	v1.POST("/events", organizer, s.createEvent)
	v1.GET("/events/:id", s.getEvent)
	v1.PUT("/events/:id", organizer, s.updateEvent)
	v1.DELETE("/events/:id", organizer, s.deleteEvent)
	v1.POST("/events/:id/approve", admin, s.approveEvent)
	v1.POST("/events/:id/decline", admin, s.declineEvent)
	v1.POST("/events/:id/cancel", organizer, s.cancelEvent)
	v1.GET("/events/:id/triggers", organizer, s.pendingTriggers)
	if s.deps.Actions != nil {
		v1.GET("/events/:id/actions", organizer, s.actionHistory)
	}

	v1.GET("/events/:id/sessions", s.sessions)
	v1.GET("/events/:id/sessions/active", s.activeSessions)
	v1.POST("/events/:id/attendance", student, s.mark)
	v1.GET("/events/:id/attendance", organizer, s.records)
	v1.GET("/events/:id/attendance/me", student, s.myRecord)
	v1.DELETE("/events/:id/attendance/me", student, s.cancelRegistration)
	v1.POST("/events/:id/finalize/:student", organizer, s.finalize)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	body := gin.H{"status": "ok", "queued_triggers": s.deps.Scheduler.QueueLen()}
	for name, check := range s.deps.Health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) issueToken(c *gin.Context) {
	var req struct {
		Subject string `json:"subject" binding:"required"`
		Role    string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tok, err := auth.Issue(req.Subject, req.Role, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, tok)
}
