package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"flowdesk/internal/auth"
	"flowdesk/internal/server/routes"
)

const sessionName = "flowdesk-session"

func (s *Server) RegisterRoutes() http.Handler {
	providers := auth.InitGothProviders(s.cfg, s.sessionSecret)
	s.log.Info("oauth providers registered", "providers", providers)

	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	store := cookie.NewStore(s.sessionSecret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	if len(s.cfg.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
			AllowHeaders:     []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
		}))
	}

	r.GET("/health", s.healthHandler)

	middleware := routes.NewMiddleware(s)
	r.Use(middleware.ActorMiddleware())

	routes.NewAuthRoutes(s).RegisterRoutes(r)
	routes.NewEmployeeRoutes(s).RegisterRoutes(r)
	routes.NewInvitationRoutes(s).RegisterRoutes(r)
	routes.NewWorkflowRoutes(s).RegisterRoutes(r)
	routes.NewCollaboratorRoutes(s).RegisterRoutes(r)
	routes.NewTemplateRoutes(s).RegisterRoutes(r)

	return r
}

func (s *Server) healthHandler(c *gin.Context) {
	stats := s.store.Health(c.Request.Context())
	if stats["status"] != "up" {
		c.JSON(http.StatusServiceUnavailable, stats)
		return
	}
	c.JSON(http.StatusOK, stats)
}
