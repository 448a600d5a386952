package routes

import (
	"errors"
	"log/slog"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"flowdesk/internal/apperr"
	"flowdesk/internal/collaborators"
	"flowdesk/internal/config"
	"flowdesk/internal/directory"
	"flowdesk/internal/invitations"
	"flowdesk/internal/models"
	"flowdesk/internal/templates"
	"flowdesk/internal/workflows"
)

const (
	sessionUserKey = "user_id"
	actorKey       = "actor"
)

// ServerInterface is what the route groups need from the server.
type ServerInterface interface {
	GetConfig() *config.Config
	GetLogger() *slog.Logger
	GetDirectory() *directory.Manager
	GetInvitations() *invitations.Manager
	GetWorkflows() *workflows.Manager
	GetCollaborators() *collaborators.Registry
	GetTemplates() *templates.Manager
}

type Middleware struct {
	server ServerInterface
}

func NewMiddleware(server ServerInterface) *Middleware {
	return &Middleware{server: server}
}

// ActorMiddleware resolves the session user into a models.Actor and stores it
// in the context. Requests without a session, or whose user has no directory
// entry any more, continue as anonymous.
func (m *Middleware) ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, _ := session.Get(sessionUserKey).(string)
		if userID == "" {
			c.Set(actorKey, models.Actor{})
			c.Next()
			return
		}

		entry, err := m.server.GetDirectory().Me(c.Request.Context(), models.Actor{UserID: userID})
		if errors.Is(err, apperr.ErrNotFound) {
			session.Clear()
			_ = session.Save()
			c.Set(actorKey, models.Actor{})
			c.Next()
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(actorKey, models.ActorFromEntry(entry))
		c.Next()
	}
}

// AuthMiddleware rejects anonymous requests.
func (m *Middleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).Authenticated() {
			respondError(c, apperr.Unauthenticated("not authenticated"))
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(models.Actor)
	return actor
}
