package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flowdesk/internal/models"
)

type CollaboratorRoutes struct {
	server ServerInterface
}

func NewCollaboratorRoutes(server ServerInterface) *CollaboratorRoutes {
	return &CollaboratorRoutes{server: server}
}

func (cr *CollaboratorRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(cr.server)

	r.GET("/workflows/:id/collaborators", middleware.AuthMiddleware(), cr.listHandler)
	r.POST("/workflows/:id/collaborators", middleware.AuthMiddleware(), cr.addHandler)
	r.DELETE("/collaborators/:id", middleware.AuthMiddleware(), cr.removeHandler)
}

func (cr *CollaboratorRoutes) listHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Anyone who can see the workflow can see who works on it.
	if _, err := cr.server.GetWorkflows().Get(ctx, id, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	list, err := cr.server.GetCollaborators().List(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": list})
}

type addCollaboratorRequest struct {
	UserID     string                `json:"user_id"`
	Permission models.PermissionType `json:"permission_type"`
}

func (cr *CollaboratorRoutes) addHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req addCollaboratorRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	actor := actorFrom(c)

	if _, err := cr.server.GetWorkflows().AuthorizeCollaborators(ctx, id, actor); err != nil {
		respondError(c, err)
		return
	}
	collaborator, err := cr.server.GetCollaborators().AddOrUpdate(ctx, id, req.UserID, req.Permission, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collaborator": collaborator})
}

func (cr *CollaboratorRoutes) removeHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	existing, err := cr.server.GetCollaborators().Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := cr.server.GetWorkflows().AuthorizeCollaborators(ctx, existing.WorkflowID, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	removed, err := cr.server.GetCollaborators().Remove(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collaborator": removed})
}
