package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flowdesk/internal/models"
	"flowdesk/internal/workflows"
)

type WorkflowRoutes struct {
	server ServerInterface
}

func NewWorkflowRoutes(server ServerInterface) *WorkflowRoutes {
	return &WorkflowRoutes{server: server}
}

func (wr *WorkflowRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(wr.server)

	// Creation is open to anonymous callers; the creator is recorded as the
	// anonymous sentinel.
	r.POST("/workflows", wr.createWorkflowHandler)

	wfs := r.Group("/workflows")
	wfs.Use(middleware.AuthMiddleware())
	{
		wfs.GET("", wr.listWorkflowsHandler)
		wfs.GET("/:id", wr.getWorkflowHandler)
		wfs.PUT("/:id", wr.updateWorkflowHandler)
		wfs.DELETE("/:id", wr.deleteWorkflowHandler)
		wfs.PUT("/:id/access-level", wr.setAccessLevelHandler)
		wfs.GET("/:id/history", wr.historyHandler)
	}
}

func (wr *WorkflowRoutes) createWorkflowHandler(c *gin.Context) {
	var in workflows.CreateInput
	if !bindJSON(c, &in) {
		return
	}

	wf, err := wr.server.GetWorkflows().Create(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"workflow": wf})
}

func (wr *WorkflowRoutes) listWorkflowsHandler(c *gin.Context) {
	list, err := wr.server.GetWorkflows().List(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": list})
}

func (wr *WorkflowRoutes) getWorkflowHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	wf, err := wr.server.GetWorkflows().Get(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow": wf})
}

// updateWorkflowRequest is a patch plus the version the client last saw.
type updateWorkflowRequest struct {
	workflows.Patch
	ExpectedVersion *int `json:"expected_version"`
}

func (wr *WorkflowRoutes) updateWorkflowHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateWorkflowRequest
	if !bindJSON(c, &req) {
		return
	}

	wf, err := wr.server.GetWorkflows().Update(c.Request.Context(), id, req.Patch, req.ExpectedVersion, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow": wf})
}

func (wr *WorkflowRoutes) deleteWorkflowHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := wr.server.GetWorkflows().Delete(c.Request.Context(), id, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Workflow deleted successfully"})
}

type accessLevelRequest struct {
	AccessLevel models.AccessLevel `json:"access_level"`
}

func (wr *WorkflowRoutes) setAccessLevelHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req accessLevelRequest
	if !bindJSON(c, &req) {
		return
	}

	wf, err := wr.server.GetWorkflows().SetAccessLevel(c.Request.Context(), id, req.AccessLevel, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow": wf})
}

func (wr *WorkflowRoutes) historyHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	history, err := wr.server.GetWorkflows().History(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}
