package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flowdesk/internal/templates"
)

type TemplateRoutes struct {
	server ServerInterface
}

func NewTemplateRoutes(server ServerInterface) *TemplateRoutes {
	return &TemplateRoutes{server: server}
}

func (tr *TemplateRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(tr.server)

	// Template routes - all require authentication; the company comes from
	// the actor.
	tpl := r.Group("/templates")
	tpl.Use(middleware.AuthMiddleware())
	{
		tpl.POST("", tr.createTemplateHandler)
		tpl.GET("", tr.listTemplatesHandler)
		tpl.GET("/:id", tr.getTemplateHandler)
		tpl.PUT("/:id", tr.updateTemplateHandler)
		tpl.DELETE("/:id", tr.deleteTemplateHandler)
	}
}

func (tr *TemplateRoutes) createTemplateHandler(c *gin.Context) {
	var in templates.Input
	if !bindJSON(c, &in) {
		return
	}

	view, err := tr.server.GetTemplates().Create(c.Request.Context(), in, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"template": view})
}

func (tr *TemplateRoutes) listTemplatesHandler(c *gin.Context) {
	list, err := tr.server.GetTemplates().List(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"templates": list,
		"count":     len(list),
	})
}

func (tr *TemplateRoutes) getTemplateHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	view, err := tr.server.GetTemplates().Get(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": view})
}

type updateTemplateRequest struct {
	templates.Patch
	ExpectedVersion *int `json:"expected_version"`
}

func (tr *TemplateRoutes) updateTemplateHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateTemplateRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := tr.server.GetTemplates().Update(c.Request.Context(), id, req.Patch, req.ExpectedVersion, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": view})
}

func (tr *TemplateRoutes) deleteTemplateHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := tr.server.GetTemplates().Delete(c.Request.Context(), id, actorFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Template deleted successfully"})
}
