package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flowdesk/internal/apperr"
	"flowdesk/internal/models"
)

type InvitationRoutes struct {
	server ServerInterface
}

func NewInvitationRoutes(server ServerInterface) *InvitationRoutes {
	return &InvitationRoutes{server: server}
}

func (ir *InvitationRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(ir.server)

	r.POST("/invitations", middleware.AuthMiddleware(), ir.inviteHandler)
	r.GET("/invitations", middleware.AuthMiddleware(), ir.listPendingHandler)
	r.POST("/invitations/resend/:id", middleware.AuthMiddleware(), ir.resendHandler)

	// Verification is public so the invitee can see the invitation before
	// signing in.
	r.GET("/invitations/:token/verify", ir.verifyHandler)
	r.POST("/invitations/:token/accept", middleware.AuthMiddleware(), ir.acceptHandler)
}

type inviteRequest struct {
	Email     string      `json:"email"`
	FullName  *string     `json:"full_name"`
	Role      models.Role `json:"role"`
	CompanyID string      `json:"company_id"`
}

// issued is the response for a freshly created or resent invitation. The
// token is only ever returned to the admin who issued it.
func (ir *InvitationRoutes) issued(token string, inv *models.Invitation) gin.H {
	return gin.H{
		"invitation": inv,
		"token":      token,
		"accept_url": inv.AcceptURL(ir.server.GetConfig().Invitations.AcceptURL),
	}
}

func (ir *InvitationRoutes) inviteHandler(c *gin.Context) {
	var req inviteRequest
	if !bindJSON(c, &req) {
		return
	}
	actor := actorFrom(c)
	if req.CompanyID != "" && req.CompanyID != actor.CompanyID {
		respondError(c, apperr.Forbidden("you can only invite into your own company"))
		return
	}

	token, inv, err := ir.server.GetInvitations().Invite(c.Request.Context(), actor, req.Email, req.FullName, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ir.issued(token, inv))
}

func (ir *InvitationRoutes) listPendingHandler(c *gin.Context) {
	pending, err := ir.server.GetInvitations().ListPending(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": pending})
}

func (ir *InvitationRoutes) resendHandler(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	token, inv, err := ir.server.GetInvitations().Resend(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ir.issued(token, inv))
}

func (ir *InvitationRoutes) verifyHandler(c *gin.Context) {
	v, err := ir.server.GetInvitations().Verify(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (ir *InvitationRoutes) acceptHandler(c *gin.Context) {
	inv, err := ir.server.GetInvitations().Complete(c.Request.Context(), c.Param("token"), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitation": inv})
}
