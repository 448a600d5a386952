package routes

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/markbates/goth/gothic"

	"flowdesk/internal/auth"
)

type AuthRoutes struct {
	server ServerInterface
}

func NewAuthRoutes(server ServerInterface) *AuthRoutes {
	return &AuthRoutes{server: server}
}

func (ar *AuthRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(ar.server)

	r.GET("/auth/:provider", ar.authHandler)
	r.GET("/auth/:provider/callback", ar.authCallbackHandler)
	r.GET("/logout", ar.logoutHandler)
	r.GET("/me", middleware.AuthMiddleware(), ar.meHandler)
}

// gothicRequest rewrites the request the way gothic expects: the provider is
// read from the query string.
func gothicRequest(c *gin.Context, path string) *http.Request {
	provider := c.Param("provider")

	req := c.Request.Clone(c.Request.Context())
	req.URL.Path = path

	q := req.URL.Query()
	q.Set("provider", provider)
	req.URL.RawQuery = q.Encode()
	return req
}

func (ar *AuthRoutes) authHandler(c *gin.Context) {
	req := gothicRequest(c, "/auth/"+c.Param("provider"))
	gothic.BeginAuthHandler(c.Writer, req)
}

func (ar *AuthRoutes) authCallbackHandler(c *gin.Context) {
	req := gothicRequest(c, "/auth/"+c.Param("provider")+"/callback")

	gothUser, err := gothic.CompleteUserAuth(c.Writer, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := ar.server.GetDirectory().EnsureIdentity(c.Request.Context(), auth.IdentityFromUser(gothUser))
	if err != nil {
		respondError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserKey, entry.ID)
	if err := session.Save(); err != nil {
		respondError(c, err)
		return
	}

	ar.server.GetLogger().Info("user signed in", "user_id", entry.ID, "provider", gothUser.Provider)
	c.Redirect(http.StatusTemporaryRedirect, ar.server.GetConfig().Auth.FrontendURL+"/home")
}

func (ar *AuthRoutes) logoutHandler(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	_ = gothic.Logout(c.Writer, c.Request)

	c.Redirect(http.StatusFound, ar.server.GetConfig().Auth.FrontendURL+"/")
}

func (ar *AuthRoutes) meHandler(c *gin.Context) {
	entry, err := ar.server.GetDirectory().Me(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": entry, "authenticated": true})
}
