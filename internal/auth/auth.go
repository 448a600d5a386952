// Package auth wires the OAuth login providers and turns provider users into
// directory identities.
package auth

import (
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/github"
	"github.com/markbates/goth/providers/google"

	"flowdesk/internal/config"
	"flowdesk/internal/directory"
)

const stateMaxAge = 60 * 10

// InitGothProviders registers every provider with credentials in cfg and
// points gothic at a cookie store signed with secret. It returns the names of
// the registered providers.
func InitGothProviders(cfg *config.Config, secret []byte) []string {
	store := sessions.NewCookieStore(secret)
	store.MaxAge(stateMaxAge)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = cfg.IsProduction()
	store.Options.SameSite = http.SameSiteLaxMode
	gothic.Store = store

	var providers []goth.Provider
	if cfg.Auth.Google.Key != "" {
		providers = append(providers, google.New(
			cfg.Auth.Google.Key,
			cfg.Auth.Google.Secret,
			CallbackURL(cfg, "google"),
			"email", "profile",
		))
	}
	if cfg.Auth.GitHub.Key != "" {
		providers = append(providers, github.New(
			cfg.Auth.GitHub.Key,
			cfg.Auth.GitHub.Secret,
			CallbackURL(cfg, "github"),
			"user:email",
		))
	}
	goth.ClearProviders()
	goth.UseProviders(providers...)

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return names
}

func CallbackURL(cfg *config.Config, provider string) string {
	return cfg.Auth.CallbackBaseURL + "/auth/" + provider + "/callback"
}

// IdentityFromUser maps a provider user to a directory identity. IDs are
// namespaced by provider so the same numeric id from two providers never
// collides.
func IdentityFromUser(u goth.User) directory.Identity {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		name = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	if name == "" {
		name = u.NickName
	}
	return directory.Identity{
		ID:       u.Provider + ":" + u.UserID,
		Email:    u.Email,
		FullName: name,
	}
}
