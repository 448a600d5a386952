package server

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"flowdesk/internal/collaborators"
	"flowdesk/internal/config"
	"flowdesk/internal/database"
	"flowdesk/internal/directory"
	"flowdesk/internal/invitations"
	"flowdesk/internal/storage"
	"flowdesk/internal/templates"
	"flowdesk/internal/workflows"
)

type Server struct {
	cfg           *config.Config
	store         database.Store
	log           *slog.Logger
	sessionSecret []byte

	directory     *directory.Manager
	invitations   *invitations.Manager
	workflows     *workflows.Manager
	collaborators *collaborators.Registry
	templates     *templates.Manager
}

func (s *Server) GetConfig() *config.Config { return s.cfg }
func (s *Server) GetLogger() *slog.Logger { return s.log }
func (s *Server) GetDirectory() *directory.Manager { return s.directory }
func (s *Server) GetInvitations() *invitations.Manager { return s.invitations }
func (s *Server) GetWorkflows() *workflows.Manager { return s.workflows }
func (s *Server) GetCollaborators() *collaborators.Registry { return s.collaborators }
func (s *Server) GetTemplates() *templates.Manager { return s.templates }

// New builds the managers over store and blobs. The caller keeps ownership
// of both and closes them after the HTTP server has shut down.
func New(cfg *config.Config, store database.Store, blobs storage.BlobStore, log *slog.Logger) *Server {
	secret := []byte(cfg.Session.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		log.Warn("session.secret is not set; sessions will not survive a restart")
	}

	return &Server{
		cfg:           cfg,
		store:         store,
		log:           log,
		sessionSecret: secret,
		directory:     directory.New(store, log),
		invitations:   invitations.New(store, log, invitations.WithTTL(cfg.Invitations.TTL)),
		workflows:     workflows.New(store, log),
		collaborators: collaborators.New(store, log),
		templates:     templates.New(store, blobs, log),
	}
}

// HTTPServer declares the listener for s.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}
