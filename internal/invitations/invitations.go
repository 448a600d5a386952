// Package invitations manages email invitations that grant a role within a
// company: create, verify, complete and resend.
package invitations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"flowdesk/internal/apperr"
	"flowdesk/internal/database"
	"flowdesk/internal/logging"
	"flowdesk/internal/models"
)

// Manager runs the invitation lifecycle against a persistence gateway.
type Manager struct {
	db       database.Gateway
	log      logging.Logger
	ttl      time.Duration
	now      func() time.Time
	newToken func() (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides how long new and resent invitations stay acceptable.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces the wall clock used for expiry and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTokenSource replaces the random invitation token generator.
func WithTokenSource(fn func() (string, error)) Option {
	return func(m *Manager) { m.newToken = fn }
}

// New returns a Manager with the default invitation lifetime.
func New(db database.Gateway, log logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		db:       db,
		log:      log,
		ttl:      models.DefaultInvitationTTL,
		now:      time.Now,
		newToken: randomToken,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// randomToken returns a version 4 UUID: 122 random bits.
func randomToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NormalizeEmail lowercases and trims an address so lookups and the
// one-pending-per-email rule are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateInput describes an invitation to create.
type CreateInput struct {
	Email     string
	FullName  *string
	Role      models.Role
	CompanyID string
	InvitedBy string
}

func normalizeCreateInput(in CreateInput) (CreateInput, error) {
	in.Email = NormalizeEmail(in.Email)
	in.CompanyID = strings.TrimSpace(in.CompanyID)
	in.InvitedBy = strings.TrimSpace(in.InvitedBy)
	in.Role = models.Role(strings.TrimSpace(string(in.Role)))
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			in.FullName = nil
		} else {
			in.FullName = &name
		}
	}

	var missing []string
	if in.Email == "" {
		missing = append(missing, "email")
	}
	if in.Role == "" {
		missing = append(missing, "role")
	}
	if in.CompanyID == "" {
		missing = append(missing, "company id")
	}
	if in.InvitedBy == "" {
		missing = append(missing, "invited by")
	}
	if len(missing) > 0 {
		return CreateInput{}, apperr.Validation("missing required fields: " + strings.Join(missing, ", "))
	}
	if !strings.Contains(in.Email, "@") {
		return CreateInput{}, apperr.Validation("email is not a valid address")
	}
	if !in.Role.Valid() {
		return CreateInput{}, apperr.Validation("role must be one of admin, manager, general-user")
	}
	return in, nil
}

// Create stores a new pending invitation and returns its token. Older
// pending invitations for the same email are superseded in the same
// transaction. A concurrent create for the same email surfaces as Conflict;
// the caller should resend the existing invitation instead.
func (m *Manager) Create(ctx context.Context, in CreateInput) (string, *models.Invitation, error) {
	in, err := normalizeCreateInput(in)
	if err != nil {
		return "", nil, err
	}

	token, err := m.newToken()
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindUnknown, "generate invitation token", err)
	}

	now := m.now().UTC()
	inv := &models.Invitation{
		Email:       in.Email,
		FullName:    in.FullName,
		Role:        in.Role,
		CompanyID:   in.CompanyID,
		InviteToken: token,
		Status:      models.InvitationPending,
		InvitedBy:   in.InvitedBy,
		ExpiresAt:   now.Add(m.ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var superseded int64
	err = m.db.Transaction(ctx, func(tx database.Gateway) error {
		n, err := tx.Invitations().DeletePendingByEmail(ctx, in.Email, "")
		if err != nil {
			return err
		}
		superseded = n
		return tx.Invitations().Create(ctx, inv)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return "", nil, apperr.Conflict("a pending invitation already exists for this email; resend it instead", nil)
		}
		return "", nil, err
	}

	m.log.Info("invitation created",
		"invitation_id", inv.ID,
		"company_id", inv.CompanyID,
		"role", inv.Role,
		"superseded", superseded,
	)
	return token, inv, nil
}

// Invite creates an invitation on behalf of an admin into the admin's own company.
func (m *Manager) Invite(ctx context.Context, actor models.Actor, email string, fullName *string, role models.Role) (string, *models.Invitation, error) {
	if err := requireAdmin(actor); err != nil {
		return "", nil, err
	}
	return m.Create(ctx, CreateInput{
		Email:     email,
		FullName:  fullName,
		Role:      role,
		CompanyID: actor.CompanyID,
		InvitedBy: actor.UserID,
	})
}

func requireAdmin(actor models.Actor) error {
	if !actor.Authenticated() {
		return apperr.Unauthenticated("authentication required")
	}
	if actor.CompanyID == "" || !actor.IsAdmin() {
		return apperr.Forbidden("only company admins can manage invitations")
	}
	return nil
}

// Verification is the outcome of looking up a token.
type Verification struct {
	Valid      bool               `json:"valid"`
	Invitation *models.Invitation `json:"invitation,omitempty"`
}

// Verify looks up a pending invitation by token. An unknown or already used
// token is reported as Valid=false with a nil error; storage failures are
// returned as errors. A matching invitation past its expiry returns Expired.
func (m *Manager) Verify(ctx context.Context, token string) (Verification, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Verification{}, nil
	}

	inv, err := m.findPending(ctx, token)
	if errors.Is(err, apperr.ErrNotFound) {
		return Verification{}, nil
	}
	if err != nil {
		return Verification{}, err
	}
	if inv.IsExpired(m.now()) {
		return Verification{}, apperr.Expired("invitation has expired")
	}
	return Verification{Valid: true, Invitation: inv}, nil
}

// findPending prefers the pending_invitations view and falls back to the
// base table when the view is missing.
func (m *Manager) findPending(ctx context.Context, token string) (*models.Invitation, error) {
	inv, err := m.db.Invitations().FindPendingByTokenView(ctx, token)
	if errors.Is(err, database.ErrViewUnavailable) {
		m.log.Warn("pending invitations view unavailable, reading base table")
		return m.db.Invitations().FindPendingByToken(ctx, token)
	}
	return inv, err
}

// Complete accepts the invitation with token for acceptor. In one
// transaction it removes other pending invitations for the acceptor's email,
// marks this one accepted with the acceptor's email, and grants the
// invitation's role and company on the acceptor's directory entry.
func (m *Manager) Complete(ctx context.Context, token string, acceptor models.Actor) (*models.Invitation, error) {
	token = strings.TrimSpace(token)
	email := NormalizeEmail(acceptor.Email)
	if token == "" || email == "" {
		return nil, apperr.Validation("token and accepting email are required")
	}

	now := m.now().UTC()
	var accepted *models.Invitation
	err := m.db.Transaction(ctx, func(tx database.Gateway) error {
		inv, err := tx.Invitations().FindPendingByToken(ctx, token)
		if err != nil {
			return err
		}
		if inv.IsExpired(now) {
			return apperr.Expired("invitation has expired")
		}

		if _, err := tx.Invitations().DeletePendingByEmail(ctx, email, token); err != nil {
			return err
		}
		accepted, err = tx.Invitations().Accept(ctx, token, email, now)
		if err != nil {
			return err
		}

		if acceptor.Authenticated() {
			return grantMembership(ctx, tx, acceptor, accepted, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("invitation accepted",
		"invitation_id", accepted.ID,
		"company_id", accepted.CompanyID,
		"user_id", acceptor.UserID,
	)
	return accepted, nil
}

func grantMembership(ctx context.Context, tx database.Gateway, acceptor models.Actor, inv *models.Invitation, now time.Time) error {
	name := strings.TrimSpace(acceptor.FullName)
	if name == "" && inv.FullName != nil {
		name = *inv.FullName
	}

	entry, err := tx.Directory().Get(ctx, acceptor.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return tx.Directory().Create(ctx, &models.DirectoryEntry{
			ID:        acceptor.UserID,
			Email:     inv.Email,
			FullName:  name,
			Role:      inv.Role,
			CompanyID: inv.CompanyID,
			Status:    models.EntryActive,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err != nil {
		return err
	}
	if entry.CompanyID != "" && entry.CompanyID != inv.CompanyID {
		return apperr.Conflict("you already belong to another company", nil)
	}
	if entry.CompanyID == inv.CompanyID && entry.Role == models.RoleAdmin && inv.Role != models.RoleAdmin {
		last, err := isLastAdmin(ctx, tx, entry)
		if err != nil {
			return err
		}
		if last {
			return apperr.Conflict("the last admin of a company cannot accept a lower role", nil)
		}
	}

	entry.Email = inv.Email
	entry.Role = inv.Role
	entry.CompanyID = inv.CompanyID
	entry.Status = models.EntryActive
	if entry.FullName == "" {
		entry.FullName = name
	}
	entry.UpdatedAt = now
	return tx.Directory().Update(ctx, entry)
}

// isLastAdmin reports whether entry is the only active admin of its company.
func isLastAdmin(ctx context.Context, tx database.Gateway, entry *models.DirectoryEntry) (bool, error) {
	roster, err := tx.Directory().ListByCompany(ctx, entry.CompanyID)
	if err != nil {
		return false, err
	}
	for _, e := range roster {
		if e.ID != entry.ID && e.Role == models.RoleAdmin && e.Status == models.EntryActive {
			return false, nil
		}
	}
	return true, nil
}

// ListPending returns the pending invitations of the admin's company.
func (m *Manager) ListPending(ctx context.Context, actor models.Actor) ([]models.Invitation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return m.db.Invitations().ListPending(ctx, actor.CompanyID)
}

// Resend rotates the token of a pending invitation and restarts its expiry.
// The previous token stops working.
func (m *Manager) Resend(ctx context.Context, id uuid.UUID, actor models.Actor) (string, *models.Invitation, error) {
	if err := requireAdmin(actor); err != nil {
		return "", nil, err
	}

	inv, err := m.db.Invitations().Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if inv.CompanyID != actor.CompanyID {
		return "", nil, apperr.NotFound("invitation not found")
	}
	if !inv.IsPending() {
		return "", nil, apperr.Conflict(fmt.Sprintf("invitation is %s, not pending", inv.Status), inv)
	}

	token, err := m.newToken()
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindUnknown, "generate invitation token", err)
	}
	now := m.now().UTC()
	refreshed, err := m.db.Invitations().Refresh(ctx, id, token, now.Add(m.ttl), now)
	if err != nil {
		return "", nil, err
	}

	m.log.Info("invitation resent", "invitation_id", id, "company_id", inv.CompanyID)
	return token, refreshed, nil
}
