// Package memory implements the persistence gateway with in-process maps. It
// enforces the same uniqueness rules as the Postgres schema and is used by
// unit tests and `--store=memory` development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowdesk/internal/apperr"
	"flowdesk/internal/database"
	"flowdesk/internal/models"
)

// Table names accepted by Fail.
const (
	TableInvitations   = "invitations"
	TableWorkflows     = "workflows"
	TableHistory       = "workflow_history"
	TableCollaborators = "workflow_collaborators"
	TableDirectory     = "directory_entries"
	TableCompanies     = "companies"
	TableTemplates     = "text_templates"
)

type tables struct {
	invitations   map[uuid.UUID]models.Invitation
	workflows     map[uuid.UUID]*models.Workflow
	history       []models.WorkflowHistory
	collaborators map[uuid.UUID]models.Collaborator
	directory     map[string]models.DirectoryEntry
	companies     map[string]models.Company
	templates     map[uuid.UUID]models.TextTemplate
}

func newTables() *tables {
	return &tables{
		invitations:   make(map[uuid.UUID]models.Invitation),
		workflows:     make(map[uuid.UUID]*models.Workflow),
		collaborators: make(map[uuid.UUID]models.Collaborator),
		directory:     make(map[string]models.DirectoryEntry),
		companies:     make(map[string]models.Company),
		templates:     make(map[uuid.UUID]models.TextTemplate),
	}
}

// txLog records how to undo the writes made inside one transaction. A nil
// log records nothing. Callers hold Store.mu.
type txLog struct {
	undo []func(*tables)
}

func (l *txLog) track(fn func(*tables)) {
	if l != nil {
		l.undo = append(l.undo, fn)
	}
}

// rollback reverts the tracked writes, newest first. Callers hold Store.mu.
func (l *txLog) rollback(t *tables) {
	for i := len(l.undo) - 1; i >= 0; i-- {
		l.undo[i](t)
	}
}

// trackKey records the current value of key in the map picked from t so a
// rollback can put it back or remove it.
func trackKey[K comparable, V any](l *txLog, t *tables, pick func(*tables) map[K]V, key K) {
	if l == nil {
		return
	}
	prev, existed := pick(t)[key]
	l.track(func(t *tables) {
		if existed {
			pick(t)[key] = prev
		} else {
			delete(pick(t), key)
		}
	})
}

func invitationsOf(t *tables) map[uuid.UUID]models.Invitation     { return t.invitations }
func workflowsOf(t *tables) map[uuid.UUID]*models.Workflow        { return t.workflows }
func collaboratorsOf(t *tables) map[uuid.UUID]models.Collaborator { return t.collaborators }
func directoryOf(t *tables) map[string]models.DirectoryEntry      { return t.directory }
func companiesOf(t *tables) map[string]models.Company             { return t.companies }
func templatesOf(t *tables) map[uuid.UUID]models.TextTemplate     { return t.templates }

// Option configures a Store.
type Option func(*Store)

// WithoutPendingView makes FindPendingByTokenView report
// database.ErrViewUnavailable, as a database missing the view would.
func WithoutPendingView() Option {
	return func(s *Store) { s.noView = true }
}

// Store is an in-memory database.Store.
type Store struct {
	mu     sync.Mutex // guards data and failures
	txMu   sync.Mutex // serializes top-level transactions
	data   *tables
	noView bool
	fails  map[string]error
}

var _ database.Store = (*Store)(nil)

func New(opts ...Option) *Store {
	s := &Store{data: newTables(), fails: make(map[string]error)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fail makes every operation on table return a Storage error wrapping err.
// A nil err clears the failure.
func (s *Store) Fail(table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fails, table)
		return
	}
	s.fails[table] = err
}

// lock acquires the data lock and reports an injected failure for table.
func (s *Store) lock(table string) error {
	s.mu.Lock()
	if err, ok := s.fails[table]; ok {
		s.mu.Unlock()
		return apperr.Storage(table, err)
	}
	return nil
}

func (s *Store) gateway(log *txLog) *gateway {
	return &gateway{s: s, log: log}
}

func (s *Store) Invitations() database.InvitationRepository {
	return s.gateway(nil).Invitations()
}
func (s *Store) Workflows() database.WorkflowRepository { return s.gateway(nil).Workflows() }
func (s *Store) History() database.HistoryRepository    { return s.gateway(nil).History() }
func (s *Store) Collaborators() database.CollaboratorRepository {
	return s.gateway(nil).Collaborators()
}
func (s *Store) Directory() database.DirectoryRepository { return s.gateway(nil).Directory() }
func (s *Store) Companies() database.CompanyRepository   { return s.gateway(nil).Companies() }
func (s *Store) Templates() database.TemplateRepository  { return s.gateway(nil).Templates() }

func (s *Store) Transaction(ctx context.Context, fn func(tx database.Gateway) error) error {
	return s.gateway(nil).Transaction(ctx, fn)
}

func (s *Store) Health(context.Context) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]string{
		"status":  "up",
		"message": "in-memory store",
	}
}

func (s *Store) Close() error { return nil }

// gateway is the Gateway handed to callers. Inside a transaction it shares
// the store's tables and tracks its own writes in log; rollback undoes only
// those, so writes made outside the transaction survive.
type gateway struct {
	s   *Store
	log *txLog
}

func (g *gateway) Invitations() database.InvitationRepository { return invitationRepo{g.s, g.log} }
func (g *gateway) Workflows() database.WorkflowRepository     { return workflowRepo{g.s, g.log} }
func (g *gateway) History() database.HistoryRepository        { return historyRepo{g.s, g.log} }
func (g *gateway) Collaborators() database.CollaboratorRepository {
	return collaboratorRepo{g.s, g.log}
}
func (g *gateway) Directory() database.DirectoryRepository { return directoryRepo{g.s, g.log} }
func (g *gateway) Companies() database.CompanyRepository   { return companyRepo{g.s, g.log} }
func (g *gateway) Templates() database.TemplateRepository  { return templateRepo{g.s, g.log} }

func (g *gateway) Transaction(ctx context.Context, fn func(tx database.Gateway) error) error {
	if g.log == nil {
		g.s.txMu.Lock()
		defer g.s.txMu.Unlock()
	}
	if err := ctx.Err(); err != nil {
		return apperr.Storage("transaction", err)
	}

	log := &txLog{}
	if err := fn(g.s.gateway(log)); err != nil {
		g.s.mu.Lock()
		log.rollback(g.s.data)
		g.s.mu.Unlock()
		return err
	}
	if g.log != nil {
		g.s.mu.Lock()
		g.log.undo = append(g.log.undo, log.undo...)
		g.s.mu.Unlock()
	}
	return nil
}

func now() time.Time { return time.Now().UTC() }

// ---- invitations ----

type invitationRepo struct {
	s   *Store
	log *txLog
}

func (r invitationRepo) Create(_ context.Context, inv *models.Invitation) error {
	if err := r.s.lock(TableInvitations); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	for _, existing := range r.s.data.invitations {
		if existing.InviteToken == inv.InviteToken {
			return apperr.Conflict("invitation already exists", nil)
		}
		if inv.Status == models.InvitationPending && existing.IsPending() && existing.Email == inv.Email {
			return apperr.Conflict("invitation already exists", nil)
		}
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = models.InvitationPending
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now()
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}
	trackKey(r.log, r.s.data, invitationsOf, inv.ID)
	r.s.data.invitations[inv.ID] = *inv
	return nil
}

func (r invitationRepo) Get(_ context.Context, id uuid.UUID) (*models.Invitation, error) {
	if err := r.s.lock(TableInvitations); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	inv, ok := r.s.data.invitations[id]
	if !ok {
		return nil, apperr.NotFound("invitation not found")
	}
	return &inv, nil
}

func (r invitationRepo) FindPendingByTokenView(ctx context.Context, token string) (*models.Invitation, error) {
	if r.s.noView {
		return nil, database.ErrViewUnavailable
	}
	return r.FindPendingByToken(ctx, token)
}

func (r invitationRepo) FindPendingByToken(_ context.Context, token string) (*models.Invitation, error) {
	if err := r.s.lock(TableInvitations); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	for _, inv := range r.s.data.invitations {
		if inv.InviteToken == token && inv.IsPending() {
			return &inv, nil
		}
	}
	return nil, apperr.NotFound("invitation not found")
}

func (r invitationRepo) ListPending(_ context.Context, companyID string) ([]models.Invitation, error) {
	if err := r.s.lock(TableInvitations); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []models.Invitation
	for _, inv := range r.s.data.invitations {
		if inv.CompanyID == companyID && inv.IsPending() {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r invitationRepo) DeletePendingByEmail(_ context.Context, email, exceptToken string) (int64, error) {
	if err := r.s.lock(TableInvitations); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()

	var n int64
	for id, inv := range r.s.data.invitations {
		if inv.Email == email && inv.IsPending() && (exceptToken == "" || inv.InviteToken != exceptToken) {
			trackKey(r.log, r.s.data, invitationsOf, id)
			delete(r.s.data.invitations, id)
			n++
		}
	}
	return n, nil
}

func (r invitationRepo) Accept(_ context.Context, token, email string, at time.Time) (*models.Invitation, error) {
	if err := r.s.lock(TableInvitations); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	for id, inv := range r.s.data.invitations {
		if inv.InviteToken != token || !inv.IsPending() {
			continue
		}
		inv.Status = models.InvitationAccepted
		inv.Email = email
		inv.UpdatedAt = at
		trackKey(r.log, r.s.data, invitationsOf, id)
		r.s.data.invitations[id] = inv
		return &inv, nil
	}
	return nil, apperr.NotFound("invitation not found")
}

func (r invitationRepo) Refresh(_ context.Context, id uuid.UUID, token string, expiresAt, at time.Time) (*models.Invitation, error) {
	if err := r.s.lock(TableInvitations); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	inv, ok := r.s.data.invitations[id]
	if !ok || !inv.IsPending() {
		return nil, apperr.NotFound("pending invitation not found")
	}
	for otherID, other := range r.s.data.invitations {
		if otherID != id && other.InviteToken == token {
			return nil, apperr.Conflict("invitation already exists", nil)
		}
	}
	inv.InviteToken = token
	inv.ExpiresAt = expiresAt
	inv.UpdatedAt = at
	trackKey(r.log, r.s.data, invitationsOf, id)
	r.s.data.invitations[id] = inv
	return &inv, nil
}

// ---- workflows ----

type workflowRepo struct {
	s   *Store
	log *txLog
}

func (r workflowRepo) Create(_ context.Context, wf *models.Workflow) error {
	if err := r.s.lock(TableWorkflows); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	if _, ok := r.s.data.workflows[wf.ID]; ok {
		return apperr.Conflict("workflow already exists", nil)
	}
	if wf.AccessLevel == "" {
		wf.AccessLevel = models.AccessUser
	}
	if wf.Version == 0 {
		wf.Version = 1
	}
	if wf.Steps == nil {
		wf.Steps = models.Steps{}
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now()
	}
	if wf.UpdatedAt.IsZero() {
		wf.UpdatedAt = wf.CreatedAt
	}
	trackKey(r.log, r.s.data, workflowsOf, wf.ID)
	r.s.data.workflows[wf.ID] = wf.Clone()
	return nil
}

func (r workflowRepo) Get(_ context.Context, id uuid.UUID) (*models.Workflow, error) {
	if err := r.s.lock(TableWorkflows); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	wf, ok := r.s.data.workflows[id]
	if !ok {
		return nil, apperr.NotFound("workflow not found")
	}
	return wf.Clone(), nil
}

func (r workflowRepo) ListByCompany(_ context.Context, companyID string) ([]models.Workflow, error) {
	if err := r.s.lock(TableWorkflows); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []models.Workflow
	for _, wf := range r.s.data.workflows {
		if wf.CompanyID == companyID {
			out = append(out, *wf.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r workflowRepo) UpdateIfVersion(_ context.Context, wf *models.Workflow, expected int) (bool, error) {
	if err := r.s.lock(TableWorkflows); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()

	stored, ok := r.s.data.workflows[wf.ID]
	if !ok || stored.Version != expected {
		return false, nil
	}
	next := wf.Clone()
	next.CompanyID = stored.CompanyID
	next.CreatedBy = stored.CreatedBy
	next.CreatedAt = stored.CreatedAt
	next.Version = expected + 1
	trackKey(r.log, r.s.data, workflowsOf, wf.ID)
	r.s.data.workflows[wf.ID] = next
	wf.Version = expected + 1
	return true, nil
}

func (r workflowRepo) Delete(_ context.Context, id uuid.UUID) error {
	if err := r.s.lock(TableWorkflows); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.workflows[id]; !ok {
		return apperr.NotFound("workflow not found")
	}
	trackKey(r.log, r.s.data, workflowsOf, id)
	delete(r.s.data.workflows, id)
	for cid, c := range r.s.data.collaborators {
		if c.WorkflowID == id {
			trackKey(r.log, r.s.data, collaboratorsOf, cid)
			delete(r.s.data.collaborators, cid)
		}
	}
	return nil
}

type historyRepo struct {
	s   *Store
	log *txLog
}

func (r historyRepo) Append(_ context.Context, h *models.WorkflowHistory) error {
	if err := r.s.lock(TableHistory); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = now()
	}
	r.s.data.history = append(r.s.data.history, *h)
	id := h.ID
	r.log.track(func(t *tables) {
		for i := len(t.history) - 1; i >= 0; i-- {
			if t.history[i].ID == id {
				t.history = append(t.history[:i], t.history[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r historyRepo) ListByWorkflow(_ context.Context, workflowID uuid.UUID) ([]models.WorkflowHistory, error) {
	if err := r.s.lock(TableHistory); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []models.WorkflowHistory
	for _, h := range r.s.data.history {
		if h.WorkflowID == workflowID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// ---- collaborators ----

type collaboratorRepo struct {
	s   *Store
	log *txLog
}

func (r collaboratorRepo) ListByWorkflow(_ context.Context, workflowID uuid.UUID) ([]models.Collaborator, error) {
	if err := r.s.lock(TableCollaborators); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []models.Collaborator
	for _, c := range r.s.data.collaborators {
		if c.WorkflowID == workflowID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r collaboratorRepo) Get(_ context.Context, id uuid.UUID) (*models.Collaborator, error) {
	if err := r.s.lock(TableCollaborators); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	c, ok := r.s.data.collaborators[id]
	if !ok {
		return nil, apperr.NotFound("collaborator not found")
	}
	return &c, nil
}

func (r collaboratorRepo) Upsert(_ context.Context, c *models.Collaborator) error {
	if err := r.s.lock(TableCollaborators); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.workflows[c.WorkflowID]; !ok {
		return apperr.NotFound("collaborator references a missing record")
	}
	for id, existing := range r.s.data.collaborators {
		if existing.WorkflowID == c.WorkflowID && existing.UserID == c.UserID {
			existing.PermissionType = c.PermissionType
			existing.FullName = c.FullName
			trackKey(r.log, r.s.data, collaboratorsOf, id)
			r.s.data.collaborators[id] = existing
			*c = existing
			return nil
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.PermissionType == "" {
		c.PermissionType = models.PermissionEdit
	}
	if c.AddedAt.IsZero() {
		c.AddedAt = now()
	}
	trackKey(r.log, r.s.data, collaboratorsOf, c.ID)
	r.s.data.collaborators[c.ID] = *c
	return nil
}

func (r collaboratorRepo) Delete(_ context.Context, id uuid.UUID) error {
	if err := r.s.lock(TableCollaborators); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.collaborators[id]; !ok {
		return apperr.NotFound("collaborator not found")
	}
	trackKey(r.log, r.s.data, collaboratorsOf, id)
	delete(r.s.data.collaborators, id)
	return nil
}

func (r collaboratorRepo) IsCollaborator(_ context.Context, workflowID uuid.UUID, userID string) (bool, error) {
	if err := r.s.lock(TableCollaborators); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()

	for _, c := range r.s.data.collaborators {
		if c.WorkflowID == workflowID && c.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// ---- directory and companies ----

type directoryRepo struct {
	s   *Store
	log *txLog
}

func (r directoryRepo) Get(_ context.Context, id string) (*models.DirectoryEntry, error) {
	if err := r.s.lock(TableDirectory); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	e, ok := r.s.data.directory[id]
	if !ok {
		return nil, apperr.NotFound("directory entry not found")
	}
	return &e, nil
}

func (r directoryRepo) FindByIDs(_ context.Context, ids []string) ([]models.DirectoryEntry, error) {
	if err := r.s.lock(TableDirectory); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []models.DirectoryEntry
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if e, ok := r.s.data.directory[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r directoryRepo) ListByCompany(_ context.Context, companyID string) ([]models.DirectoryEntry, error) {
	if err := r.s.lock(TableDirectory); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []models.DirectoryEntry
	for _, e := range r.s.data.directory {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r directoryRepo) Create(_ context.Context, e *models.DirectoryEntry) error {
	if err := r.s.lock(TableDirectory); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.directory[e.ID]; ok {
		return apperr.Conflict("directory entry already exists", nil)
	}
	r.insertEntry(e)
	return nil
}

func (r directoryRepo) CreateIfMissing(_ context.Context, e *models.DirectoryEntry) (bool, error) {
	if err := r.s.lock(TableDirectory); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.directory[e.ID]; ok {
		return false, nil
	}
	r.insertEntry(e)
	return true, nil
}

// insertEntry applies the column defaults. Callers hold the lock.
func (r directoryRepo) insertEntry(e *models.DirectoryEntry) {
	if e.Role == "" {
		e.Role = models.RoleGeneralUser
	}
	if e.Status == "" {
		e.Status = models.EntryActive
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	trackKey(r.log, r.s.data, directoryOf, e.ID)
	r.s.data.directory[e.ID] = *e
}

func (r directoryRepo) Update(_ context.Context, e *models.DirectoryEntry) error {
	if err := r.s.lock(TableDirectory); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	stored, ok := r.s.data.directory[e.ID]
	if !ok {
		return apperr.NotFound("directory entry not found")
	}
	next := *e
	next.CreatedAt = stored.CreatedAt
	trackKey(r.log, r.s.data, directoryOf, e.ID)
	r.s.data.directory[e.ID] = next
	return nil
}

type companyRepo struct {
	s   *Store
	log *txLog
}

func (r companyRepo) Create(_ context.Context, c *models.Company) error {
	if err := r.s.lock(TableCompanies); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.companies[c.ID]; ok {
		return apperr.Conflict("company already exists", nil)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}
	trackKey(r.log, r.s.data, companiesOf, c.ID)
	r.s.data.companies[c.ID] = *c
	return nil
}

func (r companyRepo) Get(_ context.Context, id string) (*models.Company, error) {
	if err := r.s.lock(TableCompanies); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	c, ok := r.s.data.companies[id]
	if !ok {
		return nil, apperr.NotFound("company not found")
	}
	return &c, nil
}

// ---- text templates ----

type templateRepo struct {
	s   *Store
	log *txLog
}

func (r templateRepo) Create(_ context.Context, t *models.TextTemplate) error {
	if err := r.s.lock(TableTemplates); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if err := r.checkName(t); err != nil {
		return err
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	trackKey(r.log, r.s.data, templatesOf, t.ID)
	r.s.data.templates[t.ID] = *t
	return nil
}

// checkName enforces the (company_id, name) unique constraint. Callers hold the lock.
func (r templateRepo) checkName(t *models.TextTemplate) error {
	for id, existing := range r.s.data.templates {
		if id != t.ID && existing.CompanyID == t.CompanyID && existing.Name == t.Name {
			return apperr.Conflict("template already exists", nil)
		}
	}
	return nil
}

func (r templateRepo) Get(_ context.Context, id uuid.UUID) (*models.TextTemplate, error) {
	if err := r.s.lock(TableTemplates); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	t, ok := r.s.data.templates[id]
	if !ok {
		return nil, apperr.NotFound("template not found")
	}
	return &t, nil
}

func (r templateRepo) ListByCompany(_ context.Context, companyID string) ([]models.TextTemplate, error) {
	if err := r.s.lock(TableTemplates); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()

	var out []models.TextTemplate
	for _, t := range r.s.data.templates {
		if t.CompanyID == companyID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r templateRepo) UpdateIfVersion(_ context.Context, t *models.TextTemplate, expected int) (bool, error) {
	if err := r.s.lock(TableTemplates); err != nil {
		return false, err
	}
	defer r.s.mu.Unlock()

	stored, ok := r.s.data.templates[t.ID]
	if !ok || stored.Version != expected {
		return false, nil
	}
	if err := r.checkName(t); err != nil {
		return false, err
	}
	next := *t
	next.CompanyID = stored.CompanyID
	next.CreatedBy = stored.CreatedBy
	next.CreatedAt = stored.CreatedAt
	next.Version = expected + 1
	trackKey(r.log, r.s.data, templatesOf, t.ID)
	r.s.data.templates[t.ID] = next
	t.Version = expected + 1
	return true, nil
}

func (r templateRepo) Delete(_ context.Context, id uuid.UUID) error {
	if err := r.s.lock(TableTemplates); err != nil {
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.templates[id]; !ok {
		return apperr.NotFound("template not found")
	}
	trackKey(r.log, r.s.data, templatesOf, id)
	delete(r.s.data.templates, id)
	return nil
}
