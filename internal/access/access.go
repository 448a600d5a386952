// Package access decides who may see, edit and re-scope a workflow.
//
// Every check requires the actor to belong to the workflow's company. Within
// the company the workflow's access level widens the audience:
//
//	user        creator, collaborators, admins
//	department  the above, managers, members of the creator's department
//	company     every member
package access

import (
	"flowdesk/internal/apperr"
	"flowdesk/internal/models"
)

// Grant is the actor's standing on one workflow beyond role and company.
type Grant struct {
	// Permission is the actor's collaborator permission, empty when the
	// actor is not a collaborator.
	Permission models.PermissionType
	// CreatorDepartment is the department of the workflow's creator.
	CreatorDepartment string
}

func isCreator(actor models.Actor, wf *models.Workflow) bool {
	return actor.Authenticated() && wf.CreatedBy == actor.UserID
}

// CheckAccessLevelChange authorizes setting wf's access level to level.
// Company membership is checked before the level-specific role rule.
func CheckAccessLevelChange(actor models.Actor, wf *models.Workflow, level models.AccessLevel) error {
	if !level.Valid() {
		return apperr.Validation("access level must be one of user, department, company")
	}
	if !actor.Authenticated() {
		return apperr.Unauthenticated("authentication required to change access level")
	}
	if !actor.InCompany(wf.CompanyID) {
		return apperr.Forbidden("workflow belongs to another company")
	}

	creator := isCreator(actor, wf)
	switch level {
	case models.AccessCompany:
		if creator || actor.IsAdmin() {
			return nil
		}
		return apperr.Forbidden("only the creator or an admin can share a workflow with the company")
	default:
		if creator || actor.IsAdmin() || actor.IsManager() {
			return nil
		}
		return apperr.Forbidden("only the creator, an admin or a manager can change this workflow's access level")
	}
}

// CanView reports whether actor may read wf.
func CanView(actor models.Actor, wf *models.Workflow, g Grant) bool {
	if !actor.InCompany(wf.CompanyID) {
		return false
	}
	if isCreator(actor, wf) || actor.IsAdmin() || g.Permission != "" {
		return true
	}
	return widened(actor, wf, g)
}

// CanEdit reports whether actor may modify wf. View-only collaborators
// cannot edit unless the access level already lets them.
func CanEdit(actor models.Actor, wf *models.Workflow, g Grant) bool {
	if !actor.InCompany(wf.CompanyID) {
		return false
	}
	if isCreator(actor, wf) || actor.IsAdmin() || g.Permission == models.PermissionEdit {
		return true
	}
	return widened(actor, wf, g)
}

// CanManageCollaborators reports whether actor may add or remove collaborators.
func CanManageCollaborators(actor models.Actor, wf *models.Workflow) bool {
	return actor.InCompany(wf.CompanyID) && (isCreator(actor, wf) || actor.IsAdmin() || actor.IsManager())
}

func widened(actor models.Actor, wf *models.Workflow, g Grant) bool {
	switch wf.AccessLevel {
	case models.AccessCompany:
		return true
	case models.AccessDepartment:
		if actor.IsManager() {
			return true
		}
		return actor.Department != "" && actor.Department == g.CreatorDepartment
	default:
		return false
	}
}

// CanDelete reports whether actor may delete wf.
func CanDelete(actor models.Actor, wf *models.Workflow) bool {
	return actor.InCompany(wf.CompanyID) && (isCreator(actor, wf) || actor.IsAdmin())
}
