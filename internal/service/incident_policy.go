package service

import (
	"github.com/sentra-platform/incident-api/internal/models"
)

// Principal is the authenticated caller: an id plus a role. It is all the
// policies ever look at, alongside the incident itself.
type Principal struct {
	ID   string
	Role models.UserRole
}

// AuthorizationPolicy holds the yes/no capability decisions for incident
// operations. It only decides, it never mutates anything.
type AuthorizationPolicy struct{}

// NewAuthorizationPolicy constructs the policy.
func NewAuthorizationPolicy() *AuthorizationPolicy {
	return &AuthorizationPolicy{}
}

// CanCreate allows any authenticated principal with a known role to report.
func (p *AuthorizationPolicy) CanCreate(actor Principal) bool {
	return actor.Role.Valid()
}

// CanListAll restricts the unscoped listing to admins.
func (p *AuthorizationPolicy) CanListAll(actor Principal) bool {
	return actor.Role == models.RoleAdmin
}

// CanListAssigned restricts the assigned view to staff.
func (p *AuthorizationPolicy) CanListAssigned(actor Principal) bool {
	return actor.Role == models.RoleStaff
}

// CanListOwn allows students and staff to list their own plus anonymous
// incidents.
func (p *AuthorizationPolicy) CanListOwn(actor Principal) bool {
	return actor.Role == models.RoleStudent || actor.Role == models.RoleStaff
}

// CanView gates single-incident reads. Admins see everything; staff see what
// they can list (assigned, own, or anonymous); students see only their own or
// anonymous incidents.
func (p *AuthorizationPolicy) CanView(actor Principal, incident *models.Incident) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleStaff:
		if incident.AssignedTo != nil && *incident.AssignedTo == actor.ID {
			return true
		}
		return incident.IsAnonymous || isReporter(actor, incident)
	case models.RoleStudent:
		return incident.IsAnonymous || isReporter(actor, incident)
	default:
		return false
	}
}

// CanUpdateStatus allows staff and admins to move the lifecycle.
func (p *AuthorizationPolicy) CanUpdateStatus(actor Principal) bool {
	return actor.Role == models.RoleStaff || actor.Role == models.RoleAdmin
}

// CanAssign restricts assignment to admins. Assignee validation (existing
// staff user) happens in the workflow, not here.
func (p *AuthorizationPolicy) CanAssign(actor Principal) bool {
	return actor.Role == models.RoleAdmin
}

// CanEdit allows the reporter to amend details while the incident is still
// pending. Anonymous incidents have no attributable reporter and therefore
// can never be edited.
func (p *AuthorizationPolicy) CanEdit(actor Principal, incident *models.Incident) bool {
	if incident.Status != models.StatusPending {
		return false
	}
	if incident.IsAnonymous {
		return false
	}
	return isReporter(actor, incident)
}

func isReporter(actor Principal, incident *models.Incident) bool {
	return incident.ReporterID != nil && *incident.ReporterID == actor.ID
}

// VisibilityPolicy computes the read scope used by the persistence layer to
// filter list queries. It returns a predicate description, never data.
type VisibilityPolicy struct{}

// NewVisibilityPolicy constructs the policy.
func NewVisibilityPolicy() *VisibilityPolicy {
	return &VisibilityPolicy{}
}

// ScopeAll is the admin listing scope.
func (p *VisibilityPolicy) ScopeAll() models.IncidentScope {
	return models.IncidentScope{All: true}
}

// ScopeAssigned limits listings to incidents assigned to the principal.
func (p *VisibilityPolicy) ScopeAssigned(actor Principal) models.IncidentScope {
	return models.IncidentScope{AssignedTo: actor.ID}
}

// ScopeOwn limits listings to the principal's own plus anonymous incidents.
func (p *VisibilityPolicy) ScopeOwn(actor Principal) models.IncidentScope {
	return models.IncidentScope{ReporterOrAnonymous: actor.ID}
}
