package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentra-platform/incident-api/internal/models"
)

func TestCanViewMatrix(t *testing.T) {
	policy := NewAuthorizationPolicy()

	own := pendingIncident("student-1")
	foreign := pendingIncident("student-9")
	anonymous := pendingIncident("")

	assigned := pendingIncident("student-9")
	assigned.AssignedTo = strPtr("staff-1")

	cases := []struct {
		name     string
		actor    Principal
		incident *models.Incident
		want     bool
	}{
		{"admin sees everything", Principal{ID: "admin-1", Role: models.RoleAdmin}, foreign, true},
		{"student sees own", Principal{ID: "student-1", Role: models.RoleStudent}, own, true},
		{"student blocked from foreign", Principal{ID: "student-1", Role: models.RoleStudent}, foreign, false},
		{"student sees anonymous", Principal{ID: "student-1", Role: models.RoleStudent}, anonymous, true},
		{"staff sees assigned", Principal{ID: "staff-1", Role: models.RoleStaff}, assigned, true},
		{"staff blocked from unassigned foreign", Principal{ID: "staff-2", Role: models.RoleStaff}, foreign, false},
		{"staff sees anonymous", Principal{ID: "staff-2", Role: models.RoleStaff}, anonymous, true},
		{"unknown role blocked", Principal{ID: "x", Role: "ghost"}, anonymous, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, policy.CanView(tc.actor, tc.incident))
		})
	}
}

func TestCanEdit(t *testing.T) {
	policy := NewAuthorizationPolicy()

	pending := pendingIncident("student-1")
	assert.True(t, policy.CanEdit(Principal{ID: "student-1", Role: models.RoleStudent}, pending))
	assert.False(t, policy.CanEdit(Principal{ID: "student-2", Role: models.RoleStudent}, pending))
	assert.False(t, policy.CanEdit(Principal{ID: "admin-1", Role: models.RoleAdmin}, pending))

	inReview := pendingIncident("student-1")
	inReview.Status = models.StatusInReview
	assert.False(t, policy.CanEdit(Principal{ID: "student-1", Role: models.RoleStudent}, inReview))

	anonymous := pendingIncident("")
	assert.False(t, policy.CanEdit(Principal{ID: "student-1", Role: models.RoleStudent}, anonymous))
}

func TestRoleGates(t *testing.T) {
	policy := NewAuthorizationPolicy()

	admin := Principal{ID: "a", Role: models.RoleAdmin}
	staff := Principal{ID: "s", Role: models.RoleStaff}
	student := Principal{ID: "t", Role: models.RoleStudent}

	assert.True(t, policy.CanListAll(admin))
	assert.False(t, policy.CanListAll(staff))

	assert.True(t, policy.CanListAssigned(staff))
	assert.False(t, policy.CanListAssigned(admin))

	assert.True(t, policy.CanListOwn(student))
	assert.True(t, policy.CanListOwn(staff))
	assert.False(t, policy.CanListOwn(admin))

	assert.True(t, policy.CanUpdateStatus(staff))
	assert.True(t, policy.CanUpdateStatus(admin))
	assert.False(t, policy.CanUpdateStatus(student))

	assert.True(t, policy.CanAssign(admin))
	assert.False(t, policy.CanAssign(staff))
}

func TestVisibilityScopes(t *testing.T) {
	policy := NewVisibilityPolicy()

	assert.True(t, policy.ScopeAll().All)
	assert.Equal(t, "staff-1", policy.ScopeAssigned(Principal{ID: "staff-1"}).AssignedTo)
	assert.Equal(t, "student-1", policy.ScopeOwn(Principal{ID: "student-1"}).ReporterOrAnonymous)
}
