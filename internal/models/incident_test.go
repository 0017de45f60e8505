package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBackwardTransition(t *testing.T) {
	assert.False(t, IsBackwardTransition(StatusPending, StatusInReview))
	assert.False(t, IsBackwardTransition(StatusInReview, StatusResolved))
	assert.False(t, IsBackwardTransition(StatusPending, StatusResolved))
	assert.False(t, IsBackwardTransition(StatusInReview, StatusInReview))

	assert.True(t, IsBackwardTransition(StatusResolved, StatusInReview))
	assert.True(t, IsBackwardTransition(StatusResolved, StatusPending))
	assert.True(t, IsBackwardTransition(StatusInReview, StatusPending))
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, StatusInReview.Valid())
	assert.False(t, IncidentStatus("Closed").Valid())

	assert.True(t, TypeUpdateRequest.Valid())
	assert.False(t, IncidentType("Other").Valid())

	assert.True(t, PriorityCritical.Valid())
	assert.False(t, IncidentPriority("Urgent").Valid())

	assert.True(t, RoleStaff.Valid())
	assert.False(t, UserRole("guest").Valid())
}

func TestHistoryRoundTrip(t *testing.T) {
	history := History{
		{Status: StatusPending, ChangedBy: "u1", Note: "Incident created", ChangedAt: time.Now().UTC().Truncate(time.Second)},
		{Status: StatusInReview, ChangedBy: "staff-1", Note: "Status updated", ChangedAt: time.Now().UTC().Truncate(time.Second)},
	}

	value, err := history.Value()
	require.NoError(t, err)

	var scanned History
	require.NoError(t, scanned.Scan(value))
	require.Len(t, scanned, 2)
	assert.Equal(t, history[0].Note, scanned[0].Note)
	assert.Equal(t, history[1].Status, scanned[1].Status)
	assert.Equal(t, history[1].ChangedBy, scanned[1].ChangedBy)
}

func TestHistoryValueNeverNull(t *testing.T) {
	var history History
	value, err := history.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(value.([]byte)))
}

func TestHistoryScanRejectsGarbage(t *testing.T) {
	var history History
	assert.Error(t, history.Scan([]byte("{broken")))
	assert.Error(t, history.Scan(42))
	assert.NoError(t, history.Scan(nil))
}

func TestRedactStripsReporterOnlyWhenAnonymous(t *testing.T) {
	name := "Sam"
	email := "sam@example.com"
	id := "u1"

	identified := &Incident{ReporterID: &id, ReporterName: &name, ReporterEmail: &email}
	identified.Redact()
	assert.NotNil(t, identified.ReporterID)
	assert.NotNil(t, identified.ReporterName)

	anonymous := &Incident{IsAnonymous: true, ReporterID: &id, ReporterName: &name, ReporterEmail: &email}
	anonymous.Redact()
	assert.Nil(t, anonymous.ReporterID)
	assert.Nil(t, anonymous.ReporterName)
	assert.Nil(t, anonymous.ReporterEmail)
}
