package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryListAcceptsArray(t *testing.T) {
	var c CategoryList
	require.NoError(t, json.Unmarshal([]byte(`["IT", " Facilities "]`), &c))
	assert.Equal(t, CategoryList{"IT", "Facilities"}, c)
}

func TestCategoryListAcceptsStringifiedArray(t *testing.T) {
	var c CategoryList
	require.NoError(t, json.Unmarshal([]byte(`"[\"IT\",\"Facilities\"]"`), &c))
	assert.Equal(t, CategoryList{"IT", "Facilities"}, c)
}

func TestCategoryListAcceptsCommaSeparated(t *testing.T) {
	var c CategoryList
	require.NoError(t, json.Unmarshal([]byte(`"IT, Facilities,,  "`), &c))
	assert.Equal(t, CategoryList{"IT", "Facilities"}, c)
}

func TestCategoryListDropsEmptyEntries(t *testing.T) {
	var c CategoryList
	require.NoError(t, json.Unmarshal([]byte(`["", "  ", "IT"]`), &c))
	assert.Equal(t, CategoryList{"IT"}, c)
}

func TestCategoryListInsideRequest(t *testing.T) {
	payload := `{"title":"x","description":"y","type":"New Request","category":"IT,Facilities"}`
	var req CreateIncidentRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))
	assert.Equal(t, CategoryList{"IT", "Facilities"}, req.Category)
}
