package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRender(t *testing.T) {
	exporter := NewCSVExporter()

	data := Dataset{
		Headers: []string{"Reference", "Title"},
		Rows: []map[string]string{
			{"Reference": "INC-1", "Title": "First"},
			{"Reference": "INC-2", "Title": "Has, comma"},
		},
	}

	out, err := exporter.Render(data)
	require.NoError(t, err)

	assert.Contains(t, string(out), "Reference,Title")
	assert.Contains(t, string(out), "INC-1,First")
	assert.Contains(t, string(out), `"Has, comma"`)
}

func TestCSVRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	exporter := NewPDFExporter()

	out, err := exporter.Render(Dataset{
		Headers: []string{"Reference", "Title"},
		Rows:    []map[string]string{{"Reference": "INC-1", "Title": "First"}},
	}, "Incident Report")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
