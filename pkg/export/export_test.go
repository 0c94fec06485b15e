package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Consolidated report",
		Footer:  "leader A",
		Headers: []string{"course", "capacity", "accepted"},
		Rows: []map[string]string{
			{"course": "Algorithms", "capacity": "2", "accepted": "Alice; Bob"},
			{"course": "Databases", "capacity": "30"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "course,capacity,accepted\nAlgorithms,2,Alice; Bob\nDatabases,30,\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	var exporter Exporter = NewPDFExporter()
	out, err := exporter.Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Equal(t, "application/pdf", exporter.ContentType())
	assert.Equal(t, "pdf", exporter.Extension())
}
