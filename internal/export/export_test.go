package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/gapopshub/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
)

func jsonBlob(s string) models.JSONBlob {
	return models.JSONBlob(s)
}

func TestWriteWorkbook_WritesCoreAndDynamicColumns(t *testing.T) {
	template := models.FormTemplate{
		ID:     "FORM-1",
		Name:   "Incident intake",
		Schema: jsonBlob(`{"fields":[{"key":"rootCause","label":"Root Cause"},{"key":"impact","label":"Impact"}]}`),
	}

	severity := "High"
	responses := jsonBlob(`{"rootCause":"missing validation","impact":"2 teams blocked"}`)
	gap := &models.Gap{
		GapID:      "GAP-0001",
		Title:      "Approval step skipped",
		Status:     models.StatusResolved,
		Priority:   models.PriorityHigh,
		Severity:   &severity,
		ReporterID: "user-1",
		CreatedAt:  time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		FormResponses: &responses,
	}

	var buf bytes.Buffer
	err := WriteWorkbook(&buf, []*models.Gap{gap}, []models.FormTemplate{template}, nil)
	require.NoError(t, err)
	assert.True(t, buf.Len() > 0)

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, file.Sheets, 1)

	sheet := file.Sheets[0]
	require.Len(t, sheet.Rows, 2)

	header := sheet.Rows[0]
	assert.Equal(t, "Gap ID", header.Cells[0].Value)
	assert.Equal(t, "impact", header.Cells[len(coreColumns)].Value)
	assert.Equal(t, "rootCause", header.Cells[len(coreColumns)+1].Value)

	dataRow := sheet.Rows[1]
	assert.Equal(t, "GAP-0001", dataRow.Cells[0].Value)
	assert.Equal(t, "High", dataRow.Cells[4].Value)
	assert.Equal(t, "2 teams blocked", dataRow.Cells[len(coreColumns)].Value)
}

func TestWriteWorkbook_NoTemplatesOnlyCoreColumns(t *testing.T) {
	gap := &models.Gap{GapID: "GAP-0002", Title: "No template", Status: models.StatusNeedsReview, Priority: models.PriorityLow, ReporterID: "user-2"}

	var buf bytes.Buffer
	err := WriteWorkbook(&buf, []*models.Gap{gap}, nil, nil)
	require.NoError(t, err)

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	header := file.Sheets[0].Rows[0]
	assert.Len(t, header.Cells, len(coreColumns))
}

func TestWriteWorkbook_ResolvesDisplayNames(t *testing.T) {
	assignee := "user-9"
	gap := &models.Gap{GapID: "GAP-0003", Title: "Assigned gap", Status: models.StatusAssigned, Priority: models.PriorityMedium, ReporterID: "user-1", AssignedToID: &assignee}

	names := map[string]string{"user-1": "Alice", "user-9": "Bob"}
	lookup := func(id string) string { return names[id] }

	var buf bytes.Buffer
	err := WriteWorkbook(&buf, []*models.Gap{gap}, nil, lookup)
	require.NoError(t, err)

	file, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	row := file.Sheets[0].Rows[1]
	assert.Equal(t, "Alice", row.Cells[6].Value)
	assert.Equal(t, "Bob", row.Cells[7].Value)
}
