package roster

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"localemr/internal/core"
	"localemr/pkg/domain"
)

func readBack(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	return rows
}

func TestWriteWorkbook(t *testing.T) {
	patients := []domain.Patient{
		{ID: 2, Name: "J. Doe", Room: "2", Age: domain.IntPtr(67), Status: domain.StatusPending, Diagnoses: "CHF", Medications: "furosemide"},
		{ID: 1, Name: " ", Room: "10", Status: domain.StatusNoteComplete, Notes: "d/c planning"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, patients, core.Stats{Total: 2, SeenCount: 1, NoteCount: 1}))

	rows := readBack(t, &buf)
	require.Len(t, rows, 5)
	assert.Equal(t, Header, rows[0])
	require.GreaterOrEqual(t, len(rows[1]), 6)
	assert.Equal(t, []string{"2", "J. Doe", "67", "Pending", "CHF", "furosemide"}, rows[1][:6])
	require.GreaterOrEqual(t, len(rows[2]), 7)
	assert.Equal(t, "10", rows[2][0])
	assert.Equal(t, "Unnamed", rows[2][1])
	assert.Equal(t, "", rows[2][2])
	assert.Equal(t, "Note Done", rows[2][3])
	assert.Equal(t, "d/c planning", rows[2][6])
	assert.Empty(t, rows[3])
	assert.Equal(t, []string{"Total", "2", "Seen", "1", "Notes", "1"}, rows[4])
}

func TestWriteWorkbookEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, nil, core.Stats{}))
	rows := readBack(t, &buf)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"Total", "0", "Seen", "0", "Notes", "0"}, rows[2])
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Pending", StatusLabel(domain.StatusPending))
	assert.Equal(t, "Pending", StatusLabel("bogus"))
	assert.Equal(t, "Seen", StatusLabel(domain.StatusSeen))
	assert.Equal(t, "Note Done", StatusLabel(domain.StatusNoteComplete))
}
