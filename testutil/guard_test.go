package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"localemr/internal/infra/blob/fs\"\n)\nvar _ = fmt.Sprint\nvar _ fs.Store\n")
	writeFile(t, dir, "a_test.go", "package tmp\nimport \"localemr/internal/infra/persistence/memory\"\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))
	writeFile(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport \"localemr/internal/infra/blob/s3\"\n")

	viols, err := directImportViolations(dir, InfraImportForbidden)
	require.NoError(t, err)
	assert.Equal(t, []string{"localemr/internal/infra/blob/fs (in a.go)"}, viols, "test files and subdirectories are skipped")

	viols, err = directImportViolations(dir, ThirdPartyImportForbidden)
	require.NoError(t, err)
	assert.Empty(t, viols)
}

func TestDirectImportViolationsErrors(t *testing.T) {
	_, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InfraImportForbidden)
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, dir, "broken.go", "package tmp\nimport (")
	_, err = directImportViolations(dir, InfraImportForbidden)
	assert.Error(t, err)
}

func TestFailIfDirectViolations(t *testing.T) {
	rec := &recordingFatal{}
	failIfDirectViolations(rec, "keep it clean", nil)
	assert.Empty(t, rec.msg)

	failIfDirectViolations(rec, "keep it clean", []string{"x (in a.go)"})
	assert.Contains(t, rec.msg, "keep it clean")
	assert.Contains(t, rec.msg, "x (in a.go)")
}

func TestPredicates(t *testing.T) {
	assert.True(t, InternalImportForbidden("localemr/internal/core"))
	assert.False(t, InternalImportForbidden("localemr/pkg/domain"))
	assert.False(t, InternalImportForbidden("localemr/internalx"))

	assert.True(t, InfraImportForbidden("localemr/internal/infra/persistence/sqlite"))
	assert.False(t, InfraImportForbidden("localemr/internal/blob"))

	assert.True(t, BlobBackendImportForbidden("localemr/internal/infra/blob/s3"))
	assert.False(t, BlobBackendImportForbidden("localemr/internal/infra/persistence/memory"))

	assert.True(t, ThirdPartyImportForbidden("go.uber.org/zap"))
	assert.True(t, ThirdPartyImportForbidden("github.com/xuri/excelize/v2"))
	assert.False(t, ThirdPartyImportForbidden("encoding/json"))
	assert.False(t, ThirdPartyImportForbidden("localemr/pkg/domain"))

	both := AnyOf(InternalImportForbidden, ThirdPartyImportForbidden)
	assert.True(t, both("localemr/internal/config"))
	assert.True(t, both("golang.org/x/text/collate"))
	assert.False(t, both("time"))
}
