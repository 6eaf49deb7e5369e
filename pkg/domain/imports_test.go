package domain

import (
	"testing"

	"localemr/testutil"
)

func TestDomainImportsStdlibOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.InternalImportForbidden, testutil.ThirdPartyImportForbidden),
		"pkg/domain is the dependency-free contract shared by every backend")
}
