package core

import (
	"go/types"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

// TestPersistentStoreImplementations pins the set of packages that provide a
// concrete domain.PersistentStore. A new backend must be added here on purpose.
func TestPersistentStoreImplementations(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, "localemr/...")
	require.NoError(t, err)

	var persistentStore *types.Interface
	for _, p := range pkgs {
		if p.PkgPath != "localemr/pkg/domain" {
			continue
		}
		obj := p.Types.Scope().Lookup("PersistentStore")
		require.NotNil(t, obj, "domain.PersistentStore not found")
		iface, ok := obj.Type().Underlying().(*types.Interface)
		require.True(t, ok, "domain.PersistentStore is not an interface")
		persistentStore = iface
	}
	require.NotNil(t, persistentStore, "failed to resolve PersistentStore interface")

	want := []string{
		"localemr/internal/infra/persistence/memory.Store",
		"localemr/internal/infra/persistence/postgres.Store",
		"localemr/internal/infra/persistence/sqlite.Store",
	}
	var got []string
	for _, p := range pkgs {
		if p.Types == nil || p.Types.Scope() == nil {
			continue
		}
		for _, name := range p.Types.Scope().Names() {
			tn, ok := p.Types.Scope().Lookup(name).(*types.TypeName)
			if !ok || tn.IsAlias() {
				continue
			}
			named, ok := tn.Type().(*types.Named)
			if !ok {
				continue
			}
			if _, isStruct := named.Underlying().(*types.Struct); !isStruct {
				continue
			}
			if types.Implements(types.NewPointer(named), persistentStore) {
				got = append(got, p.PkgPath+"."+name)
			}
		}
	}
	sort.Strings(got)
	assert.Equal(t, want, got)
}
