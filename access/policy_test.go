package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluesky/databroker/docmodel"
)

func TestOwnerOnly_DeniesNonOwner(t *testing.T) {
	policy := NewOwnerOnly("owner")
	run := &docmodel.RunStart{Uid: "r1", Extra: map[string]interface{}{"owner": "alice"}}

	require.NoError(t, policy.CheckCompatibility("alice", run))

	err := policy.CheckCompatibility("bob", run)
	require.Error(t, err)
	var de *docmodel.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, docmodel.KindAccessDenied, de.Kind)
}

func TestOwnerOnly_AdminBypasses(t *testing.T) {
	policy := NewOwnerOnly("owner")
	run := &docmodel.RunStart{Uid: "r1", Extra: map[string]interface{}{"owner": "alice"}}
	require.NoError(t, policy.CheckCompatibility(Admin, run))
	assert.Nil(t, policy.ModifyQueries(Admin))
}

func TestOwnerOnly_ModifyQueriesRestrictsToIdentity(t *testing.T) {
	policy := NewOwnerOnly("owner")
	conjuncts := policy.ModifyQueries("alice")
	require.Len(t, conjuncts, 1)
	assert.Equal(t, map[string]interface{}{"$eq": "alice"}, conjuncts[0]["owner"])
}

func TestAllowAll_NeverDenies(t *testing.T) {
	var p AllowAll
	run := &docmodel.RunStart{Uid: "r1"}
	assert.NoError(t, p.CheckCompatibility("anyone", run))
	assert.Nil(t, p.ModifyQueries("anyone"))
}
