package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidScopeType(t *testing.T) {
	assert.True(t, ValidScopeType("global"))
	assert.True(t, ValidScopeType("tenant"))
	assert.True(t, ValidScopeType("project"))
	assert.True(t, ValidScopeType("workflow"))
	assert.False(t, ValidScopeType("department"))
	assert.False(t, ValidScopeType(""))
}

func TestDefaultStrategy(t *testing.T) {
	s := DefaultStrategy()

	assert.Equal(t, ScopeGlobal, s.ScopeType)
	assert.Equal(t, GlobalScopeID, s.ScopeID)
	assert.Equal(t, StrategyActive, s.Status)
	assert.Equal(t, CreatorSystem, s.CreatedBy)
	assert.Equal(t, RetrievalHybrid, s.RetrievalPolicy.Mode)
	assert.Equal(t, 20, s.RetrievalPolicy.TopKDefault)
	assert.NotEmpty(t, s.ClaimPolicy.PredicateSet)
	assert.NotEmpty(t, s.ClaimPolicy.DecayRules)
}

// A cloned variant must be editable without touching the base, slices
// included.
func TestMemoryStrategy_Clone(t *testing.T) {
	base := DefaultStrategy()
	clone := base.Clone()

	clone.RetrievalPolicy.TopKDefault = 99
	clone.GraphPolicy.EdgeTypes[0] = "tampered"
	clone.ClaimPolicy.PredicateSet[0] = "tampered"
	clone.ClaimPolicy.DecayRules[0].HalfLifeDays = 1
	clone.ArtifactPolicy.CanonicalWorkflows[0] = "tampered"

	assert.Equal(t, 20, base.RetrievalPolicy.TopKDefault)
	assert.Equal(t, "mentions", base.GraphPolicy.EdgeTypes[0])
	assert.Equal(t, "prefers", base.ClaimPolicy.PredicateSet[0])
	assert.Equal(t, 90, base.ClaimPolicy.DecayRules[0].HalfLifeDays)
	assert.Equal(t, "entity_dossier_v1", base.ArtifactPolicy.CanonicalWorkflows[0])
}

func TestMemoryStrategy_Scope(t *testing.T) {
	s := DefaultStrategy()
	s.ScopeType = ScopeTenant
	s.ScopeID = "t-123"

	assert.Equal(t, ScopeKey{ScopeType: ScopeTenant, ScopeID: "t-123"}, s.Scope())
}
