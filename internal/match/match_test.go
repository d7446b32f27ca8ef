package match

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/brreg-matcher/internal/model"
	"github.com/sells-group/brreg-matcher/internal/normalize"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func registryFixture() []model.RegistryCompany {
	return []model.RegistryCompany{
		{OrgNumber: "123", Name: "ACME", IndustryCode: "62.010"},
		{OrgNumber: "923609016", Name: "EQUINOR ASA", IndustryCode: "06.100"},
		{OrgNumber: "555", Name: "Fjord Bygg", IndustryCode: "41.200"},
		{OrgNumber: "556", Name: "FJORD BYGG AS", IndustryCode: "43.100"},
		{OrgNumber: "777", Name: "Nordic Systems Holding AS", IndustryCode: "62.020"},
	}
}

func TestMatch_OrgNumberWinsRegardlessOfName(t *testing.T) {
	m := New(registryFixture())
	res := m.Match(model.CRMCompany{Name: "Totally Different Name", OrgNumber: "923609016"})

	assert.Equal(t, model.StageOrgNumber, res.Stage)
	require.NotNil(t, res.Registry)
	assert.Equal(t, "EQUINOR ASA", res.Registry.Name)
	assert.Equal(t, 1, res.Candidates)
}

func TestMatch_UnknownOrgNumberFallsBackToName(t *testing.T) {
	m := New(registryFixture())
	res := m.Match(model.CRMCompany{Name: "equinor asa", OrgNumber: "999999999"})

	assert.Equal(t, model.StageExactName, res.Stage)
	assert.Equal(t, "923609016", res.Registry.OrgNumber)
}

func TestMatch_ExactName(t *testing.T) {
	m := New(registryFixture())
	res := m.Match(model.CRMCompany{Name: "  Equinor   ASA "})

	assert.Equal(t, model.StageExactName, res.Stage)
	assert.Equal(t, "923609016", res.Registry.OrgNumber)
}

func TestMatch_NameNoSuffix(t *testing.T) {
	m := New(registryFixture())
	res := m.Match(model.CRMCompany{Name: "Equinor"})

	assert.Equal(t, model.StageNameNoSuffix, res.Stage)
	assert.Equal(t, "923609016", res.Registry.OrgNumber)
}

func TestMatch_NameNoSuffixNoNoise(t *testing.T) {
	// CRM "Acme Holding AS" vs registry "ACME": only the loosest form agrees.
	m := New(registryFixture())
	res := m.Match(model.CRMCompany{Name: "Acme Holding AS"})

	assert.Equal(t, model.StageNameNoSuffixNoNoise, res.Stage)
	require.NotNil(t, res.Registry)
	assert.Equal(t, "123", res.Registry.OrgNumber)
}

func TestMatch_NoiseOnRegistrySide(t *testing.T) {
	m := New(registryFixture())
	res := m.Match(model.CRMCompany{Name: "Nordic"})

	assert.Equal(t, model.StageNameNoSuffixNoNoise, res.Stage)
	assert.Equal(t, "777", res.Registry.OrgNumber)
}

func TestMatch_None(t *testing.T) {
	m := New(registryFixture())
	res := m.Match(model.CRMCompany{Name: "Unknown Widgets AS", RecordID: "42"})

	assert.Equal(t, model.StageNone, res.Stage)
	assert.Nil(t, res.Registry)
	assert.Equal(t, "42", res.CRM.RecordID)
	assert.Equal(t, 0, res.Candidates)
}

func TestMatch_BlankNameNeverMatches(t *testing.T) {
	reg := append(registryFixture(), model.RegistryCompany{OrgNumber: "888", Name: ""})
	m := New(reg)
	res := m.Match(model.CRMCompany{Name: ""})
	assert.Equal(t, model.StageNone, res.Stage)

	// A name made only of qualifiers has an empty loosest form.
	res = m.Match(model.CRMCompany{Name: "Holding Group AS"})
	assert.Equal(t, model.StageNone, res.Stage)
}

func TestMatch_TieTakesFirstInDatasetOrder(t *testing.T) {
	m := New(registryFixture())
	// "Fjord Bygg" and "FJORD BYGG AS" share the no-suffix form; the exact
	// form only hits the first.
	res := m.Match(model.CRMCompany{Name: "Fjord Bygg AS"})
	assert.Equal(t, model.StageExactName, res.Stage)
	assert.Equal(t, "556", res.Registry.OrgNumber)

	res = m.Match(model.CRMCompany{Name: "Fjord Bygg A/S"})
	assert.Equal(t, model.StageNameNoSuffix, res.Stage)
	assert.Equal(t, "555", res.Registry.OrgNumber)
	assert.Equal(t, 2, res.Candidates)
	assert.True(t, res.Ambiguous())
}

func TestMatchAll_PreservesOrder(t *testing.T) {
	m := New(registryFixture())
	crm := []model.CRMCompany{
		{Name: "Nobody"},
		{Name: "x", OrgNumber: "123"},
		{Name: "Equinor ASA"},
	}
	res := m.MatchAll(crm)

	require.Len(t, res, 3)
	assert.Equal(t, model.StageNone, res[0].Stage)
	assert.Equal(t, model.StageOrgNumber, res[1].Stage)
	assert.Equal(t, model.StageExactName, res[2].Stage)
	for i := range crm {
		assert.Equal(t, crm[i], res[i].CRM)
	}
}

func TestMatchAll_SharedRegistryRowByDefault(t *testing.T) {
	m := New(registryFixture())
	res := m.MatchAll([]model.CRMCompany{
		{Name: "a", OrgNumber: "123"},
		{Name: "b", OrgNumber: "123"},
	})
	assert.Equal(t, model.StageOrgNumber, res[0].Stage)
	assert.Equal(t, model.StageOrgNumber, res[1].Stage)
}

func TestMatchAll_Exclusive(t *testing.T) {
	m := New(registryFixture(), WithExclusive(true))
	res := m.MatchAll([]model.CRMCompany{
		{Name: "Fjord Bygg A/S"},
		{Name: "Fjord Bygg A/S"},
		{Name: "Fjord Bygg A/S"},
	})

	assert.Equal(t, "555", res[0].Registry.OrgNumber)
	assert.Equal(t, "556", res[1].Registry.OrgNumber)
	assert.Equal(t, model.StageNone, res[2].Stage, "both candidates already claimed")
}

func TestMatchAll_ExclusiveCountsOnlyFreeCandidates(t *testing.T) {
	m := New(registryFixture(), WithExclusive(true))
	res := m.MatchAll([]model.CRMCompany{
		{Name: "Fjord Bygg A/S"},
		{Name: "Fjord Bygg A/S"},
	})

	assert.Equal(t, 2, res[0].Candidates)
	assert.True(t, res[0].Ambiguous())
	assert.Equal(t, "556", res[1].Registry.OrgNumber)
	assert.Equal(t, 1, res[1].Candidates, "the claimed row is not a candidate")
	assert.False(t, res[1].Ambiguous())
}

func TestMatch_CustomNormalizer(t *testing.T) {
	reg := []model.RegistryCompany{{OrgNumber: "1", Name: "Volvo"}}
	m := New(reg, WithNormalizer(normalize.New([]string{"ab"}, nil)))
	res := m.Match(model.CRMCompany{Name: "Volvo AB"})
	assert.Equal(t, model.StageNameNoSuffix, res.Stage)
}

func TestMatch_DoesNotAliasRegistry(t *testing.T) {
	reg := registryFixture()
	m := New(reg)
	res := m.Match(model.CRMCompany{OrgNumber: "123"})
	res.Registry.Name = "changed"
	assert.Equal(t, "ACME", reg[0].Name)
}

func TestMatch_ORGNumberProperty(t *testing.T) {
	reg := make([]model.RegistryCompany, 0, 50)
	for i := range 50 {
		reg = append(reg, model.RegistryCompany{OrgNumber: fmt.Sprintf("%09d", i), Name: fmt.Sprintf("Company %d AS", i)})
	}
	m := New(reg)
	for i := range 50 {
		res := m.Match(model.CRMCompany{Name: "whatever", OrgNumber: fmt.Sprintf("%09d", i)})
		require.Equal(t, model.StageOrgNumber, res.Stage)
		assert.Equal(t, reg[i], *res.Registry)
	}
}

func TestIndex_Lookup(t *testing.T) {
	idx := NewIndex(registryFixture(), normalize.Default())
	assert.Equal(t, []int{2, 3}, idx.Lookup(model.StageNameNoSuffix, "fjord bygg"))
	assert.Nil(t, idx.Lookup(model.StageExactName, ""))
	assert.Equal(t, 5, idx.Len())
}
