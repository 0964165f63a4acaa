package payload_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/os2mo/mora/modules/org/domain/lora"
	"github.com/os2mo/mora/modules/org/domain/payload"
	"github.com/os2mo/mora/modules/org/domain/projection"
)

func storedUnit() *lora.Object {
	obj := &lora.Object{}
	obj.SetFacts(lora.OrgUnitProperties, []lora.Fact{
		lora.NewFact(iv("2016-01-01", "inf"), lora.KeyUnitName, "Humanistisk fakultet", lora.KeyUserKey, "hum"),
	})
	obj.SetFacts(lora.OrgUnitValidity, []lora.Fact{
		lora.NewFact(iv("2016-01-01", "inf"), lora.KeyValidity, lora.Active),
	})
	obj.SetFacts(lora.OrgUnitParent, []lora.Fact{
		unitRef("root", "2016-01-01", "2017-01-01"),
		unitRef("root", "2017-03-01", "inf"),
	})
	obj.SetFacts(lora.OrgUnitType, []lora.Fact{
		unitRef("fak", "2016-06-01", "inf"),
	})
	return obj
}

func TestInactivateOldInterval(t *testing.T) {
	t.Parallel()

	out := &lora.Object{}
	payload.InactivateOldInterval(iv("2016-01-01", "2019-01-01"), iv("2017-01-01", "2018-01-01"), lora.OrgUnitValidity, out)

	facts := out.Facts(lora.OrgUnitValidity)
	require.Len(t, facts, 2)
	require.True(t, facts[0].Same(lora.NewFact(iv("2016-01-01", "2017-01-01"), lora.KeyValidity, lora.Inactive)))
	require.True(t, facts[1].Same(lora.NewFact(iv("2018-01-01", "2019-01-01"), lora.KeyValidity, lora.Inactive)))

	none := &lora.Object{}
	payload.InactivateOldInterval(iv("2017-01-01", "2018-01-01"), iv("2016-01-01", "inf"), lora.OrgUnitValidity, none)
	require.True(t, none.Empty())
}

func TestUpdatePayloadRenamesFromAnchor(t *testing.T) {
	t.Parallel()

	orig := storedUnit()
	next := iv("2018-01-01", "inf")
	out := &lora.Object{}

	err := payload.UpdatePayload(next, next.From, []payload.FieldUpdate{{
		Field:  lora.OrgUnitProperties,
		Values: map[string]string{lora.KeyUnitName: "Humaniora", lora.KeyUserKey: "hum"},
	}}, orig, out)
	require.NoError(t, err)

	props := out.Facts(lora.OrgUnitProperties)
	require.Len(t, props, 2)
	require.Equal(t, "Humanistisk fakultet", props[0].Get(lora.KeyUnitName))
	require.True(t, props[0].Virkning.To.Equal(at("2018-01-01")))
	require.Equal(t, "Humaniora", props[1].Get(lora.KeyUnitName))
}

func TestUpdatePayloadAppendsToMultiValuedFields(t *testing.T) {
	t.Parallel()

	orig := &lora.Object{}
	orig.SetFacts(lora.OrgUnitAddresses, []lora.Fact{
		lora.NewFact(iv("2016-01-01", "inf"), lora.KeyURN, "urn:mailto:a@example.com"),
	})
	out := &lora.Object{}
	err := payload.UpdatePayload(iv("2017-01-01", "inf"), at("2017-01-01"), []payload.FieldUpdate{{
		Field:  lora.OrgUnitAddresses,
		Values: map[string]string{lora.KeyURN: "urn:mailto:b@example.com"},
	}}, orig, out)
	require.NoError(t, err)
	require.Len(t, out.Facts(lora.OrgUnitAddresses), 2)
}

func TestEnsureBoundsClosesEveryUntouchedField(t *testing.T) {
	t.Parallel()

	orig := storedUnit()
	next := iv("2016-01-01", "2018-01-01")
	out := &lora.Object{}
	out.SetFacts(lora.OrgUnitProperties, orig.Facts(lora.OrgUnitProperties))

	payload.EnsureBounds(next, lora.OrgUnitFields, orig, out)

	require.Len(t, out.Facts(lora.OrgUnitProperties), 1, "touched fields are left alone")
	require.False(t, out.Has(lora.OrgUnitValidity), "already covered")

	for _, f := range []lora.Field{lora.OrgUnitParent, lora.OrgUnitType} {
		facts := out.Facts(f)
		require.NotEmpty(t, facts, f.String())
		require.True(t, projection.Covered(facts, next, nil), f.String())
		require.True(t, payload.NonOverlapping(facts), f.String())
	}

	parents := out.Facts(lora.OrgUnitParent)
	require.Len(t, parents, 3)
	require.True(t, parents[1].Same(unitRef("root", "2017-01-01", "2017-03-01")))

	types := out.Facts(lora.OrgUnitType)
	require.True(t, types[0].Same(unitRef("fak", "2016-01-01", "2016-06-01")))
}
