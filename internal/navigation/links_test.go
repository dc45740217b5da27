package navigation

import (
	"testing"

	"github.com/dyluth/ldew/pkg/clinical"
	"github.com/stretchr/testify/assert"
)

func testArm() *clinical.Arm {
	return &clinical.Arm{
		Name: "arm_1",
		Events: []clinical.Event{
			{ID: "E1", Forms: []string{"A", "B"}},
			{ID: "E2", Forms: []string{"C"}},
		},
	}
}

func TestLinkSelector(t *testing.T) {
	l := LinkID{Record: "10 01", Event: "E2", Form: "C"}
	assert.Equal(t, `a[href*="&id=10+01&page=C&event_id=E2"]`, l.Selector())
}

func TestDisabledLinks(t *testing.T) {
	m := clinical.AccessMatrix{}
	m.Deny("1", "E2", "C")
	m.Deny("2", "E1", "B")
	m.Deny("2", "E2", "C")
	m.Deny("2", "E9", "Z") // outside the arm

	t.Run("record home uses one record", func(t *testing.T) {
		set := DisabledLinks(m, testArm(), "1")
		assert.Len(t, set, 1)
		assert.True(t, set.Has(LinkID{Record: "1", Event: "E2", Form: "C"}))
	})

	t.Run("dashboard uses every record", func(t *testing.T) {
		set := DisabledLinks(m, testArm())
		assert.Len(t, set, 3)
		assert.False(t, set.Has(LinkID{Record: "2", Event: "E9", Form: "Z"}))
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		set := DisabledLinks(m, testArm(), "1", "1")
		assert.Len(t, set, 1)
	})

	t.Run("selectors are sorted", func(t *testing.T) {
		sel := DisabledLinks(m, testArm()).Selectors()
		assert.Equal(t, []string{
			`a[href*="&id=1&page=C&event_id=E2"]`,
			`a[href*="&id=2&page=B&event_id=E1"]`,
			`a[href*="&id=2&page=C&event_id=E2"]`,
		}, sel)
	})

	t.Run("nothing denied", func(t *testing.T) {
		assert.Empty(t, DisabledLinks(clinical.AccessMatrix{}, testArm()).Selectors())
	})
}
