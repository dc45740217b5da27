package clinical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArm() *Arm {
	return &Arm{
		Name: "arm_1",
		Events: []Event{
			{ID: "e1", Forms: []string{"a", "b"}},
			{ID: "e2", Forms: []string{"c"}},
			{ID: "e3", Forms: []string{"a", "d"}},
		},
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]CompletionStatus{
		"0":          StatusIncomplete,
		"incomplete": StatusIncomplete,
		"1":          StatusUnverified,
		"Unverified": StatusUnverified,
		"2":          StatusComplete,
		"complete":   StatusComplete,
		"":           StatusEmpty,
		"empty":      StatusEmpty,
	}
	for in, want := range cases {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStatus("3")
	assert.Error(t, err)
}

func TestCompletionStatusValidate(t *testing.T) {
	assert.NoError(t, StatusEmpty.Validate())
	assert.NoError(t, StatusComplete.Validate())
	assert.Error(t, CompletionStatus("done").Validate())
}

func TestEventNavigation(t *testing.T) {
	arm := testArm()
	e1, ok := arm.Event("e1")
	require.True(t, ok)

	next, ok := e1.NextForm("a")
	assert.True(t, ok)
	assert.Equal(t, "b", next)

	_, ok = e1.NextForm("b")
	assert.False(t, ok, "last form has no next form")

	_, ok = e1.NextForm("zzz")
	assert.False(t, ok)

	_, ok = arm.Event("missing")
	assert.False(t, ok)
}

func TestArmForms(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", "d"}, testArm().Forms())
}

func TestArmPreviousEventWithForm(t *testing.T) {
	arm := testArm()

	prev, ok := arm.PreviousEventWithForm("e3", "a")
	require.True(t, ok)
	assert.Equal(t, "e1", prev.ID)

	_, ok = arm.PreviousEventWithForm("e1", "a")
	assert.False(t, ok, "first event has no predecessor")

	_, ok = arm.PreviousEventWithForm("e3", "d")
	assert.False(t, ok)
}

func TestFormStateCompleted(t *testing.T) {
	t.Run("never saved is not complete", func(t *testing.T) {
		assert.False(t, FormState{}.Completed())
	})

	t.Run("single complete status", func(t *testing.T) {
		assert.True(t, FormState{Status: StatusComplete, HasStatus: true}.Completed())
		assert.False(t, FormState{Status: StatusUnverified, HasStatus: true}.Completed())
	})

	t.Run("all instances must be complete", func(t *testing.T) {
		st := FormState{Instances: map[int]CompletionStatus{
			1: StatusComplete,
			2: StatusComplete,
			3: StatusIncomplete,
		}}
		assert.False(t, st.Completed())

		st.Instances[3] = StatusComplete
		assert.True(t, st.Completed())
	})

	t.Run("instances override the single status", func(t *testing.T) {
		st := FormState{Status: StatusComplete, HasStatus: true, Instances: map[int]CompletionStatus{1: StatusUnverified}}
		assert.False(t, st.Completed())
	})
}

func TestRecordData(t *testing.T) {
	data := NewRecordData("1001")
	assert.True(t, data.Empty())

	data.SetStatus("e1", "a", StatusComplete)
	data.SetInstanceStatus("e1", "b", 2, StatusIncomplete)

	assert.False(t, data.Empty())
	assert.True(t, data.Form("e1", "a").Completed())
	assert.False(t, data.Form("e1", "b").Completed())
	assert.Equal(t, FormState{}, data.Form("e2", "c"))

	var nilData *RecordData
	assert.True(t, nilData.Empty())
	assert.Equal(t, FormState{}, nilData.Form("e1", "a"))
}

func TestAccessMatrix(t *testing.T) {
	m := make(AccessMatrix)
	assert.False(t, m.Denied("1", "e1", "a"))

	m.Deny("1", "e1", "a")
	assert.True(t, m.Denied("1", "e1", "a"))
	assert.False(t, m.Denied("1", "e1", "b"))

	other := AccessMatrix{"2": {"e2": {"c": true, "d": false}}}
	m.Merge(other)
	assert.True(t, m.Denied("2", "e2", "c"))
	assert.False(t, m.Denied("2", "e2", "d"))
	assert.Equal(t, []string{"1", "2"}, m.Records())
}

func TestFormSet(t *testing.T) {
	s := NewFormSet("b", "a", "", "a")
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has(""))
	assert.Equal(t, []string{"a", "b"}, s.Sorted())

	var empty FormSet
	assert.False(t, empty.Has("a"))
}
