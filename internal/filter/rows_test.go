package filter

import (
	"testing"

	"github.com/dyluth/ldew/internal/matrixfmt"
	"github.com/stretchr/testify/assert"
)

func rows() []matrixfmt.Row {
	return []matrixfmt.Row{
		{Record: "1001", Event: "baseline", Form: "consent"},
		{Record: "1001", Event: "week_1", Form: "vitals", Denied: true},
		{Record: "1001", Event: "week_1", Form: "labs", Denied: true},
		{Record: "1001", Event: "week_2", Form: "vitals", Denied: true},
	}
}

func TestCriteria_Apply(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     int
	}{
		{name: "no filters", criteria: Criteria{}, want: 4},
		{name: "denied only", criteria: Criteria{DeniedOnly: true}, want: 3},
		{name: "form glob", criteria: Criteria{FormGlob: "vit*"}, want: 2},
		{name: "event glob", criteria: Criteria{EventGlob: "week_?"}, want: 3},
		{name: "combined", criteria: Criteria{EventGlob: "week_1", FormGlob: "l*", DeniedOnly: true}, want: 1},
		{name: "no match", criteria: Criteria{FormGlob: "ae_*"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, tt.criteria.Apply(rows()), tt.want)
		})
	}
}

func TestCriteria_Validate(t *testing.T) {
	assert.NoError(t, (&Criteria{FormGlob: "vit*"}).Validate())
	assert.Error(t, (&Criteria{FormGlob: "[vit"}).Validate())
}

func TestCriteria_HasFilters(t *testing.T) {
	assert.False(t, (&Criteria{}).HasFilters())
	assert.True(t, (&Criteria{DeniedOnly: true}).HasFilters())
}
