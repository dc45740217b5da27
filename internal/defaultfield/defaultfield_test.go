package defaultfield

import (
	"context"
	"testing"

	"github.com/dyluth/ldew/internal/fdec"
	"github.com/dyluth/ldew/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceField(t *testing.T) {
	tests := []struct {
		name       string
		annotation string
		want       string
		ok         bool
	}{
		{"single quotes", `@DEFAULT-FROM-FIELD='weight_kg'`, "weight_kg", true},
		{"double quotes", `@DEFAULT-FROM-FIELD="weight_kg"`, "weight_kg", true},
		{"bare name", `@DEFAULT-FROM-FIELD=weight_kg`, "weight_kg", true},
		{"spaces around equals", `@DEFAULT-FROM-FIELD = 'weight_kg'`, "weight_kg", true},
		{"among other tags", `@HIDDEN-SURVEY @DEFAULT-FROM-FIELD='dob' @READONLY`, "dob", true},
		{"no tag", `@HIDDEN`, "", false},
		{"empty", ``, "", false},
		{"tag without value", `@DEFAULT-FROM-FIELD`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SourceField(tt.annotation)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRules(t *testing.T) {
	rules := ParseRules([]fdec.Field{
		{Name: "weight", Annotation: `@DEFAULT-FROM-FIELD='screening_weight'`},
		{Name: "notes"},
		{Name: "height", Annotation: `@DEFAULT-FROM-FIELD='height'`},
		{Name: "site", Annotation: `@DEFAULT-FROM-FIELD="enrolment_site"`},
	})

	assert.Equal(t, []Rule{
		{Field: "weight", Source: "screening_weight"},
		{Field: "site", Source: "enrolment_site"},
	}, rules)
}

func TestDefaults(t *testing.T) {
	ctx := context.Background()
	fields := []fdec.Field{
		{Name: "weight", Annotation: `@DEFAULT-FROM-FIELD='screening_weight'`},
		{Name: "site", Annotation: `@DEFAULT-FROM-FIELD='enrolment_site'`},
	}

	t.Run("fills empty fields from their source", func(t *testing.T) {
		store, _ := testutil.NewStore(t)
		require.NoError(t, store.SetFieldValue(ctx, "1001", "baseline", 1, "screening_weight", "71.5"))

		defaults, err := NewFiller(store).Defaults(ctx, "1001", "baseline", 1, fields)
		require.NoError(t, err)
		assert.Equal(t, []Default{{Field: "weight", Source: "screening_weight", Value: "71.5"}}, defaults)
	})

	t.Run("keeps existing values", func(t *testing.T) {
		store, _ := testutil.NewStore(t)
		require.NoError(t, store.SetFieldValue(ctx, "1001", "baseline", 1, "screening_weight", "71.5"))
		require.NoError(t, store.SetFieldValue(ctx, "1001", "baseline", 1, "weight", "70"))

		defaults, err := NewFiller(store).Defaults(ctx, "1001", "baseline", 1, fields)
		require.NoError(t, err)
		assert.Empty(t, defaults)
	})

	t.Run("reads the same event and instance", func(t *testing.T) {
		store, _ := testutil.NewStore(t)
		require.NoError(t, store.SetFieldValue(ctx, "1001", "week_1", 1, "screening_weight", "71.5"))
		require.NoError(t, store.SetFieldValue(ctx, "1001", "baseline", 2, "screening_weight", "72"))

		defaults, err := NewFiller(store).Defaults(ctx, "1001", "baseline", 2, fields)
		require.NoError(t, err)
		assert.Equal(t, []Default{{Field: "weight", Source: "screening_weight", Value: "72"}}, defaults)
	})

	t.Run("store failure is returned", func(t *testing.T) {
		store, mr := testutil.NewStore(t)
		mr.SetError("READONLY")

		_, err := NewFiller(store).Defaults(ctx, "1001", "baseline", 1, fields)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read weight")
	})

	t.Run("no rules means no reads", func(t *testing.T) {
		store, mr := testutil.NewStore(t)
		mr.SetError("READONLY")

		defaults, err := NewFiller(store).Defaults(ctx, "1001", "baseline", 1, []fdec.Field{{Name: "notes"}})
		require.NoError(t, err)
		assert.Empty(t, defaults)
	})
}
