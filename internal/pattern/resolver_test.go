package pattern

import (
	"strings"
	"testing"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
	"github.com/stretchr/testify/assert"
)

func knownUnits() []model.KnownEntity {
	return []model.KnownEntity{
		{ID: "u-cup", Name: "Cup", Aliases: []string{"c"}},
		{ID: "u-tbsp", Name: "tablespoon", Abbreviation: "tbsp"},
		{ID: "u-dup", Name: "CUP"},
		{ID: "", Name: "orphan"},
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(knownUnits())

	tests := []struct {
		name   string
		input  string
		wantID string
		wantOK bool
	}{
		{name: "exact", input: "tablespoon", wantID: "u-tbsp", wantOK: true},
		{name: "case folded", input: "cup", wantID: "u-cup", wantOK: true},
		{name: "padded", input: "  CUP  ", wantID: "u-cup", wantOK: true},
		{name: "abbreviation is not a name", input: "tbsp"},
		{name: "alias is not a name", input: "c"},
		{name: "near miss", input: "cups"},
		{name: "empty", input: ""},
		{name: "blank", input: "   "},
		{name: "entity without id", input: "orphan"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := r.Resolve(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantOK, r.Contains(tt.input))
		})
	}
}

func TestResolver_Helpers(t *testing.T) {
	r := NewResolver(knownUnits())
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, []string{"Cup", "CUP", "orphan", "tablespoon"}, r.Names())

	e, ok := r.Lookup("u-tbsp")
	assert.True(t, ok)
	assert.Equal(t, "tablespoon", e.Name)
	_, ok = r.Lookup("missing")
	assert.False(t, ok)

	suggestions := r.Suggest("cups", 2)
	if assert.Len(t, suggestions, 2) {
		assert.True(t, strings.EqualFold(suggestions[0].Name, "cup"))
	}
	assert.Nil(t, r.Suggest("", 3))
}

func TestValidateNames(t *testing.T) {
	existing := knownUnits()

	tests := []struct {
		name     string
		input    string
		wantErrs []string
	}{
		{name: "valid", input: "teaspoon"},
		{name: "valid punctuation", input: "can (14.5 oz)"},
		{name: "valid apostrophe", input: "baker's dozen"},
		{name: "empty", input: "  ", wantErrs: []string{"Unit name cannot be empty"}},
		{name: "too long", input: strings.Repeat("a", 101), wantErrs: []string{"cannot exceed 100 characters"}},
		{name: "disallowed", input: "cup<script>", wantErrs: []string{"cannot contain: <, >", "can only contain"}},
		{name: "bad charset", input: "cup/2", wantErrs: []string{"can only contain"}},
		{name: "duplicate", input: "cup", wantErrs: []string{"Unit 'cup' already exists"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateUnitName(tt.input, existing)
			if len(tt.wantErrs) == 0 {
				assert.True(t, res.Valid(), "errors: %v", res.Errors)
				assert.NoError(t, res.Err())
				return
			}
			assert.False(t, res.Valid())
			assert.ErrorIs(t, res.Err(), ErrValidation)
			joined := strings.Join(res.Errors, "\n")
			for _, want := range tt.wantErrs {
				assert.Contains(t, joined, want)
			}
		})
	}

	res := ValidateName(model.AxisFood, "Flour", []model.KnownEntity{{ID: "f1", Name: "flour"}})
	assert.Equal(t, []string{"Food 'Flour' already exists"}, res.Errors)
}

func TestValidateAbbreviation(t *testing.T) {
	assert.True(t, ValidateAbbreviation("").Valid())
	assert.True(t, ValidateAbbreviation("tsp").Valid())
	assert.False(t, ValidateAbbreviation("t sp").Valid())
	assert.False(t, ValidateAbbreviation(strings.Repeat("x", 21)).Valid())
	assert.False(t, ValidateAbbreviation("t|p").Valid())
}

func TestValidatePatternText(t *testing.T) {
	assert.False(t, ValidatePatternText("").Valid())
	res := ValidatePatternText(" cup ")
	assert.True(t, res.Valid())
	assert.Len(t, res.Warnings, 1)
}

func TestDefaultAbbreviation(t *testing.T) {
	assert.Equal(t, "tab", DefaultAbbreviation("tablespoon"))
	assert.Equal(t, "oz", DefaultAbbreviation("oz"))
	assert.Equal(t, "jal", DefaultAbbreviation(" jalapeño"))
}
