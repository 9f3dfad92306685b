package model

import "strings"

// Alias is an alternative name registered on a unit or food.
type Alias struct {
	Name string `json:"name"`
}

// Unit is a unit of measure known to the recipe manager.
type Unit struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	PluralName      string  `json:"pluralName,omitempty"`
	Abbreviation    string  `json:"abbreviation"`
	Description     string  `json:"description"`
	Aliases         []Alias `json:"aliases"`
	Fraction        bool    `json:"fraction"`
	UseAbbreviation bool    `json:"useAbbreviation"`
}

// Food is a food known to the recipe manager.
type Food struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	PluralName  string  `json:"pluralName,omitempty"`
	Description string  `json:"description"`
	Aliases     []Alias `json:"aliases"`
}

// KnownEntity is the axis-agnostic view of a unit or food used for matching.
type KnownEntity struct {
	ID           string
	Name         string
	PluralName   string
	Abbreviation string
	Aliases      []string
}

// Entity converts a unit into its matching view.
func (u Unit) Entity() KnownEntity {
	return KnownEntity{
		ID:           u.ID,
		Name:         u.Name,
		PluralName:   u.PluralName,
		Abbreviation: u.Abbreviation,
		Aliases:      aliasNames(u.Aliases),
	}
}

// Entity converts a food into its matching view.
func (f Food) Entity() KnownEntity {
	return KnownEntity{
		ID:         f.ID,
		Name:       f.Name,
		PluralName: f.PluralName,
		Aliases:    aliasNames(f.Aliases),
	}
}

// UnitEntities converts units into matching views.
func UnitEntities(units []Unit) []KnownEntity {
	out := make([]KnownEntity, len(units))
	for i, u := range units {
		out[i] = u.Entity()
	}
	return out
}

// FoodEntities converts foods into matching views.
func FoodEntities(foods []Food) []KnownEntity {
	out := make([]KnownEntity, len(foods))
	for i, f := range foods {
		out[i] = f.Entity()
	}
	return out
}

// HasAlias reports whether aliases contain name, ignoring case.
func HasAlias(aliases []Alias, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, a := range aliases {
		if strings.ToLower(strings.TrimSpace(a.Name)) == name {
			return true
		}
	}
	return false
}

func aliasNames(aliases []Alias) []string {
	names := make([]string, 0, len(aliases))
	for _, a := range aliases {
		names = append(names, a.Name)
	}
	return names
}

// UnitInput describes a unit to create.
type UnitInput struct {
	Name         string
	Abbreviation string
	Description  string
}

// FoodInput describes a food to create.
type FoodInput struct {
	Name        string
	Description string
}
