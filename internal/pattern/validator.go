package pattern

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// Name limits for entities created in the recipe manager.
const (
	MaxNameLength         = 100
	MaxAbbreviationLength = 20
)

// ErrValidation is wrapped by every ValidationResult error.
var ErrValidation = errors.New("validation failed")

var (
	disallowedChars = []string{"<", ">", "&", ";", "|"}
	validNameRe     = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.()']+$`)
)

// ValidationResult collects every problem found with a value.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether no errors were found.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns nil when valid, otherwise an error listing every problem.
func (r *ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(r.Errors, "; "))
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// ValidateUnitName checks a proposed unit name, including duplicates among existing units.
func ValidateUnitName(name string, existing []model.KnownEntity) *ValidationResult {
	return validateEntityName("Unit", name, existing)
}

// ValidateFoodName checks a proposed food name, including duplicates among existing foods.
func ValidateFoodName(name string, existing []model.KnownEntity) *ValidationResult {
	return validateEntityName("Food", name, existing)
}

// ValidateName dispatches to the unit or food name check.
func ValidateName(axis model.Axis, name string, existing []model.KnownEntity) *ValidationResult {
	if axis == model.AxisFood {
		return ValidateFoodName(name, existing)
	}
	return ValidateUnitName(name, existing)
}

func validateEntityName(kind, name string, existing []model.KnownEntity) *ValidationResult {
	result := &ValidationResult{}

	if strings.TrimSpace(name) == "" {
		result.addError("%s name cannot be empty", kind)
		return result
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		result.addError("%s name cannot exceed %d characters", kind, MaxNameLength)
	}
	if found := findDisallowed(name); len(found) > 0 {
		result.addError("%s name cannot contain: %s", kind, strings.Join(found, ", "))
	}
	if !validNameRe.MatchString(name) {
		result.addError("%s name can only contain letters, numbers, spaces, hyphens, underscores, periods, parentheses, and apostrophes", kind)
	}
	if IsDuplicateName(name, existing) {
		result.addError("%s '%s' already exists", kind, name)
	}

	if result.Valid() {
		slog.Debug("Name passed validation", "kind", kind, "name", name)
	} else {
		slog.Warn("Name failed validation", "kind", kind, "name", name, "errors", result.Errors)
	}
	return result
}

// ValidateAbbreviation checks an optional unit abbreviation.
func ValidateAbbreviation(abbr string) *ValidationResult {
	result := &ValidationResult{}
	if abbr == "" {
		return result
	}
	if utf8.RuneCountInString(abbr) > MaxAbbreviationLength {
		result.addError("Abbreviation cannot exceed %d characters", MaxAbbreviationLength)
	}
	if strings.Contains(abbr, " ") {
		result.addError("Abbreviation cannot contain spaces")
	}
	if found := findDisallowed(abbr); len(found) > 0 {
		result.addError("Abbreviation cannot contain: %s", strings.Join(found, ", "))
	}
	return result
}

// ValidatePatternText checks pattern text before grouping or aliasing.
func ValidatePatternText(text string) *ValidationResult {
	result := &ValidationResult{}
	if strings.TrimSpace(text) == "" {
		result.addError("Pattern text cannot be empty")
		return result
	}
	if utf8.RuneCountInString(text) > MaxNameLength {
		result.addError("Pattern text cannot exceed %d characters", MaxNameLength)
	}
	if text != strings.TrimSpace(text) {
		result.Warnings = append(result.Warnings, "Pattern text has leading or trailing whitespace")
	}
	return result
}

// IsDuplicateName reports whether name equals an existing entity name, ignoring case.
func IsDuplicateName(name string, existing []model.KnownEntity) bool {
	return NewResolver(existing).Contains(name)
}

// DefaultAbbreviation is the abbreviation used when none is given: the first three characters.
func DefaultAbbreviation(name string) string {
	r := []rune(strings.TrimSpace(name))
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r)
}

func findDisallowed(s string) []string {
	var found []string
	for _, c := range disallowedChars {
		if strings.Contains(s, c) {
			found = append(found, c)
		}
	}
	return found
}
