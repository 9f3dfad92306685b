package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pattern errors.
var (
	ErrEmptyPatternText = errors.New("pattern text must not be empty")
	ErrNoMatchID        = errors.New("either unit id or food id must be provided")
)

// Pattern groups every ingredient that shares the same unparsed text.
// Unit and food progress independently through their own status tracks.
type Pattern struct {
	ErrorAt         *time.Time    `json:"error_timestamp,omitempty"`
	MatchedUnitID   *string       `json:"matched_unit_id,omitempty"`
	MatchedFoodID   *string       `json:"matched_food_id,omitempty"`
	UnitError       *string       `json:"unit_error_message,omitempty"`
	FoodError       *string       `json:"food_error_message,omitempty"`
	Text            string        `json:"pattern_text"`
	ParsedUnit      string        `json:"parsed_unit"`
	ParsedFood      string        `json:"parsed_food"`
	UnitStatus      PatternStatus `json:"unit_status"`
	FoodStatus      PatternStatus `json:"food_status"`
	IngredientIDs   []string      `json:"ingredient_ids"`
	RecipeIDs       []string      `json:"recipe_ids"`
	SimilarPatterns []string      `json:"suggested_similar_patterns"`
	UnitConfidence  float64       `json:"unit_confidence"`
	FoodConfidence  float64       `json:"food_confidence"`
	MissingUnit     bool          `json:"missing_unit"`
	MissingFood     bool          `json:"missing_food"`
}

// NewPattern creates a pending pattern. The text is trimmed and must not be blank.
func NewPattern(text string) (*Pattern, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyPatternText
	}
	return &Pattern{
		Text:            text,
		UnitStatus:      StatusPending,
		FoodStatus:      StatusPending,
		IngredientIDs:   []string{},
		RecipeIDs:       []string{},
		SimilarPatterns: []string{},
	}, nil
}

// Status returns the status of one axis.
func (p *Pattern) Status(axis Axis) PatternStatus {
	if axis == AxisFood {
		return p.FoodStatus
	}
	return p.UnitStatus
}

// ErrorMessage returns the error message of one axis, or "".
func (p *Pattern) ErrorMessage(axis Axis) string {
	msg := p.UnitError
	if axis == AxisFood {
		msg = p.FoodError
	}
	if msg == nil {
		return ""
	}
	return *msg
}

// MatchedID returns the matched entity id of one axis, or "".
func (p *Pattern) MatchedID(axis Axis) string {
	id := p.MatchedUnitID
	if axis == AxisFood {
		id = p.MatchedFoodID
	}
	if id == nil {
		return ""
	}
	return *id
}

// Parsed returns the parser output for one axis.
func (p *Pattern) Parsed(axis Axis) (string, float64) {
	if axis == AxisFood {
		return p.ParsedFood, p.FoodConfidence
	}
	return p.ParsedUnit, p.UnitConfidence
}

// SetParsed stores the parser's name and confidence for one axis.
func (p *Pattern) SetParsed(axis Axis, name string, confidence float64) {
	if axis == AxisFood {
		p.ParsedFood, p.FoodConfidence = name, confidence
		return
	}
	p.ParsedUnit, p.UnitConfidence = name, confidence
}

// TransitionUnit moves the unit axis to a new status. errMsg is required for StatusError.
func (p *Pattern) TransitionUnit(to PatternStatus, errMsg string) error {
	return p.Transition(AxisUnit, to, errMsg)
}

// TransitionFood moves the food axis to a new status. errMsg is required for StatusError.
func (p *Pattern) TransitionFood(to PatternStatus, errMsg string) error {
	return p.Transition(AxisFood, to, errMsg)
}

// Transition moves one axis through the status table.
// Entering error stamps the shared ErrorAt. Leaving error clears this axis'
// message and clears ErrorAt only when the other axis carries no message.
func (p *Pattern) Transition(axis Axis, to PatternStatus, errMsg string) error {
	status, errField, otherErr := &p.UnitStatus, &p.UnitError, p.FoodError
	if axis == AxisFood {
		status, errField, otherErr = &p.FoodStatus, &p.FoodError, p.UnitError
	}

	if err := ValidateTransition(axis, *status, to); err != nil {
		return err
	}

	if to == StatusError {
		if strings.TrimSpace(errMsg) == "" {
			return fmt.Errorf("%s axis: %w", axis, ErrErrorMessageRequired)
		}
		msg := errMsg
		now := time.Now().UTC()
		*errField = &msg
		p.ErrorAt = &now
	} else if *status == StatusError {
		*errField = nil
		if otherErr == nil {
			p.ErrorAt = nil
		}
	}

	*status = to
	return nil
}

// SetMatched records matched entity ids and moves the corresponding axes to matched.
// At least one id must be non-empty.
func (p *Pattern) SetMatched(unitID, foodID string) error {
	if unitID == "" && foodID == "" {
		return ErrNoMatchID
	}
	if unitID != "" {
		if err := p.TransitionUnit(StatusMatched, ""); err != nil {
			return err
		}
		p.MatchedUnitID = &unitID
	}
	if foodID != "" {
		if err := p.TransitionFood(StatusMatched, ""); err != nil {
			return err
		}
		p.MatchedFoodID = &foodID
	}
	return nil
}

// SetMatchedAxis records a matched id for a single axis.
func (p *Pattern) SetMatchedAxis(axis Axis, id string) error {
	if axis == AxisFood {
		return p.SetMatched("", id)
	}
	return p.SetMatched(id, "")
}

// CanBeProcessed reports whether the pattern may be modified by the user.
// A pattern is locked while either axis is parsing.
func (p *Pattern) CanBeProcessed() bool {
	return p.UnitStatus != StatusParsing && p.FoodStatus != StatusParsing
}

// Key returns the canonical grouping key of the pattern text.
func (p *Pattern) Key() string {
	return Canonicalize(p.Text)
}

// Canonicalize folds case and whitespace so equivalent texts group together.
func Canonicalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Validate checks invariants that must hold for a stored pattern.
func (p *Pattern) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return ErrEmptyPatternText
	}
	for _, pair := range []struct {
		msg    *string
		status PatternStatus
		axis   Axis
	}{
		{p.UnitError, p.UnitStatus, AxisUnit},
		{p.FoodError, p.FoodStatus, AxisFood},
	} {
		if !pair.status.Valid() {
			return fmt.Errorf("%s axis: %w: %q", pair.axis, ErrUnknownStatus, pair.status)
		}
		if pair.status == StatusError && pair.msg == nil {
			return fmt.Errorf("%s axis: %w", pair.axis, ErrErrorMessageRequired)
		}
		if pair.status != StatusError && pair.msg != nil {
			return fmt.Errorf("%s axis has an error message while %s", pair.axis, pair.status)
		}
	}
	return nil
}
