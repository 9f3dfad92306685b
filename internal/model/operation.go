package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// OperationType names a write against the recipe manager's catalog.
type OperationType string

// Operation types.
const (
	OpCreateUnit   OperationType = "create_unit"
	OpCreateFood   OperationType = "create_food"
	OpAddUnitAlias OperationType = "add_unit_alias"
	OpAddFoodAlias OperationType = "add_food_alias"
)

var operationValidate = validator.New()

// BatchOperation describes a catalog write and the ingredients it will relink.
type BatchOperation struct {
	Type          OperationType `json:"operation_type" validate:"required,oneof=create_unit create_food add_unit_alias add_food_alias"`
	PatternText   string        `json:"target_pattern" validate:"required"`
	EntityID      string        `json:"mealie_entity_id,omitempty"`
	IngredientIDs []string      `json:"affected_ingredients" validate:"required,min=1,dive,required"`
}

// NewBatchOperation trims and validates a new operation.
func NewBatchOperation(typ OperationType, pattern string, ingredientIDs []string) (BatchOperation, error) {
	op := BatchOperation{
		Type:          typ,
		PatternText:   strings.TrimSpace(pattern),
		IngredientIDs: ingredientIDs,
	}
	return op, op.Validate()
}

// Axis returns the axis the operation writes to.
func (o BatchOperation) Axis() Axis {
	if o.Type == OpCreateFood || o.Type == OpAddFoodAlias {
		return AxisFood
	}
	return AxisUnit
}

// Validate checks required fields.
func (o BatchOperation) Validate() error {
	if err := operationValidate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid batch operation: %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid batch operation: %w", err)
	}
	return nil
}

// Action is a user decision on an unmatched pattern axis.
type Action string

// Decision actions.
const (
	ActionCreate          Action = "create"
	ActionAlias           Action = "alias"
	ActionCreateWithAlias Action = "create_with_alias"
	ActionSkip            Action = "skip"
	ActionReparse         Action = "reparse"
	ActionQuit            Action = "quit"
)

// Decision carries what the user chose and the details needed to apply it.
type Decision struct {
	Action Action
	// Name is the new entity's name for create actions.
	Name         string
	Abbreviation string
	Description  string
	// TargetID is the existing entity for alias actions.
	TargetID string
	// Alias is the extra alias attached after create_with_alias.
	Alias  string
	Method ParseMethod
}
