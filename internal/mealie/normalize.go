package mealie

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// rawParsed is one element of the parser response before normalization.
// unit and food arrive as an object with a name, a bare string or null.
// confidence arrives as an object or a single number.
type rawParsed struct {
	Input      string          `json:"input"`
	Confidence json.RawMessage `json:"confidence"`
	Ingredient struct {
		Unit json.RawMessage `json:"unit"`
		Food json.RawMessage `json:"food"`
	} `json:"ingredient"`
}

type rawConfidence struct {
	Unit    *float64 `json:"unit"`
	Food    *float64 `json:"food"`
	Average *float64 `json:"average"`
}

// normalizeParsed converts raw parser output into typed results.
func normalizeParsed(body []byte) ([]model.ParseResult, error) {
	var raw []rawParsed
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode parser response: %w", err)
	}

	results := make([]model.ParseResult, 0, len(raw))
	for _, r := range raw {
		unitConf, foodConf := confidenceScores(r.Confidence)
		results = append(results, model.ParseResult{
			Input:          r.Input,
			UnitName:       entityName(r.Ingredient.Unit),
			FoodName:       entityName(r.Ingredient.Food),
			UnitConfidence: unitConf,
			FoodConfidence: foodConf,
		})
	}
	return results, nil
}

func entityName(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	switch raw[0] {
	case '{':
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return ""
		}
		return obj.Name
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	default:
		return ""
	}
}

// confidenceScores returns (unit, food). An object falls back to its
// average per missing axis; a scalar applies to both axes.
func confidenceScores(raw json.RawMessage) (float64, float64) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, 0
	}

	if raw[0] == '{' {
		var c rawConfidence
		if err := json.Unmarshal(raw, &c); err != nil {
			return 0, 0
		}
		avg := 0.0
		if c.Average != nil {
			avg = *c.Average
		}
		unit, food := avg, avg
		if c.Unit != nil {
			unit = *c.Unit
		}
		if c.Food != nil {
			food = *c.Food
		}
		return unit, food
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, v
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, f
		}
	}
	return 0, 0
}
