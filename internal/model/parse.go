package model

import (
	"fmt"
	"strings"
)

// ParseMethod selects the recipe manager's ingredient parser.
type ParseMethod string

// Parser methods.
const (
	MethodNLP    ParseMethod = "nlp"
	MethodBrute  ParseMethod = "brute"
	MethodOpenAI ParseMethod = "openai"
)

// ParseMethodFromString validates a method name.
func ParseMethodFromString(s string) (ParseMethod, error) {
	switch m := ParseMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodNLP, MethodBrute, MethodOpenAI:
		return m, nil
	case "":
		return MethodNLP, nil
	default:
		return "", fmt.Errorf("unknown parse method %q (valid: nlp, brute, openai)", s)
	}
}

// ParseResult is one parser result reduced to the fields the engine uses.
// Names are empty when the parser found nothing for that axis.
type ParseResult struct {
	Input          string
	UnitName       string
	FoodName       string
	UnitConfidence float64
	FoodConfidence float64
}

// Name returns the parsed name for one axis.
func (r ParseResult) Name(axis Axis) string {
	if axis == AxisFood {
		return r.FoodName
	}
	return r.UnitName
}

// Confidence returns the confidence for one axis.
func (r ParseResult) Confidence(axis Axis) float64 {
	if axis == AxisFood {
		return r.FoodConfidence
	}
	return r.UnitConfidence
}
