package formula

import (
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/shopspring/decimal"

	"github.com/nexusgate/llmgateway/internal/gatewayerr"
)

// StorageDecimalPlaces is the precision every cost component is quantized
// to before summation, per spec.md §4.10's determinism requirement.
const StorageDecimalPlaces = 8

// MappingSource identifies how a dimension_mappings entry is resolved.
type MappingSource string

const (
	SourceDimension MappingSource = "dimension"
	SourceMatrix    MappingSource = "matrix"
	SourceComputed  MappingSource = "computed"
)

// Mapping is one entry of a Rule's dimension_mappings, per spec.md §4.10.
type Mapping struct {
	Source     MappingSource
	Key        string            // dimension or matrix lookup key
	Expression string            // for SourceComputed
	Map        map[string]string // for SourceMatrix: lookup-key -> decimal string
	Required   bool
	AllowZero  bool
	Default    string // decimal string
}

// Rule is a resolved billing rule: an expression over variables and
// dimension mappings, per spec.md §4.9/§4.10.
type Rule struct {
	ID                string
	Name              string
	Expression        string
	Variables         map[string]string // name -> decimal string
	DimensionMappings map[string]Mapping
}

// Result is the output of Evaluate, mirroring the fields BillingSnapshot
// (spec.md §4.11) needs.
type Result struct {
	ResolvedDimensions map[string]any
	ResolvedVariables  map[string]decimal.Decimal
	CostBreakdown      map[string]decimal.Decimal
	TotalCost          decimal.Decimal
	MissingRequired    []string
	Status             string // "complete" | "incomplete"
}

// Evaluate resolves rule's dimension_mappings against dimensions, then
// evaluates rule.Expression into a per-component cost breakdown and a
// quantized total, per spec.md §4.10. When strictMode is true and any
// required mapping is missing, it returns a gatewayerr.BillingIncomplete
// error instead of a zero-cost incomplete result.
func Evaluate(rule Rule, dimensions map[string]any, strictMode bool) (Result, error) {
	vars := make(map[string]decimal.Decimal, len(rule.Variables))
	for name, raw := range rule.Variables {
		vars[name] = parseDecimalOrZero(raw)
	}

	for name, raw := range dimensions {
		if d, ok := toDecimal(raw); ok {
			vars[name] = d
		}
	}

	var missing []string

	// Non-computed mappings first: their values may feed computed ones.
	for name, mapping := range rule.DimensionMappings {
		if mapping.Source == SourceComputed {
			continue
		}
		value, found := resolveNonComputedMapping(mapping, dimensions)
		if !found {
			if mapping.Required && !mapping.AllowZero {
				missing = append(missing, name)
				continue
			}
			value = parseDecimalOrZero(mapping.Default)
		}
		vars[name] = value
	}

	// Computed mappings are evaluated in a single pass in map-iteration
	// order, which is unspecified: a computed mapping that references
	// another computed mapping may run before it and then reads that name
	// from vars as it stands (zero when absent).
	for name, mapping := range rule.DimensionMappings {
		if mapping.Source != SourceComputed {
			continue
		}
		value, err := Eval(mapping.Expression, vars)
		if err != nil {
			if mapping.Required && !mapping.AllowZero {
				missing = append(missing, name)
				continue
			}
			value = parseDecimalOrZero(mapping.Default)
		} else if value.IsZero() && mapping.Required && !mapping.AllowZero {
			missing = append(missing, name)
			continue
		}
		vars[name] = value
	}

	status := "complete"
	if len(missing) > 0 {
		status = "incomplete"
		if strictMode {
			return Result{}, gatewayerr.BillingIncomplete(strings.Join(missing, ", "))
		}
	}

	breakdown := make(map[string]decimal.Decimal)
	var total decimal.Decimal
	if status == "complete" {
		for _, term := range splitAdditiveTerms(rule.Expression) {
			value, err := Eval(term, vars)
			if err != nil {
				return Result{}, errors.Wrapf(err, "evaluate cost term %q", term)
			}
			key := termName(term)
			quantized := value.Round(StorageDecimalPlaces)
			breakdown[key] = quantized
			total = total.Add(quantized)
		}
		total = total.Round(StorageDecimalPlaces)
	}

	return Result{
		ResolvedDimensions: dimensions,
		ResolvedVariables:  vars,
		CostBreakdown:      breakdown,
		TotalCost:          total,
		MissingRequired:    missing,
		Status:             status,
	}, nil
}

// resolveNonComputedMapping resolves a dimension or matrix mapping
// directly against the raw dimensions map.
func resolveNonComputedMapping(mapping Mapping, dimensions map[string]any) (decimal.Decimal, bool) {
	switch mapping.Source {
	case SourceDimension:
		raw, ok := dimensions[mapping.Key]
		if !ok {
			return decimal.Zero, false
		}
		return toDecimal(raw)
	case SourceMatrix:
		raw, ok := dimensions[mapping.Key]
		if !ok {
			return decimal.Zero, false
		}
		lookupKey, ok := raw.(string)
		if !ok {
			return decimal.Zero, false
		}
		priceStr, ok := mapping.Map[lookupKey]
		if !ok {
			return decimal.Zero, false
		}
		return parseDecimalOrZero(priceStr), true
	default:
		return decimal.Zero, false
	}
}
