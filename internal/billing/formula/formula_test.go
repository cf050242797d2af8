package formula

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEvalArithmeticPrecedence(t *testing.T) {
	vars := map[string]decimal.Decimal{
		"a": decimal.NewFromInt(2),
		"b": decimal.NewFromInt(3),
		"c": decimal.NewFromInt(4),
	}
	v, err := Eval("a + b * c", vars)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(14).Equal(v))
}

func TestEvalParentheses(t *testing.T) {
	vars := map[string]decimal.Decimal{
		"a": decimal.NewFromInt(2),
		"b": decimal.NewFromInt(3),
		"c": decimal.NewFromInt(4),
	}
	v, err := Eval("(a + b) * c", vars)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(20).Equal(v))
}

func TestSplitAdditiveTermsFlattensNestedParens(t *testing.T) {
	terms := splitAdditiveTerms("(input_cost + output_cost + cache_creation_cost + cache_read_cost + request_cost) + video_cost")
	require.Equal(t, []string{"input_cost", "output_cost", "cache_creation_cost", "cache_read_cost", "request_cost", "video_cost"}, terms)
}

func TestTermNameUsesLeadingIdentifierForProductTerms(t *testing.T) {
	require.Equal(t, "duration_seconds", termName("duration_seconds * video_price_per_second"))
	require.Equal(t, "video_cost", termName("video_cost"))
}

func TestEvaluateUniversalStyleRule(t *testing.T) {
	rule := Rule{
		Expression: "(input_cost + output_cost + cache_creation_cost + cache_read_cost + request_cost) + video_cost",
		Variables: map[string]string{
			"input_price_per_token":           "0.000001",
			"output_price_per_token":          "0.000002",
			"cache_creation_price_per_token":  "0",
			"cache_read_price_per_token":      "0",
			"price_per_request":               "0",
		},
		DimensionMappings: map[string]Mapping{
			"input_cost": {
				Source:     SourceComputed,
				Expression: "input_tokens * input_price_per_token",
				AllowZero:  true,
			},
			"output_cost": {
				Source:     SourceComputed,
				Expression: "output_tokens * output_price_per_token",
				AllowZero:  true,
			},
			"cache_creation_cost": {
				Source:     SourceComputed,
				Expression: "cache_creation_tokens * cache_creation_price_per_token",
				AllowZero:  true,
			},
			"cache_read_cost": {
				Source:     SourceComputed,
				Expression: "cache_read_tokens * cache_read_price_per_token",
				AllowZero:  true,
			},
			"request_cost": {
				Source:     SourceComputed,
				Expression: "request_count * price_per_request",
				AllowZero:  true,
			},
			"duration_seconds": {
				Source:    SourceDimension,
				Key:       "duration_seconds",
				AllowZero: true,
				Default:   "0",
			},
			"video_price_per_second": {
				Source:    SourceMatrix,
				Key:       "video_resolution_key",
				AllowZero: true,
				Default:   "0.10",
				Map: map[string]string{
					"720x1280": "0.05",
				},
			},
			"video_cost": {
				Source:     SourceComputed,
				Expression: "duration_seconds * video_price_per_second",
				AllowZero:  true,
			},
		},
	}

	dims := map[string]any{
		"input_tokens":           1000,
		"output_tokens":           500,
		"cache_creation_tokens":   0,
		"cache_read_tokens":       0,
		"request_count":           1,
		"duration_seconds":        8,
		"video_resolution_key":    "720x1280",
	}

	result, err := Evaluate(rule, dims, false)
	require.NoError(t, err)
	require.Equal(t, "complete", result.Status)
	require.True(t, decimal.NewFromFloat(0.001).Equal(result.CostBreakdown["input_cost"]))
	require.True(t, decimal.NewFromFloat(0.001).Equal(result.CostBreakdown["output_cost"]))
	require.True(t, decimal.NewFromFloat(0.4).Equal(result.CostBreakdown["video_cost"]))
	require.True(t, decimal.NewFromFloat(0.402).Equal(result.TotalCost))
}

func TestEvaluateMissingRequiredMarksIncomplete(t *testing.T) {
	rule := Rule{
		Expression: "input_cost",
		DimensionMappings: map[string]Mapping{
			"input_cost": {
				Source:   SourceDimension,
				Key:      "input_cost",
				Required: true,
			},
		},
	}
	result, err := Evaluate(rule, map[string]any{}, false)
	require.NoError(t, err)
	require.Equal(t, "incomplete", result.Status)
	require.Contains(t, result.MissingRequired, "input_cost")
	require.True(t, result.TotalCost.IsZero())
}

func TestEvaluateStrictModeReturnsBillingIncompleteError(t *testing.T) {
	rule := Rule{
		Expression: "input_cost",
		DimensionMappings: map[string]Mapping{
			"input_cost": {
				Source:   SourceDimension,
				Key:      "input_cost",
				Required: true,
			},
		},
	}
	_, err := Evaluate(rule, map[string]any{}, true)
	require.Error(t, err)
}
