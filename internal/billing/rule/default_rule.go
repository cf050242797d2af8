package rule

import (
	"github.com/nexusgate/llmgateway/internal/billing/formula"
)

// defaultPricePerToken/defaultPricePerRequest are the fallback prices used
// when neither a model nor its global model carries a billing config,
// matching the always-bill-something intent of the missing Python
// DefaultBillingRuleGenerator (reconstructed from shadow.py's CostBreakdown
// field names and universal.py's base.dimension_mappings shape: every
// generated rule prices input/output/cache tokens and a flat per-request
// fee, all defaulting to zero when unconfigured).
const (
	defaultPricePerToken   = "0"
	defaultPricePerRequest = "0"
)

// GenerateDefaultRule builds the per-token/per-request base rule every
// billing rule (including the universal template) is built on top of.
// Config lookup order is model-specific config first, falling back to the
// shared global-model config, matching _effective_unit_price's precedence.
func GenerateDefaultRule(ctx Context) (formula.Rule, error) {
	inputPrice := effectivePrice(ctx, "billing.input_price_per_token")
	outputPrice := effectivePrice(ctx, "billing.output_price_per_token")
	cacheCreationPrice := effectivePrice(ctx, "billing.cache_creation_price_per_token")
	cacheReadPrice := effectivePrice(ctx, "billing.cache_read_price_per_token")
	pricePerRequest := effectivePrice(ctx, "billing.price_per_request")
	if pricePerRequest == "" {
		pricePerRequest = defaultPricePerRequest
	}

	variables := map[string]string{
		"input_price_per_token":          orDefault(inputPrice, defaultPricePerToken),
		"output_price_per_token":         orDefault(outputPrice, defaultPricePerToken),
		"cache_creation_price_per_token": orDefault(cacheCreationPrice, defaultPricePerToken),
		"cache_read_price_per_token":     orDefault(cacheReadPrice, defaultPricePerToken),
		"price_per_request":              pricePerRequest,
	}

	mappings := map[string]formula.Mapping{
		"input_cost": {
			Source:     formula.SourceComputed,
			Expression: "input_tokens * input_price_per_token",
			AllowZero:  true,
			Default:    "0",
		},
		"output_cost": {
			Source:     formula.SourceComputed,
			Expression: "output_tokens * output_price_per_token",
			AllowZero:  true,
			Default:    "0",
		},
		"cache_creation_cost": {
			Source:     formula.SourceComputed,
			Expression: "cache_creation_tokens * cache_creation_price_per_token",
			AllowZero:  true,
			Default:    "0",
		},
		"cache_read_cost": {
			Source:     formula.SourceComputed,
			Expression: "cache_read_tokens * cache_read_price_per_token",
			AllowZero:  true,
			Default:    "0",
		},
		"request_cost": {
			Source:     formula.SourceComputed,
			Expression: "request_count * price_per_request",
			AllowZero:  true,
			Default:    "0",
		},
	}

	return formula.Rule{
		ID:                "__default__",
		Name:              "Default Billing Rule",
		Expression:         "input_cost + output_cost + cache_creation_cost + cache_read_cost + request_cost",
		Variables:         variables,
		DimensionMappings: mappings,
	}, nil
}

// effectivePrice reads a dotted billing.* price from the model config
// first, falling back to the global model config, per
// _effective_unit_price's model-then-global-model precedence.
func effectivePrice(ctx Context, path string) string {
	if ctx.Model != nil {
		if v, ok := asFloatString(getNested(configOf(ctx.Model.Config), path)); ok {
			return v
		}
	}
	if ctx.GlobalModel != nil {
		if v, ok := asFloatString(getNested(configOf(ctx.GlobalModel.Config), path)); ok {
			return v
		}
	}
	return ""
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
