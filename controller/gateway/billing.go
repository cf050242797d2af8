package gateway

import (
	"net/http"
	"strconv"

	"github.com/nexusgate/llmgateway/internal/billing/service"
	"github.com/nexusgate/llmgateway/internal/convert"
	"github.com/nexusgate/llmgateway/internal/store"
)

// legacyCostBreakdown computes the pre-rule-engine "truth" cost the shadow
// engine reconciles against, per shadow.py's legacy code path: a flat
// price-per-token lookup on GlobalModel.Config's billing block, skipping
// the rule/formula machinery entirely. Providers that only ship rule-based
// pricing (no flat per-token price) settle at zero legacy cost, matching
// shadow.py's behavior of treating an unpriced legacy model as free rather
// than failing the request.
func legacyCostBreakdown(globalModel *store.GlobalModel, usage convert.Usage) service.CostBreakdown {
	billing, _ := billingBlock(globalModel)

	inputPrice := priceField(billing, "input_price_per_token")
	outputPrice := priceField(billing, "output_price_per_token")
	cacheCreationPrice := priceField(billing, "cache_creation_price_per_token")
	cacheReadPrice := priceField(billing, "cache_read_price_per_token")

	_ = cacheCreationPrice // no separate cache-creation token count is tracked pre-conversion

	breakdown := service.CostBreakdown{
		InputCost:     float64(usage.InputTokens) * inputPrice,
		OutputCost:    float64(usage.OutputTokens) * outputPrice,
		CacheReadCost: float64(usage.CachedTokens) * cacheReadPrice,
	}
	breakdown.TotalCost = breakdown.InputCost + breakdown.OutputCost + breakdown.CacheCreationCost + breakdown.CacheReadCost + breakdown.RequestCost
	return breakdown
}

func billingBlock(globalModel *store.GlobalModel) (map[string]any, bool) {
	if globalModel == nil || globalModel.Config == nil {
		return nil, false
	}
	block, ok := globalModel.Config["billing"].(map[string]any)
	return block, ok
}

func priceField(billing map[string]any, key string) float64 {
	if billing == nil {
		return 0
	}
	switch v := billing[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

// serviceCalculateInput assembles the shadow engine's call parameters from
// a completed relay attempt, per shadow.py's calculate_with_shadow inputs.
func serviceCalculateInput(
	providerName string,
	providerID int64,
	globalModel *store.GlobalModel,
	model *store.Model,
	modelName, taskType string,
	usage convert.Usage,
	statusCode int,
	legacyTruth service.CostBreakdown,
	overrides service.EngineOverrides,
) service.CalculateWithShadowInput {
	return service.CalculateWithShadowInput{
		Provider:                 providerName,
		ProviderID:               providerID,
		GlobalModel:              globalModel,
		Model:                    model,
		ModelName:                modelName,
		TaskType:                 taskType,
		InputTokens:              usage.InputTokens,
		OutputTokens:             usage.OutputTokens,
		CacheCreationInputTokens: 0,
		CacheReadInputTokens:     usage.CachedTokens,
		LegacyTruth:              legacyTruth,
		// spec.md §8: status_code >= 400 means no tokens bill for
		// request_cost, enforced by the engine's requestCount=0 path.
		IsFailedRequest: statusCode >= http.StatusBadRequest,
		Overrides:       overrides,
	}
}
