package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/nexusgate/llmgateway/internal/billing/formula"
	"github.com/nexusgate/llmgateway/internal/billing/rule"
	"github.com/nexusgate/llmgateway/internal/store"
)

// Engine evaluates billing rules into BillingSnapshots, per spec.md
// §4.11's BillingService.calculate. It does not read or write the
// database itself: the caller fetches GlobalModel/Model rows and passes
// them in, keeping this package's connection discipline identical to the
// rest of internal/billing.
type Engine struct {
	// RequireRule mirrors config.billing_require_rule: when true, a
	// non-chat task type without a matching code template yields no_rule
	// instead of falling back to the generated default rule.
	RequireRule bool
	// DefaultStrictMode mirrors config.billing_strict_mode, used when a
	// call site doesn't override strict mode explicitly.
	DefaultStrictMode bool
	// Cache memoizes rule.Resolve results; nil disables caching.
	Cache *rule.Cache
}

// Calculate implements service.py's BillingService.calculate.
func (e *Engine) Calculate(globalModel *store.GlobalModel, model *store.Model, providerID int64, modelName, taskType string, dimensions map[string]any, strictMode *bool) (CostResult, error) {
	strict := e.DefaultStrictMode
	if strictMode != nil {
		strict = *strictMode
	}

	dims := normalizeDimensions(dimensions)

	lookup, err := e.resolveRule(globalModel, model, providerID, modelName, taskType)
	if err != nil {
		return CostResult{}, err
	}

	if lookup == nil || lookup.Rule.Expression == "" {
		snapshot := BillingSnapshot{
			SchemaVersion:      SnapshotSchemaVersion,
			ResolvedDimensions: dims,
			ResolvedVariables:  map[string]any{},
			CostBreakdown:      map[string]float64{},
			TotalCost:          0,
			MissingRequired:    []string{},
			Status:             StatusNoRule,
			CalculatedAt:       nowUTC(),
			EngineVersion:      SnapshotSchemaVersion,
		}
		return CostResult{Cost: 0, Status: StatusNoRule, Snapshot: snapshot}, nil
	}

	result, err := formula.Evaluate(lookup.Rule, dims, strict)
	if err != nil {
		return CostResult{}, err
	}

	status := SnapshotStatus(result.Status)

	costBreakdown := make(map[string]float64, len(result.CostBreakdown))
	for k, v := range result.CostBreakdown {
		f, _ := v.Float64()
		costBreakdown[k] = f
	}

	totalCost := 0.0
	if status == StatusComplete {
		f, _ := result.TotalCost.Float64()
		totalCost = f
	}

	resolvedVars := make(map[string]any, len(result.ResolvedVariables))
	for k, v := range result.ResolvedVariables {
		if _, isDimension := result.ResolvedDimensions[k]; isDimension {
			continue
		}
		if strings.HasSuffix(k, "_cost") {
			continue
		}
		resolvedVars[k] = v.String()
	}

	snapshot := BillingSnapshot{
		SchemaVersion:      SnapshotSchemaVersion,
		RuleID:             lookup.Rule.ID,
		RuleName:           lookup.Rule.Name,
		Scope:              string(lookup.Scope),
		Expression:         lookup.Rule.Expression,
		ResolvedDimensions: result.ResolvedDimensions,
		ResolvedVariables:  resolvedVars,
		CostBreakdown:      costBreakdown,
		TotalCost:          totalCost,
		MissingRequired:    result.MissingRequired,
		Status:             status,
		CalculatedAt:       nowUTC(),
		EngineVersion:      SnapshotSchemaVersion,
	}

	return CostResult{Cost: totalCost, Status: status, Snapshot: snapshot}, nil
}

// resolveRule applies the cache-then-resolve lookup of rule_service.py's
// find_rule, using the CacheKey format the shadow engine also depends on.
func (e *Engine) resolveRule(globalModel *store.GlobalModel, model *store.Model, providerID int64, modelName, taskType string) (*rule.Result, error) {
	effective := rule.EffectiveTaskType(taskType)
	key := rule.CacheKey(providerID, modelName, effective, e.RequireRule)

	if e.Cache != nil {
		if cached, ok := e.Cache.Get(key); ok {
			return cached, nil
		}
	}

	result, err := rule.Resolve(globalModel, model, providerID, modelName, taskType, e.RequireRule)
	if err != nil {
		return nil, err
	}
	if result != nil && e.Cache != nil {
		e.Cache.Set(key, result)
	}
	return result, nil
}

// normalizeDimensions applies service.py's compatibility aliases,
// request_count default, and total_input_context derivation.
func normalizeDimensions(dimensions map[string]any) map[string]any {
	dims := make(map[string]any, len(dimensions)+2)
	for k, v := range dimensions {
		dims[k] = v
	}

	if _, ok := dims["cache_creation_tokens"]; !ok {
		if v, ok := dims["cache_creation_input_tokens"]; ok {
			dims["cache_creation_tokens"] = v
		}
	}
	if _, ok := dims["cache_read_tokens"]; !ok {
		if v, ok := dims["cache_read_input_tokens"]; ok {
			dims["cache_read_tokens"] = v
		}
	}

	if _, ok := dims["request_count"]; !ok {
		dims["request_count"] = 1
	}

	if _, ok := dims["total_input_context"]; !ok {
		inputTokens := toInt(dims["input_tokens"])
		cacheCreation := toInt(dims["cache_creation_tokens"])
		cacheRead := toInt(dims["cache_read_tokens"])
		dims["total_input_context"] = inputTokens + cacheCreation + cacheRead
	}

	return dims
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		var f float64
		if _, err := fmt.Sscanf(t, "%f", &f); err != nil {
			return 0
		}
		return int(f)
	default:
		return 0
	}
}

func nowUTC() time.Time { return time.Now().UTC() }
