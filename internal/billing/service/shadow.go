package service

import (
	"path"
	"strings"
	"sync/atomic"

	"github.com/nexusgate/llmgateway/common/logger"
	"github.com/nexusgate/llmgateway/common/metrics"
	"github.com/nexusgate/llmgateway/internal/store"

	"github.com/Laisky/zap"
)

// Process-local counters for the invariants spec.md §4.11/§8 require:
// truth-breakdown component-sum violations and diff_threshold_usd
// overruns, both checked on every CalculateWithShadow call that runs the
// new engine (every mode except legacy).
var (
	InvariantViolationCount atomic.Int64
	DiffThresholdExceededCount atomic.Int64
)

// EngineMode mirrors shadow.py's EngineMode: which engine's numbers are
// billable truth, and whether the new engine runs at all.
type EngineMode string

const (
	ModeLegacy         EngineMode = "legacy"
	ModeShadow         EngineMode = "shadow"
	ModeNew            EngineMode = "new"
	ModeNewWithFallback EngineMode = "new_with_fallback"
)

// TruthEngine identifies which engine's CostBreakdown was written as the
// billable truth.
type TruthEngine string

const (
	TruthLegacy TruthEngine = "legacy"
	TruthNew    TruthEngine = "new"
)

// CostBreakdown is the billable-truth shape written into Usage rows, per
// shadow.py's CostBreakdown.
type CostBreakdown struct {
	InputCost         float64
	OutputCost        float64
	CacheCreationCost float64
	CacheReadCost     float64
	RequestCost       float64
	TotalCost         float64
}

// CacheCost mirrors CostBreakdown.cache_cost.
func (c CostBreakdown) CacheCost() float64 { return c.CacheCreationCost + c.CacheReadCost }

// Validate checks the component-sum invariant, per CostBreakdown.validate.
func (c CostBreakdown) Validate() bool {
	computed := c.InputCost + c.OutputCost + c.CacheCreationCost + c.CacheReadCost + c.RequestCost
	diff := computed - c.TotalCost
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-8
}

// ShadowResult is shadow.py's ShadowBillingResult.
type ShadowResult struct {
	TruthBreakdown CostBreakdown
	ShadowSnapshot *BillingSnapshot
	Comparison     map[string]any
	EngineMode     EngineMode
	TruthEngine    TruthEngine
	WasFallback    bool
}

// EngineOverrides resolves an EngineMode for a provider/model pair,
// exact-match first then fnmatch-style wildcard patterns, per
// shadow.py's _compile_engine_overrides/_resolve_engine_mode_cached.
// path.Match implements the same glob syntax fnmatch.fnmatch exposes
// (*, ?, [...] character classes), so no extra dependency is needed.
type EngineOverrides struct {
	BaseMode EngineMode
	Exact    map[string]EngineMode
	Patterns []overridePattern
}

type overridePattern struct {
	pattern string
	mode    EngineMode
}

// CompileEngineOverrides splits a provider/model -> mode override map into
// exact and wildcard buckets, per _compile_engine_overrides.
func CompileEngineOverrides(baseMode EngineMode, overrides map[string]string) EngineOverrides {
	exact := map[string]EngineMode{}
	var patterns []overridePattern
	for pattern, mode := range overrides {
		m := EngineMode(strings.ToLower(strings.TrimSpace(mode)))
		if strings.ContainsAny(pattern, "*?[") {
			patterns = append(patterns, overridePattern{pattern: pattern, mode: m})
			continue
		}
		exact[pattern] = m
	}
	return EngineOverrides{BaseMode: baseMode, Exact: exact, Patterns: patterns}
}

// Resolve implements _resolve_engine_mode_cached: exact match, then first
// matching wildcard pattern in map-iteration order, else the base mode.
func (o EngineOverrides) Resolve(provider, model string) EngineMode {
	key := provider + "/" + model
	if mode, ok := o.Exact[key]; ok {
		return mode
	}
	for _, p := range o.Patterns {
		if matched, err := path.Match(p.pattern, key); err == nil && matched {
			return p.mode
		}
	}
	return o.BaseMode
}

// ShadowEngine orchestrates legacy/shadow/new/new_with_fallback billing
// reconciliation, per shadow.py's ShadowBillingService.
type ShadowEngine struct {
	Billing *Engine
	// DiffThresholdUSD gates diff logging/metrics, matching
	// config.billing_diff_threshold_usd (default 0.0001).
	DiffThresholdUSD float64
}

// CalculateWithShadowInput bundles calculate_with_shadow's parameters.
type CalculateWithShadowInput struct {
	Provider                string
	ProviderID              int64
	GlobalModel             *store.GlobalModel
	Model                   *store.Model
	ModelName               string
	TaskType                string
	InputTokens             int
	OutputTokens            int
	CacheCreationInputTokens int
	CacheReadInputTokens    int
	CacheTTLMinutes         *int
	LegacyTruth             CostBreakdown
	IsFailedRequest         bool
	Overrides               EngineOverrides
}

// CalculateWithShadow implements shadow.py's calculate_with_shadow.
func (s *ShadowEngine) CalculateWithShadow(in CalculateWithShadowInput) (ShadowResult, error) {
	mode := in.Overrides.Resolve(in.Provider, in.ModelName)

	if mode == ModeLegacy {
		return ShadowResult{
			TruthBreakdown: in.LegacyTruth,
			ShadowSnapshot: nil,
			Comparison:     map[string]any{"engine_mode": string(mode)},
			EngineMode:     mode,
			TruthEngine:    TruthLegacy,
			WasFallback:    false,
		}, nil
	}

	requestCount := 1
	if in.IsFailedRequest {
		requestCount = 0
	}
	dimensions := map[string]any{
		"input_tokens":                in.InputTokens,
		"output_tokens":               in.OutputTokens,
		"cache_creation_input_tokens": in.CacheCreationInputTokens,
		"cache_read_input_tokens":     in.CacheReadInputTokens,
		"request_count":               requestCount,
	}
	if in.CacheTTLMinutes != nil {
		dimensions["cache_ttl_minutes"] = *in.CacheTTLMinutes
	}

	taskType := effectiveShadowTaskType(in.TaskType)

	newResult, err := s.Billing.Calculate(in.GlobalModel, in.Model, in.ProviderID, in.ModelName, taskType, dimensions, nil)
	if err != nil {
		return ShadowResult{}, err
	}
	shadowSnapshot := newResult.Snapshot

	newBreakdown := CostBreakdown{
		InputCost:         shadowSnapshot.CostBreakdown["input_cost"],
		OutputCost:        shadowSnapshot.CostBreakdown["output_cost"],
		CacheCreationCost: shadowSnapshot.CostBreakdown["cache_creation_cost"],
		CacheReadCost:     shadowSnapshot.CostBreakdown["cache_read_cost"],
		RequestCost:       shadowSnapshot.CostBreakdown["request_cost"],
		TotalCost:         shadowSnapshot.TotalCost,
	}

	diff := newBreakdown.TotalCost - in.LegacyTruth.TotalCost
	if diff < 0 {
		diff = -diff
	}
	diffPct := 0.0
	if in.LegacyTruth.TotalCost > 0 {
		diffPct = diff / in.LegacyTruth.TotalCost * 100.0
	}

	threshold := s.DiffThresholdUSD
	if threshold <= 0 {
		threshold = 0.0001
	}

	comparison := map[string]any{
		"engine_mode":            string(mode),
		"old_total":              in.LegacyTruth.TotalCost,
		"new_total":              newBreakdown.TotalCost,
		"diff_usd":               diff,
		"diff_pct":               diffPct,
		"diff_exceeds_threshold": diff > threshold,
		"breakdown_diff": map[string]float64{
			"input_cost":          newBreakdown.InputCost - in.LegacyTruth.InputCost,
			"output_cost":         newBreakdown.OutputCost - in.LegacyTruth.OutputCost,
			"cache_creation_cost": newBreakdown.CacheCreationCost - in.LegacyTruth.CacheCreationCost,
			"cache_read_cost":     newBreakdown.CacheReadCost - in.LegacyTruth.CacheReadCost,
			"request_cost":        newBreakdown.RequestCost - in.LegacyTruth.RequestCost,
		},
	}

	truthEngine := TruthLegacy
	truth := in.LegacyTruth
	wasFallback := false

	switch mode {
	case ModeShadow:
		truthEngine = TruthLegacy
		truth = in.LegacyTruth
	case ModeNew:
		truthEngine = TruthNew
		truth = newBreakdown
	case ModeNewWithFallback:
		fallbackThreshold := threshold * 10.0
		if diff > fallbackThreshold {
			truthEngine = TruthLegacy
			truth = in.LegacyTruth
			wasFallback = true
		} else {
			truthEngine = TruthNew
			truth = newBreakdown
		}
	default:
		truthEngine = TruthLegacy
		truth = in.LegacyTruth
	}

	var shadowSnapshotOut *BillingSnapshot
	if mode == ModeShadow || mode == ModeNewWithFallback || mode == ModeNew {
		snap := shadowSnapshot
		shadowSnapshotOut = &snap
	}

	if !truth.Validate() {
		InvariantViolationCount.Add(1)
		metrics.GlobalRecorder.RecordBillingError("invariant_violation", "shadow_calculate", 0, 0, in.ModelName)
		logger.Logger.Error("billing truth breakdown failed component-sum invariant",
			zap.String("model", in.ModelName),
			zap.String("truth_engine", string(truthEngine)),
			zap.Float64("total_cost", truth.TotalCost))
	}

	if exceeds, _ := comparison["diff_exceeds_threshold"].(bool); exceeds {
		DiffThresholdExceededCount.Add(1)
		metrics.GlobalRecorder.RecordBillingError("diff_threshold_exceeded", "shadow_calculate", 0, 0, in.ModelName)
		logger.Logger.Warn("billing shadow/legacy diff exceeds threshold",
			zap.String("model", in.ModelName),
			zap.Float64("diff_usd", diff),
			zap.Float64("threshold_usd", threshold))
	}

	return ShadowResult{
		TruthBreakdown: truth,
		ShadowSnapshot: shadowSnapshotOut,
		Comparison:     comparison,
		EngineMode:     mode,
		TruthEngine:    truthEngine,
		WasFallback:    wasFallback,
	}, nil
}

func effectiveShadowTaskType(taskType string) string {
	t := strings.ToLower(strings.TrimSpace(taskType))
	switch t {
	case "chat", "cli", "video", "image", "audio":
		return t
	default:
		return "chat"
	}
}
