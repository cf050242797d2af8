package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusgate/llmgateway/internal/store"
)

func TestEngineOverridesResolvesExactMatchBeforePattern(t *testing.T) {
	overrides := CompileEngineOverrides(ModeLegacy, map[string]string{
		"openai/*":      "shadow",
		"openai/gpt-4o": "new",
	})
	require.Equal(t, ModeNew, overrides.Resolve("openai", "gpt-4o"))
	require.Equal(t, ModeShadow, overrides.Resolve("openai", "gpt-4o-mini"))
	require.Equal(t, ModeLegacy, overrides.Resolve("claude", "opus"))
}

func TestCostBreakdownValidateDetectsInvariantViolation(t *testing.T) {
	valid := CostBreakdown{InputCost: 0.001, OutputCost: 0.002, TotalCost: 0.003}
	require.True(t, valid.Validate())

	invalid := CostBreakdown{InputCost: 0.001, OutputCost: 0.002, TotalCost: 0.1}
	require.False(t, invalid.Validate())
}

func TestCalculateWithShadowLegacyModeSkipsNewEngine(t *testing.T) {
	shadow := &ShadowEngine{Billing: &Engine{}}
	legacy := CostBreakdown{InputCost: 0.5, TotalCost: 0.5}

	result, err := shadow.CalculateWithShadow(CalculateWithShadowInput{
		Provider:    "openai",
		ModelName:   "gpt-4o",
		TaskType:    "chat",
		LegacyTruth: legacy,
		Overrides:   CompileEngineOverrides(ModeLegacy, nil),
	})
	require.NoError(t, err)
	require.Equal(t, ModeLegacy, result.EngineMode)
	require.Equal(t, TruthLegacy, result.TruthEngine)
	require.Nil(t, result.ShadowSnapshot)
	require.Equal(t, legacy, result.TruthBreakdown)
}

func TestCalculateWithShadowNewModeUsesNewBreakdownAsTruth(t *testing.T) {
	shadow := &ShadowEngine{Billing: &Engine{}}
	model := &store.Model{
		Config: store.JSONColumn{
			"billing": map[string]any{
				"input_price_per_token": "0.01",
			},
		},
	}

	result, err := shadow.CalculateWithShadow(CalculateWithShadowInput{
		Provider:    "openai",
		GlobalModel: &store.GlobalModel{},
		Model:       model,
		ModelName:   "gpt-4o",
		TaskType:    "chat",
		InputTokens: 100,
		LegacyTruth: CostBreakdown{InputCost: 0.5, TotalCost: 0.5},
		Overrides:   CompileEngineOverrides(ModeNew, nil),
	})
	require.NoError(t, err)
	require.Equal(t, ModeNew, result.EngineMode)
	require.Equal(t, TruthNew, result.TruthEngine)
	require.NotNil(t, result.ShadowSnapshot)
	require.InDelta(t, 1.0, result.TruthBreakdown.InputCost, 1e-9)
	require.False(t, result.WasFallback)
}

func TestCalculateWithShadowNewWithFallbackFallsBackOnLargeDiff(t *testing.T) {
	shadow := &ShadowEngine{Billing: &Engine{}, DiffThresholdUSD: 0.0001}
	model := &store.Model{
		Config: store.JSONColumn{
			"billing": map[string]any{
				"input_price_per_token": "1.0",
			},
		},
	}

	result, err := shadow.CalculateWithShadow(CalculateWithShadowInput{
		Provider:    "openai",
		GlobalModel: &store.GlobalModel{},
		Model:       model,
		ModelName:   "gpt-4o",
		TaskType:    "chat",
		InputTokens: 100,
		LegacyTruth: CostBreakdown{InputCost: 0.001, TotalCost: 0.001},
		Overrides:   CompileEngineOverrides(ModeNewWithFallback, nil),
	})
	require.NoError(t, err)
	require.True(t, result.WasFallback)
	require.Equal(t, TruthLegacy, result.TruthEngine)
	require.Equal(t, 0.001, result.TruthBreakdown.TotalCost)
}

func TestCalculateWithShadowShadowModeKeepsLegacyTruth(t *testing.T) {
	shadow := &ShadowEngine{Billing: &Engine{}}
	result, err := shadow.CalculateWithShadow(CalculateWithShadowInput{
		Provider:    "openai",
		GlobalModel: &store.GlobalModel{},
		ModelName:   "gpt-4o",
		TaskType:    "chat",
		InputTokens: 100,
		LegacyTruth: CostBreakdown{InputCost: 0.5, TotalCost: 0.5},
		Overrides:   CompileEngineOverrides(ModeShadow, nil),
	})
	require.NoError(t, err)
	require.Equal(t, TruthLegacy, result.TruthEngine)
	require.Equal(t, 0.5, result.TruthBreakdown.TotalCost)
	require.NotNil(t, result.ShadowSnapshot)
}
