// Package gateway wires the core spec.md components (internal/detect,
// internal/scheduler, internal/stream, internal/video, internal/billing)
// into gin handlers for the six client-facing routes of spec.md §6.
// Grounded on relay/controller's shape (one handler per route, pulling
// shared orchestration out into helpers) but driven entirely by the
// internal/* pipeline packages rather than the teacher's relay/adaptor
// per-provider dispatch.
package gateway

import (
	"encoding/json"

	"gorm.io/gorm"

	"github.com/nexusgate/llmgateway/common/config"
	"github.com/nexusgate/llmgateway/internal/billing/rule"
	"github.com/nexusgate/llmgateway/internal/billing/service"
	"github.com/nexusgate/llmgateway/internal/convert"
)

// Deps bundles every long-lived dependency a gateway handler needs. Built
// once at startup and shared across requests (the registries and engine
// hold no per-request mutable state).
type Deps struct {
	DB        *gorm.DB
	Registry  *convert.Registry
	Shadow    *service.ShadowEngine
	Overrides service.EngineOverrides
}

// NewDeps builds Deps from the process-wide DB handle and the billing
// engine knobs in common/config (spec.md §6's environment-tunable knobs).
func NewDeps(db *gorm.DB) *Deps {
	engine := &service.Engine{
		RequireRule:       config.BillingRequireRule,
		DefaultStrictMode: config.BillingStrictMode,
		Cache:             rule.NewCache(),
	}

	return &Deps{
		DB:       db,
		Registry: convert.DefaultRegistry(),
		Shadow: &service.ShadowEngine{
			Billing:          engine,
			DiffThresholdUSD: config.BillingDiffThresholdUSD,
		},
		Overrides: service.CompileEngineOverrides(
			service.EngineMode(config.BillingEngine),
			parseEngineOverrides(config.BillingEngineOverridesRaw),
		),
	}
}

// parseEngineOverrides decodes BILLING_ENGINE_OVERRIDES's JSON object
// (pattern -> mode), tolerating an empty/malformed value by disabling
// overrides rather than failing startup over it.
func parseEngineOverrides(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
