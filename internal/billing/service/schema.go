// Package service implements the billing engine of spec.md §4.11: resolve
// a rule, evaluate it against collected dimensions, and produce an
// auditable BillingSnapshot alongside the shadow-mode reconciliation
// orchestrator that compares the new engine's output against a caller's
// legacy cost breakdown. Grounded on service.py/shadow.py/schema.py.
package service

import "time"

// SnapshotSchemaVersion is stamped onto every BillingSnapshot, mirroring
// schema.py's BILLING_SNAPSHOT_SCHEMA_VERSION.
const SnapshotSchemaVersion = "2.0"

// SnapshotStatus mirrors schema.py's BillingSnapshotStatus.
type SnapshotStatus string

const (
	StatusComplete   SnapshotStatus = "complete"
	StatusIncomplete SnapshotStatus = "incomplete"
	StatusNoRule     SnapshotStatus = "no_rule"
	StatusLegacy     SnapshotStatus = "legacy"
)

// BillingSnapshot is the stable, auditable record stored in
// Usage.request_metadata / VideoTask.request_metadata, per spec.md §6 and
// schema.py's BillingSnapshot.
type BillingSnapshot struct {
	SchemaVersion string `json:"schema_version"`

	RuleID   string `json:"rule_id,omitempty"`
	RuleName string `json:"rule_name,omitempty"`
	Scope    string `json:"scope,omitempty"`

	Expression string `json:"expression,omitempty"`

	ResolvedDimensions map[string]any `json:"resolved_dimensions"`
	ResolvedVariables  map[string]any `json:"resolved_variables"`

	CostBreakdown map[string]float64 `json:"cost_breakdown"`
	TotalCost     float64            `json:"total_cost"`

	MissingRequired []string       `json:"missing_required"`
	Status          SnapshotStatus `json:"status"`

	CalculatedAt  time.Time `json:"calculated_at"`
	EngineVersion string    `json:"engine_version"`
}

// CostResult is BillingService.calculate's return value, per schema.py's
// CostResult.
type CostResult struct {
	Cost     float64
	Status   SnapshotStatus
	Snapshot BillingSnapshot
}
