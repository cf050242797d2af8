// Package rule resolves the billing Rule (spec.md §4.9) applicable to a
// (provider, model, task_type) triple: a code-defined template if one
// supports the task type, else a generated per-token/per-request default
// rule. Grounded on the teacher's static adaptor-registry pattern
// (relay/adaptor's provider-to-implementation table, mirrored here by
// templates instead of dynamic Python importlib discovery) and on
// rule_templates.py/rule_service.py/rule_defs/universal.py.
package rule

import (
	"fmt"
	"strings"

	"github.com/nexusgate/llmgateway/internal/billing/formula"
	"github.com/nexusgate/llmgateway/internal/store"
)

// TaskType mirrors the billing-domain task types of spec.md §4.8/§4.9.
type TaskType string

const (
	TaskChat  TaskType = "chat"
	TaskCLI   TaskType = "cli"
	TaskVideo TaskType = "video"
	TaskImage TaskType = "image"
	TaskAudio TaskType = "audio"
)

// EffectiveTaskType normalizes "cli" to "chat": billing rules never have a
// distinct cli scope, per rule_service.py's effective_rule_task_type.
func EffectiveTaskType(taskType string) string {
	t := strings.ToLower(strings.TrimSpace(taskType))
	if t == string(TaskCLI) {
		return string(TaskChat)
	}
	return t
}

// Context is the input a Template builds a Rule from, mirroring
// RuleTemplateContext in rule_templates.py.
type Context struct {
	GlobalModel *store.GlobalModel
	Model       *store.Model
	ProviderID  int64
	ModelName   string
	TaskType    string // already effective (cli normalized to chat)
}

// Template is a code-defined billing rule template, per
// rule_templates.py's CodeBillingRuleTemplate.
type Template struct {
	Name        string
	TaskTypes   map[string]bool
	Priority    int
	Build       func(ctx Context) (formula.Rule, error)
}

func (t Template) supports(taskType string) bool {
	return t.TaskTypes[strings.ToLower(taskType)]
}

// Scope reports where a resolved rule came from, per
// BillingRuleLookupResult.scope in rule_service.py.
type Scope string

const (
	ScopeModel   Scope = "model"
	ScopeGlobal  Scope = "global"
	ScopeDefault Scope = "default"
)

// Result is the outcome of Resolve.
type Result struct {
	Rule              formula.Rule
	Scope             Scope
	EffectiveTaskType string
}

// templates is the static registry replacing Python's importlib-discovered
// rule_defs package. It is not sorted: bestTemplate scans it for the
// highest-priority supporting template, keeping the earlier entry on a tie.
var templates = []Template{universalTemplate}

// Resolve implements rule_service.py's BillingRuleService.find_rule for
// the code-template and default-rule-generator branches: the DB-row
// lookup branch (querying GlobalModel/Model by name) is the caller's
// responsibility, since it owns the *gorm.DB session (spec.md §5's
// connection discipline). requireRule mirrors config.billing_require_rule.
func Resolve(globalModel *store.GlobalModel, model *store.Model, providerID int64, modelName, taskType string, requireRule bool) (*Result, error) {
	effectiveTask := EffectiveTaskType(taskType)
	ctx := Context{
		GlobalModel: globalModel,
		Model:       model,
		ProviderID:  providerID,
		ModelName:   modelName,
		TaskType:    effectiveTask,
	}

	if tmpl, ok := bestTemplate(effectiveTask); ok {
		built, err := tmpl.Build(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{Rule: built, Scope: ScopeDefault, EffectiveTaskType: effectiveTask}, nil
	}

	// Runtime default rule: always applies to chat; for other task types
	// only when the caller doesn't require an explicit rule, per
	// rule_service.py's backward-compatible fallback.
	if effectiveTask == string(TaskChat) || !requireRule {
		built, err := GenerateDefaultRule(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{Rule: built, Scope: ScopeDefault, EffectiveTaskType: effectiveTask}, nil
	}

	return nil, nil
}

func bestTemplate(taskType string) (Template, bool) {
	var best Template
	found := false
	for _, t := range templates {
		if !t.supports(taskType) {
			continue
		}
		if !found || t.Priority > best.Priority {
			best = t
			found = true
		}
	}
	return best, found
}

// CacheKey mirrors rule_service.py's cache key format: it must include
// every runtime knob that affects fallback behavior.
func CacheKey(providerID int64, modelName, effectiveTaskType string, requireRule bool) string {
	pid := ""
	if providerID != 0 {
		pid = fmt.Sprintf("%d", providerID)
	}
	require := 0
	if requireRule {
		require = 1
	}
	return fmt.Sprintf("%s:%s:%s:require=%d", pid, modelName, effectiveTaskType, require)
}
