// Package dimension implements the dimension collector runtime of spec.md
// §4.8: given the applicable collectors for an (api_format, task_type)
// pair, produce a flat dimension_name -> value map from the request,
// response, task metadata, or a computed expression over already-resolved
// dimensions. Grounded on the teacher's dot-path JSON field access style
// (relay/adaptor/*'s map[string]any response walking) and the original
// collector_defs preset shape (api_format/task_type/source_type/
// source_path/value_type/transform_expression/priority).
package dimension

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nexusgate/llmgateway/internal/billing/formula"
)

// SourceType identifies where a Collector reads its raw value from.
type SourceType string

const (
	SourceRequest  SourceType = "request"
	SourceResponse SourceType = "response"
	SourceMetadata SourceType = "metadata"
	SourceComputed SourceType = "computed"
)

// Collector is one dimension_collectors row, per spec.md §6/§4.8.
type Collector struct {
	APIFormat           string
	TaskType            string
	DimensionName       string
	SourceType          SourceType
	SourcePath          string
	ValueType           string // "int" | "float" | "string"
	TransformExpression string
	DefaultValue        string
	Priority            int
	IsEnabled           bool
}

// videoToChatFallback maps a video api_format to the chat api_format whose
// collectors should also apply, per spec.md §4.8's video fallback rule.
var videoToChatFallback = map[string]string{
	"openai:video": "openai:chat",
	"gemini:video": "gemini:chat",
	"claude:video": "claude:chat",
}

// Runtime resolves dimension values from the full collector set.
type Runtime struct {
	Collectors []Collector
}

// Collect implements spec.md §4.8: resolve every collector applicable to
// (apiFormat, taskType) — plus, for a `*:video` api_format, the matching
// `*:chat` collectors shipped as defaults — into a flat dimension map.
// baseDimensions seeds the result (e.g. token counts already known to the
// caller) and participates in computed-mapping resolution.
func (r *Runtime) Collect(apiFormat, taskType string, request, response, metadata map[string]any, baseDimensions map[string]any) map[string]any {
	applicable := r.applicableCollectors(apiFormat, taskType)

	byName := make(map[string][]Collector)
	for _, c := range applicable {
		byName[c.DimensionName] = append(byName[c.DimensionName], c)
	}

	result := make(map[string]any, len(baseDimensions)+len(byName))
	for k, v := range baseDimensions {
		result[k] = v
	}

	// Resolve non-computed dimensions first so computed ones can see them.
	names := sortedKeys(byName)
	for _, name := range names {
		if hasSourceType(byName[name], SourceComputed) {
			continue
		}
		if value, ok := resolveDimension(byName[name], request, response, metadata, result); ok {
			result[name] = value
		}
	}
	for _, name := range names {
		if !hasSourceType(byName[name], SourceComputed) {
			continue
		}
		if value, ok := resolveDimension(byName[name], request, response, metadata, result); ok {
			result[name] = value
		}
	}

	return result
}

func hasSourceType(collectors []Collector, want SourceType) bool {
	for _, c := range collectors {
		if c.SourceType == want {
			return true
		}
	}
	return false
}

// applicableCollectors filters to enabled collectors for (apiFormat,
// taskType), adding the chat-domain fallback set for a video api_format.
func (r *Runtime) applicableCollectors(apiFormat, taskType string) []Collector {
	var out []Collector
	formats := map[string]bool{apiFormat: true}
	if chatFormat, ok := videoToChatFallback[apiFormat]; ok {
		formats[chatFormat] = true
	}

	for _, c := range r.Collectors {
		if !c.IsEnabled {
			continue
		}
		if !formats[c.APIFormat] {
			continue
		}
		if !strings.EqualFold(c.TaskType, taskType) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// resolveDimension applies spec.md §4.8's resolution rule for one
// dimension_name: iterate its collectors in descending priority, taking
// the first that yields a non-null value after transform and value_type
// coercion.
func resolveDimension(collectors []Collector, request, response, metadata map[string]any, resolved map[string]any) (any, bool) {
	sorted := make([]Collector, len(collectors))
	copy(sorted, collectors)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	for _, c := range sorted {
		raw, ok := readSource(c, request, response, metadata, resolved)
		if !ok {
			continue
		}

		if c.TransformExpression != "" {
			transformed, ok := applyTransform(c.TransformExpression, raw, resolved)
			if ok {
				raw = transformed
			}
		}

		value, ok := coerce(raw, c.ValueType)
		if !ok {
			if c.DefaultValue != "" {
				if def, ok := coerce(c.DefaultValue, c.ValueType); ok {
					return def, true
				}
			}
			continue
		}
		return value, true
	}
	return nil, false
}

func readSource(c Collector, request, response, metadata map[string]any, resolved map[string]any) (any, bool) {
	switch c.SourceType {
	case SourceRequest:
		return dotPath(request, c.SourcePath)
	case SourceResponse:
		return dotPath(response, c.SourcePath)
	case SourceMetadata:
		return dotPath(metadata, c.SourcePath)
	case SourceComputed:
		v, ok := resolved["value"]
		if !ok {
			v = nil
		}
		return v, true
	default:
		return nil, false
	}
}

// dotPath applies a dot path to a nested map[string]any object, per
// spec.md §4.8.
func dotPath(obj map[string]any, path string) (any, bool) {
	if obj == nil || path == "" {
		return nil, false
	}
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// applyTransform evaluates transform_expression in a scope where `value`
// is the raw value and every already-resolved dimension is in scope, per
// spec.md §4.8.
func applyTransform(expr string, raw any, resolved map[string]any) (any, bool) {
	vars := make(map[string]decimal.Decimal, len(resolved)+1)
	for name, v := range resolved {
		if d, ok := decimalOf(v); ok {
			vars[name] = d
		}
	}
	if d, ok := decimalOf(raw); ok {
		vars["value"] = d
	}

	result, err := formula.Eval(expr, vars)
	if err != nil {
		return nil, false
	}
	return result, true
}

func decimalOf(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

// coerce applies value_type coercion, per spec.md §4.8: coercion failure
// is reported via ok=false so the caller can fall back to default_value
// or drop the dimension.
func coerce(raw any, valueType string) (any, bool) {
	switch valueType {
	case "int":
		switch v := raw.(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case float64:
			return int(v), true
		case decimal.Decimal:
			return int(v.IntPart()), true
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, false
			}
			return n, true
		default:
			return nil, false
		}
	case "float":
		switch v := raw.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case decimal.Decimal:
			f, _ := v.Float64()
			return f, true
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, false
			}
			return f, true
		default:
			return nil, false
		}
	case "string":
		switch v := raw.(type) {
		case string:
			return v, true
		case decimal.Decimal:
			return v.String(), true
		default:
			return fmt.Sprint(v), true // best-effort: let fmt.Sprint-equivalent stand
		}
	default:
		return raw, true
	}
}

func sortedKeys(m map[string][]Collector) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
