package rule

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nexusgate/llmgateway/internal/billing/formula"
)

var wxhPattern = regexp.MustCompile(`^(\d+)x(\d+)$`)

// normalizeResolutionKey mirrors rule_defs/universal.py's
// _normalize_resolution_key: lowercase, strip spaces, "×" to "x", and sort
// WxH pairs ascending so "1080x720" and "720x1080" collide in the price
// map.
func normalizeResolutionKey(raw string) string {
	k := strings.ToLower(strings.TrimSpace(raw))
	k = strings.ReplaceAll(k, " ", "")
	k = strings.ReplaceAll(k, "×", "x")

	match := wxhPattern.FindStringSubmatch(k)
	if match == nil {
		return k
	}
	a, errA := strconv.Atoi(match[1])
	b, errB := strconv.Atoi(match[2])
	if errA != nil || errB != nil {
		return k
	}
	if a <= b {
		return strconv.Itoa(a) + "x" + strconv.Itoa(b)
	}
	return strconv.Itoa(b) + "x" + strconv.Itoa(a)
}

// effectiveUnitPrice reads config.billing.video.price_per_second,
// model-config first then global-model config, per
// _effective_unit_price.
func effectiveUnitPrice(ctx Context) string {
	if ctx.Model != nil {
		if v, ok := asFloatString(getNested(configOf(ctx.Model.Config), "billing.video.price_per_second")); ok {
			return v
		}
	}
	if ctx.GlobalModel != nil {
		if v, ok := asFloatString(getNested(configOf(ctx.GlobalModel.Config), "billing.video.price_per_second")); ok {
			return v
		}
	}
	return "0"
}

// effectiveResolutionPriceMap builds the resolution -> price_per_second
// map, per _effective_resolution_price_per_second: a direct
// price_per_second_by_resolution map wins; failing that, a
// resolution_multipliers map is applied against the flat unit price for
// backward compatibility.
func effectiveResolutionPriceMap(ctx Context) map[string]string {
	for _, cfg := range effectiveConfigs(ctx) {
		raw, ok := getNested(cfg, "billing.video.price_per_second_by_resolution").(map[string]any)
		if !ok {
			continue
		}
		out := map[string]string{}
		for k, v := range raw {
			fk := normalizeResolutionKey(k)
			fv, ok := asFloatString(v)
			if fk == "" || !ok {
				continue
			}
			out[fk] = fv
		}
		if len(out) > 0 {
			return out
		}
	}

	basePrice := effectiveUnitPrice(ctx)
	base, err := strconv.ParseFloat(basePrice, 64)
	if err != nil || base <= 0 {
		return map[string]string{}
	}
	for _, cfg := range effectiveConfigs(ctx) {
		raw, ok := getNested(cfg, "billing.video.resolution_multipliers").(map[string]any)
		if !ok {
			continue
		}
		out := map[string]string{}
		for k, v := range raw {
			fk := normalizeResolutionKey(k)
			mvStr, ok := asFloatString(v)
			if fk == "" || !ok {
				continue
			}
			mv, err := strconv.ParseFloat(mvStr, 64)
			if err != nil {
				continue
			}
			out[fk] = strconv.FormatFloat(base*mv, 'f', -1, 64)
		}
		if len(out) > 0 {
			return out
		}
	}
	return map[string]string{}
}

func effectiveConfigs(ctx Context) []map[string]any {
	var configs []map[string]any
	if ctx.Model != nil {
		configs = append(configs, configOf(ctx.Model.Config))
	}
	configs = append(configs, configOf(nestedGlobalConfig(ctx)))
	return configs
}

func nestedGlobalConfig(ctx Context) map[string]any {
	if ctx.GlobalModel == nil {
		return nil
	}
	return ctx.GlobalModel.Config
}

// buildUniversal wraps the default per-token/per-request rule with a
// video-duration cost component, per rule_defs/universal.py's
// build_universal: total = (token + request costs) + video_cost.
func buildUniversal(ctx Context) (formula.Rule, error) {
	base, err := GenerateDefaultRule(ctx)
	if err != nil {
		return formula.Rule{}, err
	}

	unitPrice := effectiveUnitPrice(ctx)
	resolutionPrices := effectiveResolutionPriceMap(ctx)

	mappings := make(map[string]formula.Mapping, len(base.DimensionMappings)+3)
	for k, v := range base.DimensionMappings {
		mappings[k] = v
	}

	mappings["duration_seconds"] = formula.Mapping{
		Source:    formula.SourceDimension,
		Key:       "duration_seconds",
		AllowZero: true,
		Default:   "0",
	}
	mappings["video_price_per_second"] = formula.Mapping{
		Source:    formula.SourceMatrix,
		Key:       "video_resolution_key",
		AllowZero: true,
		Default:   unitPrice,
		Map:       resolutionPrices,
	}
	mappings["video_cost"] = formula.Mapping{
		Source:     formula.SourceComputed,
		Expression: "duration_seconds * video_price_per_second",
		AllowZero:  true,
		Default:    "0",
	}

	return formula.Rule{
		ID:                "__default__",
		Name:              "Universal Billing Rule",
		Expression:         "(" + base.Expression + ") + video_cost",
		Variables:         base.Variables,
		DimensionMappings: mappings,
	}, nil
}

var universalTemplate = Template{
	Name:      "universal",
	TaskTypes: map[string]bool{"chat": true, "cli": true, "video": true, "image": true, "audio": true},
	Priority:  100,
	Build:     buildUniversal,
}
