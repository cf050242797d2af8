package gateway

import (
	"context"

	"github.com/Laisky/errors/v2"

	"github.com/nexusgate/llmgateway/internal/convert"
	"github.com/nexusgate/llmgateway/internal/scheduler"
	"github.com/nexusgate/llmgateway/internal/signature"
	"github.com/nexusgate/llmgateway/internal/store"
)

// modelResolution is everything a dispatch needs about a requested model:
// its GlobalModel row, the candidate providers that serve it, and each
// provider's own Model row (for per-provider billing config overrides).
type modelResolution struct {
	GlobalModel   *store.GlobalModel
	Providers     []scheduler.Provider
	ModelByProvider map[int64]*store.Model
}

// resolveModel loads the provider/endpoint/key candidates for modelName,
// per spec.md §3's Provider/ProviderEndpoint/ProviderAPIKey triple.
func (d *Deps) resolveModel(ctx context.Context, modelName string) (*modelResolution, error) {
	var gm store.GlobalModel
	if err := d.DB.WithContext(ctx).Where("name = ?", modelName).First(&gm).Error; err != nil {
		return nil, errors.Wrapf(err, "look up global model %q", modelName)
	}

	var models []store.Model
	if err := d.DB.WithContext(ctx).Where("global_model_id = ?", gm.ID).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list provider models")
	}
	if len(models) == 0 {
		return nil, errors.Errorf("model %q has no provider mapping", modelName)
	}

	modelByProvider := make(map[int64]*store.Model, len(models))
	providerIDs := make([]int64, 0, len(models))
	for i := range models {
		modelByProvider[models[i].ProviderID] = &models[i]
		providerIDs = append(providerIDs, models[i].ProviderID)
	}

	var providers []store.Provider
	if err := d.DB.WithContext(ctx).
		Where("id IN ? AND enabled", providerIDs).
		Preload("Endpoints").Preload("Keys").
		Find(&providers).Error; err != nil {
		return nil, errors.Wrap(err, "list providers")
	}

	result := make([]scheduler.Provider, 0, len(providers))
	for _, p := range providers {
		sp := scheduler.Provider{ID: p.ID}
		for _, e := range p.Endpoints {
			sig, err := signature.ParseSignatureKey(e.APIFamily + ":" + e.EndpointKind)
			if err != nil {
				continue
			}
			sp.Endpoints = append(sp.Endpoints, scheduler.ProviderEndpoint{
				ID:         e.ID,
				Signature:  sig,
				Acceptance: acceptanceFromConfig(e.FormatAcceptanceConfig),
				Enabled:    e.Enabled,
			})
		}
		for _, k := range p.Keys {
			sp.Keys = append(sp.Keys, scheduler.ProviderKey{
				ID:               k.ID,
				APIFormats:       stringsFromJSONList(k.APIFormats),
				InternalPriority: k.InternalPriority,
				Enabled:          k.Enabled,
			})
		}
		result = append(result, sp)
	}

	return &modelResolution{GlobalModel: &gm, Providers: result, ModelByProvider: modelByProvider}, nil
}

func acceptanceFromConfig(col store.JSONColumn) convert.FormatAcceptanceConfig {
	acc := convert.FormatAcceptanceConfig{Enabled: true}
	if col == nil {
		return acc
	}
	if v, ok := col["enabled"].(bool); ok {
		acc.Enabled = v
	}
	acc.AcceptFormats = stringsFromAny(col["accept_formats"])
	acc.RejectFormats = stringsFromAny(col["reject_formats"])
	if v, ok := col["stream_conversion"].(bool); ok {
		acc.StreamConversion = v
	}
	return acc
}

func stringsFromJSONList(list store.JSONList) []string {
	return stringsFromAny([]any(list))
}

func stringsFromAny(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// endpointByID finds a provider's ProviderEndpoint row by id, needed once a
// candidate has been selected to build the upstream request.
func (d *Deps) endpointByID(ctx context.Context, id int64) (*store.ProviderEndpoint, error) {
	var ep store.ProviderEndpoint
	if err := d.DB.WithContext(ctx).First(&ep, id).Error; err != nil {
		return nil, errors.Wrapf(err, "look up provider endpoint %d", id)
	}
	return &ep, nil
}

// keyByID finds a provider's ProviderAPIKey row by id.
func (d *Deps) keyByID(ctx context.Context, id int64) (*store.ProviderAPIKey, error) {
	var key store.ProviderAPIKey
	if err := d.DB.WithContext(ctx).First(&key, id).Error; err != nil {
		return nil, errors.Wrapf(err, "look up provider api key %d", id)
	}
	return &key, nil
}
