package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/nexusgate/llmgateway/common"
	"github.com/nexusgate/llmgateway/common/logger"
	"github.com/nexusgate/llmgateway/internal/auth"
	"github.com/nexusgate/llmgateway/internal/convert"
	"github.com/nexusgate/llmgateway/internal/gatewayerr"
	"github.com/nexusgate/llmgateway/internal/httpclient"
	"github.com/nexusgate/llmgateway/internal/scheduler"
	"github.com/nexusgate/llmgateway/internal/signature"
	"github.com/nexusgate/llmgateway/internal/store"
	"github.com/nexusgate/llmgateway/internal/stream"
)

// relayRequest bundles one inbound client call's invariant data, shared by
// every family's handler.
type relayRequest struct {
	ClientSignature signature.Signature
	Model           string
	Body            []byte
	Streaming       bool

	UserID   int64
	APIKeyID int64
}

// relayOutcome is what the winning attempt produced, handed to billing
// settlement once the candidate dispatch loop returns.
type relayOutcome struct {
	ProviderID int64
	Model      string
	TaskType   string
	Usage      convert.Usage
	StatusCode int
}

// dispatch runs spec.md §4.5's candidate build + failover loop for a
// single request, writing the (possibly converted) response directly to w.
// taskType feeds billing's effective task type; streaming selects the
// stream.Processor path versus a buffered JSON request/response.
func (d *Deps) dispatch(ctx context.Context, req relayRequest, taskType string, w http.ResponseWriter) (*relayOutcome, error) {
	resolution, err := d.resolveModel(ctx, req.Model)
	if err != nil {
		return nil, gatewayerr.Wrap(err, gatewayerr.KindMissingProviderInfo, "resolve model")
	}

	candidates := scheduler.BuildCandidates(
		resolution.Providers,
		req.ClientSignature,
		req.Model,
		"",
		true,
		req.Streaming,
		nil,
		nil,
	)
	if len(candidates) == 0 {
		return nil, gatewayerr.ProviderNotAvailable("no candidate provider for model " + req.Model)
	}

	sc := stream.NewContext(req.Model, req.ClientSignature.Key())
	var outcome relayOutcome
	outcome.Model = req.Model
	outcome.TaskType = taskType

	attempt := func(ctx context.Context, candidate scheduler.Candidate) error {
		endpoint, err := d.endpointByID(ctx, candidate.EndpointID)
		if err != nil {
			return err
		}
		key, err := d.keyByID(ctx, candidate.KeyID)
		if err != nil {
			return err
		}

		providerSig, err := signature.ParseSignatureKey(endpoint.APIFamily + ":" + endpoint.EndpointKind)
		if err != nil {
			return scheduler.Retryable(err)
		}

		plainKey, err := common.DecryptSecret(key.APIKeyEncrypted)
		if err != nil {
			return gatewayerr.DecryptionError(err)
		}

		sc.ProviderID = candidate.ProviderID
		sc.EndpointID = candidate.EndpointID
		sc.KeyID = candidate.KeyID
		sc.ProviderAPIFormat = candidate.ProviderAPIFormat
		sc.AttemptID++

		body := req.Body
		if candidate.NeedsConversion {
			body, err = d.Registry.ConvertRequest(body, req.ClientSignature.Family, providerSig.Family)
			if err != nil {
				return errors.Wrap(err, "convert request body")
			}
		}

		upstreamReq, err := buildUpstreamRequest(ctx, endpoint, providerSig, req.Model, plainKey, body)
		if err != nil {
			return err
		}

		resp, err := httpclient.Default().Do(upstreamReq)
		if err != nil {
			return scheduler.Retryable(errors.Wrap(err, "upstream request failed"))
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return scheduler.Retryable(gatewayerr.ProviderNotAvailable("upstream returned 5xx"))
		}

		outcome.ProviderID = candidate.ProviderID

		if req.Streaming {
			return attemptStream(ctx, d.Registry, resp, sc, providerSig, w)
		}
		return d.attemptBuffered(ctx, resp, sc, req, providerSig, w)
	}

	if err := scheduler.Dispatch(ctx, candidates, scheduler.DefaultMaxCandidates, sc.ResetForRetry, attempt); err != nil {
		return nil, err
	}

	outcome.Usage = convert.Usage{
		InputTokens:  sc.InputTokens,
		OutputTokens: sc.OutputTokens,
		CachedTokens: sc.CachedTokens,
	}
	outcome.StatusCode = sc.StatusCode
	return &outcome, nil
}

// attemptStream runs the SSE path: headers are written once (disabling
// proxy buffering per spec.md §6), then the stream processor takes over.
func attemptStream(ctx context.Context, registry *convert.Registry, resp *http.Response, sc *stream.Context, providerSig signature.Signature, w http.ResponseWriter) error {
	common.SetEventStreamHeaders(w)
	w.WriteHeader(http.StatusOK)

	processor := stream.NewProcessor(registry)
	err := processor.Process(ctx, resp.Body, sc, providerSig.Family, w, func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	})
	if err != nil && gatewayerr.IsRetryableAcrossCandidates(err) {
		return scheduler.Retryable(err)
	}
	return err
}

// attemptBuffered runs the non-streaming path: read the full upstream
// body, screen it for an embedded error, convert if needed, and write it
// to the client.
func (d *Deps) attemptBuffered(ctx context.Context, resp *http.Response, sc *stream.Context, req relayRequest, providerSig signature.Signature, w http.ResponseWriter) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return scheduler.Retryable(errors.Wrap(err, "read upstream response"))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return scheduler.Retryable(gatewayerr.EmbeddedError(string(providerSig.Family), "", string(raw), resp.StatusCode))
	}

	var parsed map[string]any
	if json.Unmarshal(raw, &parsed) == nil {
		if code, message, status, isErr := d.Registry.IsErrorResponse(parsed, providerSig.Family); isErr {
			return scheduler.Retryable(gatewayerr.EmbeddedError(string(providerSig.Family), code, message, status))
		}
	}

	out := raw
	needsConversion := req.ClientSignature.Family != providerSig.Family
	if needsConversion {
		out, err = d.Registry.ConvertResponse(raw, providerSig.Family, req.ClientSignature.Family)
		if err != nil {
			return errors.Wrap(err, "convert response body")
		}
	}

	if usage, ok := d.Registry.ExtractUsage(raw, providerSig.Family); ok {
		sc.InputTokens = usage.InputTokens
		sc.OutputTokens = usage.OutputTokens
		sc.CachedTokens = usage.CachedTokens
	}

	sc.StatusCode = resp.StatusCode
	sc.ResponseHeaders = resp.Header.Clone()
	logger.Logger.Debug("relay attempt complete",
		zap.Int("status", resp.StatusCode),
		zap.Int("input_tokens", sc.InputTokens),
		zap.Int("output_tokens", sc.OutputTokens))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(out)
	return err
}

// buildUpstreamRequest resolves the endpoint URL and injects auth/extra
// headers, per spec.md §4.2/§6.
func buildUpstreamRequest(ctx context.Context, endpoint *store.ProviderEndpoint, providerSig signature.Signature, model, plainKey string, body []byte) (*http.Request, error) {
	def, _ := signature.ResolveEndpointDefinition(providerSig)

	url := strings.TrimRight(endpoint.BaseURL, "/") + strings.ReplaceAll(def.DefaultPath, "{model}", model)

	handler := auth.DefaultRegistry()[def.AuthMethod]
	cred := auth.Credential{Method: def.AuthMethod, Value: plainKey}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build upstream request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if handler != nil {
		for k, v := range handler.BuildUpstreamHeaders(cred) {
			httpReq.Header[k] = v
		}
	}
	for k, v := range def.ExtraStaticHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range endpoint.ExtraHeaders {
		if s, ok := v.(string); ok {
			httpReq.Header.Set(k, s)
		}
	}

	return httpReq, nil
}

// settleUsage persists the Usage row for one completed request, computing
// cost via the shadow billing engine per spec.md §4.11's reconciliation
// between the legacy flat-ratio truth and the new rule engine.
func (d *Deps) settleUsage(ctx context.Context, resolution *modelResolution, req relayRequest, outcome *relayOutcome) error {
	return d.settleUsageTx(ctx, d.DB, resolution, req, outcome)
}

// settleUsageTx is settleUsage parameterized on the gorm handle; its only
// caller is settleUsage, which passes d.DB.
func (d *Deps) settleUsageTx(ctx context.Context, tx *gorm.DB, resolution *modelResolution, req relayRequest, outcome *relayOutcome) error {
	model := resolution.ModelByProvider[outcome.ProviderID]

	var provider store.Provider
	providerName := ""
	if err := tx.WithContext(ctx).Select("name").First(&provider, outcome.ProviderID).Error; err == nil {
		providerName = provider.Name
	}

	legacyTruth := legacyCostBreakdown(resolution.GlobalModel, outcome.Usage)

	shadowResult, err := d.Shadow.CalculateWithShadow(serviceCalculateInput(
		providerName, outcome.ProviderID, resolution.GlobalModel, model,
		outcome.Model, outcome.TaskType, outcome.Usage, outcome.StatusCode, legacyTruth, d.Overrides,
	))
	if err != nil {
		return errors.Wrap(err, "calculate billing")
	}

	metadata := store.JSONColumn{
		"billing_engine_mode": string(shadowResult.EngineMode),
		"billing_truth":       string(shadowResult.TruthEngine),
		"billing_comparison":  shadowResult.Comparison,
	}
	if shadowResult.ShadowSnapshot != nil {
		metadata["billing_snapshot"] = shadowResult.ShadowSnapshot
	}

	usage := store.Usage{
		UserID:          req.UserID,
		APIKeyID:        req.APIKeyID,
		ProviderID:      outcome.ProviderID,
		Model:           outcome.Model,
		TaskType:        outcome.TaskType,
		InputTokens:     outcome.Usage.InputTokens,
		OutputTokens:    outcome.Usage.OutputTokens,
		CachedTokens:    outcome.Usage.CachedTokens,
		ReasoningTokens: outcome.Usage.ReasoningTokens,
		RequestCostUSD:  strconv.FormatFloat(shadowResult.TruthBreakdown.TotalCost, 'f', -1, 64),
		RequestMetadata: metadata,
		CreatedAt:       time.Now(),
	}
	return tx.WithContext(ctx).Create(&usage).Error
}
