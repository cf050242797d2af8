package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/nexusgate/llmgateway/common"
	"github.com/nexusgate/llmgateway/internal/gatewayerr"
	"github.com/nexusgate/llmgateway/internal/httpclient"
	"github.com/nexusgate/llmgateway/internal/signature"
	"github.com/nexusgate/llmgateway/internal/store"
	"github.com/nexusgate/llmgateway/internal/video"
)

// NewPoller builds the video.Poller whose Preparer/Fetcher/Settler close
// over d, per spec.md §4.7's three-phase tick (prepare under a brief DB
// session, fetch with no DB session held, settle billing on terminality).
func (d *Deps) NewPoller(batchSize int, baseInterval time.Duration) *video.Poller {
	return &video.Poller{
		DB:           d.DB,
		Prepare:      d.prepareVideoPoll,
		Fetch:        fetchVideoPoll,
		Settle:       d.settleVideoTask,
		BatchSize:    batchSize,
		BaseInterval: baseInterval,
	}
}

// prepareVideoPoll resolves a task's endpoint/key and builds the upstream
// status-check URL/headers, matching spec.md §4.7's Gemini
// operations.get/OpenAI videos.retrieve status-endpoint shape.
func (d *Deps) prepareVideoPoll(ctx context.Context, task *store.VideoTask) (*video.VideoPollContext, error) {
	endpoint, err := d.endpointByID(ctx, task.EndpointID)
	if err != nil {
		return nil, err
	}
	key, err := d.keyByID(ctx, task.KeyID)
	if err != nil {
		return nil, err
	}
	providerSig, err := signature.ParseSignatureKey(endpoint.APIFamily + ":" + endpoint.EndpointKind)
	if err != nil {
		return nil, err
	}
	plainKey, err := common.DecryptSecret(key.APIKeyEncrypted)
	if err != nil {
		return nil, gatewayerr.DecryptionError(err)
	}

	req, err := buildUpstreamRequest(ctx, endpoint, providerSig, task.Model, plainKey, nil)
	if err != nil {
		return nil, err
	}
	req.Method = http.MethodGet

	statusPath := "/v1/videos/" + task.ExternalTaskID
	if providerSig.Family == signature.FamilyGemini {
		statusPath = "/v1beta/" + task.ExternalTaskID
	}
	url := req.URL.Scheme + "://" + req.URL.Host + statusPath
	if req.URL.RawQuery != "" {
		url += "?" + req.URL.RawQuery
	}

	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}

	return &video.VideoPollContext{StatusURL: url, Headers: headers}, nil
}

// fetchVideoPoll performs the upstream status GET with no DB session
// held, per spec.md §4.7 phase 2.
func fetchVideoPoll(ctx context.Context, pollCtx *video.VideoPollContext) (*video.PollOutcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollCtx.StatusURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build poll request")
	}
	for k, v := range pollCtx.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpclient.Impatient().Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "poll upstream status")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read poll response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &video.PollHTTPError{Status: resp.StatusCode, Message: string(raw)}
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrap(err, "parse poll response")
	}

	return parsePollOutcome(parsed), nil
}

// parsePollOutcome tolerates both Gemini's operations.get ({done,
// response: {generateVideoResponse: {...}}}) and OpenAI's
// videos.retrieve ({status, progress, video: {url}}) response shapes.
func parsePollOutcome(parsed map[string]any) *video.PollOutcome {
	if done, ok := parsed["done"].(bool); ok {
		outcome := &video.PollOutcome{Done: done, Status: store.VideoTaskProcessing}
		if done {
			outcome.Status = store.VideoTaskCompleted
			if response, ok := parsed["response"].(map[string]any); ok {
				if url, ok := firstVideoURL(response); ok {
					outcome.VideoURL = url
				}
			}
			if _, hasError := parsed["error"]; hasError {
				outcome.Status = store.VideoTaskFailed
			}
		}
		return outcome
	}

	status, _ := parsed["status"].(string)
	outcome := &video.PollOutcome{}
	switch status {
	case "completed", "succeeded":
		outcome.Done = true
		outcome.Status = store.VideoTaskCompleted
		if v, ok := parsed["video"].(map[string]any); ok {
			if url, ok := v["url"].(string); ok {
				outcome.VideoURL = url
			}
		}
	case "failed", "error":
		outcome.Done = true
		outcome.Status = store.VideoTaskFailed
	default:
		outcome.Done = false
		outcome.Status = store.VideoTaskProcessing
	}
	if progress, ok := parsed["progress"].(float64); ok {
		outcome.ProgressPercent = int(progress)
	}
	return outcome
}

func firstVideoURL(response map[string]any) (string, bool) {
	gen, ok := response["generateVideoResponse"].(map[string]any)
	if !ok {
		return "", false
	}
	samples, ok := gen["generatedSamples"].([]any)
	if !ok || len(samples) == 0 {
		return "", false
	}
	sample, ok := samples[0].(map[string]any)
	if !ok {
		return "", false
	}
	videoObj, ok := sample["video"].(map[string]any)
	if !ok {
		return "", false
	}
	uri, ok := videoObj["uri"].(string)
	return uri, ok
}

// settleVideoTask persists a terminal (completed/failed) video task's
// usage row inside the same transaction as the status update, per
// spec.md §4.7/§4.11.
func (d *Deps) settleVideoTask(ctx context.Context, tx *gorm.DB, task *store.VideoTask) error {
	if task.Status != store.VideoTaskCompleted && task.Status != store.VideoTaskFailed {
		return nil
	}

	resolution, err := d.resolveModel(ctx, task.Model)
	if err != nil {
		return err
	}
	model := resolution.ModelByProvider[task.ProviderID]

	durationSeconds := float64(task.DurationSeconds)
	if task.VideoDurationSeconds != nil {
		durationSeconds = *task.VideoDurationSeconds
	}

	// spec.md §8: a failed terminal status bills no request_count, matching
	// the chat/cli path's IsFailedRequest handling.
	requestCount := 1
	if task.Status == store.VideoTaskFailed {
		requestCount = 0
	}
	result, err := d.Shadow.Billing.Calculate(resolution.GlobalModel, model, task.ProviderID, task.Model, "video", map[string]any{
		"duration_seconds": durationSeconds,
		"resolution":       task.Resolution,
		"request_count":    requestCount,
	}, nil)
	if err != nil {
		return errors.Wrap(err, "calculate video billing")
	}

	usage := store.Usage{
		UserID:          task.UserID,
		APIKeyID:        task.APIKeyID,
		ProviderID:      task.ProviderID,
		Model:           task.Model,
		TaskType:        "video",
		RequestCostUSD:  strconv.FormatFloat(result.Cost, 'f', -1, 64),
		RequestMetadata: store.JSONColumn{"billing_snapshot": result.Snapshot},
		CreatedAt:       time.Now(),
	}
	return tx.WithContext(ctx).Create(&usage).Error
}
