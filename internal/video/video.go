// Package video implements the asynchronous video task pipeline of spec.md
// §4.7: submit, distributed-locked polling with exponential backoff, and
// settlement. Grounded on the teacher's replicate adaptor
// (relay/adaptor/replicate) for the general shape of a long-running
// generation job, generalized from that adaptor's single-provider polling
// into a provider-agnostic VideoTask lifecycle backed by internal/store.
package video

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"

	"github.com/nexusgate/llmgateway/internal/convert"
	"github.com/nexusgate/llmgateway/internal/gatewayerr"
	"github.com/nexusgate/llmgateway/internal/signature"
	"github.com/nexusgate/llmgateway/internal/store"
)

// SubmitRequest carries everything the submit path needs about the
// inbound client request and the chosen candidate.
type SubmitRequest struct {
	UserID     int64
	APIKeyID   int64
	ProviderID int64
	EndpointID int64
	KeyID      int64

	ClientSignature   signature.Signature
	ProviderSignature signature.Signature

	Model  string
	Prompt string

	OriginalBody []byte

	DurationSeconds int
	Resolution      string
	AspectRatio     string

	RequestMetadata map[string]any
}

// UpstreamPoster performs the actual submit POST to the upstream provider
// and returns the raw response body. The caller has already resolved the
// endpoint URL and injected auth headers; UpstreamPoster only speaks HTTP.
type UpstreamPoster func(ctx context.Context, body []byte) (status int, respBody []byte, err error)

// newOpaqueID returns a public-facing opaque identifier, never derived
// from or traceable to the upstream's own task id.
func newOpaqueID() string {
	return gutils.UUID7()
}

// extractExternalTaskID pulls the upstream's own task identifier out of a
// submit response: Gemini long-running operations use "name"
// (operations/abc), OpenAI video jobs use "id".
func extractExternalTaskID(respBody []byte, family signature.ApiFamily) (string, error) {
	var parsed map[string]any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.Wrap(err, "parse submit response")
	}

	var raw any
	switch family {
	case signature.FamilyGemini:
		raw = parsed["name"]
	default:
		raw = parsed["id"]
	}

	id, ok := raw.(string)
	if !ok || id == "" {
		return "", gatewayerr.MissingExternalTaskID()
	}
	return id, nil
}

// operationName renders the short_id-derived handle returned to clients.
// The upstream id never appears in it.
func operationName(model, shortID string) string {
	return "models/" + model + "/operations/" + shortID
}

// Submit implements spec.md §4.7's submit path: convert the inbound body
// via the normalizer if needed and POST to the upstream, then build the
// VideoTask record to persist. It does not touch the database itself —
// the caller persists the returned task (and a pending Usage row) in one
// short-lived session, translating a unique-constraint violation on
// external_task_id into a conflict response.
func Submit(
	ctx context.Context,
	registry *convert.Registry,
	req SubmitRequest,
	post UpstreamPoster,
	pollIntervalSeconds, maxPollCount int,
) (operation string, task *store.VideoTask, err error) {
	body := req.OriginalBody
	formatConverted := req.ClientSignature.Family != req.ProviderSignature.Family
	if formatConverted {
		body, err = registry.ConvertRequest(body, req.ClientSignature.Family, req.ProviderSignature.Family)
		if err != nil {
			return "", nil, errors.Wrap(err, "convert submit request")
		}
	}

	status, respBody, err := post(ctx, body)
	if err != nil {
		return "", nil, errors.Wrap(err, "post submit request upstream")
	}
	if status >= http.StatusBadRequest {
		return "", nil, gatewayerr.ProviderNotAvailable("upstream rejected video submit")
	}

	externalID, err := extractExternalTaskID(respBody, req.ProviderSignature.Family)
	if err != nil {
		return "", nil, err
	}

	shortID := newOpaqueID()
	metadata := store.JSONColumn(req.RequestMetadata)

	now := time.Now()
	task = &store.VideoTask{
		ShortID:             shortID,
		ExternalTaskID:      externalID,
		UserID:              req.UserID,
		APIKeyID:            req.APIKeyID,
		ProviderID:          req.ProviderID,
		EndpointID:          req.EndpointID,
		KeyID:               req.KeyID,
		ClientAPIFormat:     req.ClientSignature.Key(),
		ProviderAPIFormat:   req.ProviderSignature.Key(),
		FormatConverted:     formatConverted,
		Model:               req.Model,
		Prompt:              req.Prompt,
		OriginalRequestBody: req.OriginalBody,
		ConvertedRequestBody: body,
		DurationSeconds:     req.DurationSeconds,
		Resolution:          req.Resolution,
		AspectRatio:         req.AspectRatio,
		Status:              store.VideoTaskSubmitted,
		PollIntervalSeconds: pollIntervalSeconds,
		NextPollAt:          now.Add(time.Duration(pollIntervalSeconds) * time.Second),
		MaxPollCount:        maxPollCount,
		RequestMetadata:     metadata,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	return operationName(req.Model, shortID), task, nil
}
