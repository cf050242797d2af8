package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/nexusgate/llmgateway/common"
	"github.com/nexusgate/llmgateway/common/config"
	"github.com/nexusgate/llmgateway/internal/detect"
	"github.com/nexusgate/llmgateway/internal/gatewayerr"
	"github.com/nexusgate/llmgateway/internal/httpclient"
	"github.com/nexusgate/llmgateway/internal/scheduler"
	"github.com/nexusgate/llmgateway/internal/signature"
	"github.com/nexusgate/llmgateway/internal/store"
	"github.com/nexusgate/llmgateway/internal/video"
)

// SubmitVideo handles the OpenAI/Gemini video submission routes of
// spec.md §4.7: pick a candidate the same way a chat request would, POST
// the submit request upstream, and persist the resulting VideoTask.
func (d *Deps) SubmitVideo() gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, key, err := d.authenticateClient(c.Request.Context(), c.Request)
		if err != nil {
			writeGatewayError(c, err)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeGatewayError(c, gatewayerr.InvalidRequest("read request body"))
			return
		}

		reqCtx, err := detect.Detect(c.Request.URL.Path, c.Request.Header, c.Request.URL.Query())
		if err != nil {
			writeGatewayError(c, gatewayerr.InvalidRequest("detect request signature"))
			return
		}
		reqCtx.Credential = cred

		var payload struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		_ = json.Unmarshal(body, &payload)
		model := payload.Model
		if model == "" {
			model, _ = splitGeminiModelAction(c.Param("model"))
		}
		if model == "" {
			writeGatewayError(c, gatewayerr.InvalidRequest("missing model"))
			return
		}

		resolution, err := d.resolveModel(c.Request.Context(), model)
		if err != nil {
			writeGatewayError(c, gatewayerr.Wrap(err, gatewayerr.KindMissingProviderInfo, "resolve model"))
			return
		}

		candidates := scheduler.BuildCandidates(resolution.Providers, reqCtx.Endpoint, model, "", true, false, nil, nil)
		if len(candidates) == 0 {
			writeGatewayError(c, gatewayerr.ProviderNotAvailable("no candidate provider for model "+model))
			return
		}
		candidate := candidates[0]

		endpoint, err := d.endpointByID(c.Request.Context(), candidate.EndpointID)
		if err != nil {
			writeGatewayError(c, err)
			return
		}
		apiKey, err := d.keyByID(c.Request.Context(), candidate.KeyID)
		if err != nil {
			writeGatewayError(c, err)
			return
		}
		providerSig, err := signature.ParseSignatureKey(endpoint.APIFamily + ":" + endpoint.EndpointKind)
		if err != nil {
			writeGatewayError(c, err)
			return
		}
		plainKey, err := common.DecryptSecret(apiKey.APIKeyEncrypted)
		if err != nil {
			writeGatewayError(c, gatewayerr.DecryptionError(err))
			return
		}

		post := func(ctx context.Context, convertedBody []byte) (int, []byte, error) {
			upstreamReq, err := buildUpstreamRequest(ctx, endpoint, providerSig, model, plainKey, convertedBody)
			if err != nil {
				return 0, nil, err
			}
			resp, err := httpclient.Default().Do(upstreamReq)
			if err != nil {
				return 0, nil, err
			}
			defer resp.Body.Close()
			respBody, err := io.ReadAll(resp.Body)
			if err != nil {
				return 0, nil, err
			}
			return resp.StatusCode, respBody, nil
		}

		operation, task, err := video.Submit(c.Request.Context(), d.Registry, video.SubmitRequest{
			UserID:            key.UserID,
			APIKeyID:          key.ID,
			ProviderID:        candidate.ProviderID,
			EndpointID:        candidate.EndpointID,
			KeyID:             candidate.KeyID,
			ClientSignature:   reqCtx.Endpoint,
			ProviderSignature: providerSig,
			Model:             model,
			Prompt:            payload.Prompt,
			OriginalBody:      body,
		}, post, config.VideoPollIntervalSeconds, config.VideoMaxPollCount)
		if err != nil {
			writeGatewayError(c, err)
			return
		}

		if err := d.DB.WithContext(c.Request.Context()).Create(task).Error; err != nil {
			writeGatewayError(c, errors.Wrap(err, "persist video task"))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"name":     operation,
			"done":     false,
			"metadata": gin.H{"short_id": task.ShortID, "state": string(task.Status)},
		})
	}
}

// GetVideoStatus handles the OpenAI/Gemini status-poll routes: look up a
// VideoTask by its opaque short id and report current state.
func (d *Deps) GetVideoStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		shortID := c.Param("id")
		if shortID == "" {
			shortID = c.Param("operation")
		}

		var task store.VideoTask
		if err := d.DB.WithContext(c.Request.Context()).Where("short_id = ?", shortID).First(&task).Error; err != nil {
			writeGatewayError(c, gatewayerr.InvalidRequest("video task not found"))
			return
		}

		done := task.Status == store.VideoTaskCompleted || task.Status == store.VideoTaskFailed || task.Status == store.VideoTaskCancelled
		resp := gin.H{
			"name":     "models/" + task.Model + "/operations/" + task.ShortID,
			"done":     done,
			"metadata": gin.H{"state": string(task.Status), "progress_percent": task.ProgressPercent},
		}
		if task.Status == store.VideoTaskCompleted {
			resp["response"] = gin.H{"video_url": task.VideoURL, "video_urls": []any(task.VideoURLs)}
		}
		if task.Status == store.VideoTaskFailed {
			resp["error"] = gin.H{"message": "video generation failed"}
		}
		c.JSON(http.StatusOK, resp)
	}
}
