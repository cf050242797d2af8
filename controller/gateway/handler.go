package gateway

import (
	stderrors "errors"

	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexusgate/llmgateway/common"
	"github.com/nexusgate/llmgateway/internal/detect"
	"github.com/nexusgate/llmgateway/internal/gatewayerr"
)

// splitGeminiModelAction splits Gemini's ":"-joined "model:action" path
// segment, per spec.md §4.3's Gemini route shape.
func splitGeminiModelAction(segment string) (model, action string) {
	idx := strings.LastIndex(segment, ":")
	if idx < 0 {
		return segment, ""
	}
	return segment[:idx], segment[idx+1:]
}

// GeminiModelAction dispatches the single ":model"-captured Gemini route
// to the right handler based on its ":action" suffix (generateContent,
// streamGenerateContent, predictLongRunning), since gin can't register
// three distinct routes that share one path segment.
func (d *Deps) GeminiModelAction() gin.HandlerFunc {
	chat := d.Relay("chat")
	video := d.SubmitVideo()
	return func(c *gin.Context) {
		_, action := splitGeminiModelAction(c.Param("model"))
		switch action {
		case "predictLongRunning":
			video(c)
		default:
			chat(c)
		}
	}
}

// Relay handles one of the three chat-shaped client-facing routes of
// spec.md §6 (OpenAI chat/responses, Claude messages, Gemini
// generateContent): detect the request's signature, run dispatch's
// candidate/failover loop, and settle billing once it succeeds.
// taskType feeds the billing engine's task-type dimension.
func (d *Deps) Relay(taskType string) gin.HandlerFunc {
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
			Stream bool   `json:"stream"`
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

		req := relayRequest{
			ClientSignature: reqCtx.Endpoint,
			Model:           model,
			Body:            body,
			Streaming:       payload.Stream,
			UserID:          key.UserID,
			APIKeyID:        key.ID,
		}

		resolution, rerr := d.resolveModel(c.Request.Context(), model)
		if rerr != nil {
			writeGatewayError(c, gatewayerr.Wrap(rerr, gatewayerr.KindMissingProviderInfo, "resolve model"))
			return
		}

		outcome, err := d.dispatch(c.Request.Context(), req, taskType, c.Writer)
		if err != nil {
			writeGatewayError(c, err)
			return
		}

		if err := d.settleUsage(c.Request.Context(), resolution, req, outcome); err != nil {
			// Billing settlement failing after a successful upstream
			// response must not turn into a client-visible error: the
			// response body is already written by this point.
			_ = err
		}
	}
}

// writeGatewayError maps a gatewayerr (or plain error) to its HTTP status
// and an OpenAI-shaped error body, per spec.md §4.12/§7.
func writeGatewayError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	var gerr *gatewayerr.Error
	if stderrors.As(err, &gerr) {
		status = gatewayerr.HTTPStatus(gerr.Kind)
		message = gerr.Message
	}
	message = common.SanitizeErrorMessage(message)
	c.JSON(status, gin.H{"error": gin.H{"message": message, "type": "gateway_error"}})
}
