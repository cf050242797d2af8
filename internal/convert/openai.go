package convert

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/nexusgate/llmgateway/internal/signature"
)

// OpenAINormalizer translates between OpenAI-shaped chat completion bodies
// and this gateway's canonical request form, grounded on the field
// extraction style of relay/adaptor/openai/adaptor_response.go and
// relay/adaptor/openai/response_model.go (choices[].message/delta content,
// usage.{prompt,completion,total}_tokens).
type OpenAINormalizer struct{}

type openaiChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage"`
}

type openaiChoice struct {
	Message      *openaiMessage `json:"message"`
	Delta        *openaiMessage `json:"delta"`
	FinishReason string         `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	PromptTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	CompletionTokensDetails struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

type openaiError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (OpenAINormalizer) toCanonical(body []byte) (canonicalRequest, error) {
	var req openaiChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return canonicalRequest{}, errors.Wrap(err, "decode openai request")
	}
	out := canonicalRequest{
		Model:       req.Model,
		Stream:      req.Stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		if m.Role == "system" {
			out.System = m.Content
			continue
		}
		out.Messages = append(out.Messages, canonicalMessage{Role: m.Role, Text: m.Content})
	}
	return out, nil
}

func (OpenAINormalizer) fromCanonical(c canonicalRequest) ([]byte, error) {
	req := openaiChatRequest{
		Model:       c.Model,
		Stream:      c.Stream,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
	if c.System != "" {
		req.Messages = append(req.Messages, openaiMessage{Role: "system", Content: c.System})
	}
	for _, m := range c.Messages {
		req.Messages = append(req.Messages, openaiMessage{Role: m.Role, Content: m.Text})
	}
	return json.Marshal(req)
}

// ConvertRequest implements Normalizer. OpenAI only needs to know how to
// read its own shape into canonical form; the other family's shape is
// written by that family's normalizer's fromCanonical, called directly here.
func (n OpenAINormalizer) ConvertRequest(body []byte, src, dst signature.ApiFamily) ([]byte, error) {
	canonical, err := n.toCanonical(body)
	if err != nil {
		return nil, err
	}
	switch dst {
	case signature.FamilyClaude:
		return ClaudeNormalizer{}.fromCanonical(canonical)
	case signature.FamilyGemini:
		return GeminiNormalizer{}.fromCanonical(canonical)
	default:
		return n.fromCanonical(canonical)
	}
}

func (n OpenAINormalizer) ConvertResponse(body []byte, src, dst signature.ApiFamily) ([]byte, error) {
	usage, _ := n.ExtractUsage(body, src)
	text, _ := n.ExtractText(body, src)
	switch dst {
	case signature.FamilyClaude:
		return ClaudeNormalizer{}.renderResponse(text, usage), nil
	case signature.FamilyGemini:
		return GeminiNormalizer{}.renderResponse(text, usage), nil
	default:
		return body, nil
	}
}

func (n OpenAINormalizer) ConvertStreamLine(line []byte, src, dst signature.ApiFamily) ([]byte, error) {
	if string(line) == "[DONE]" {
		return line, nil
	}
	var chunk openaiChatResponse
	if err := json.Unmarshal(line, &chunk); err != nil {
		return nil, errors.Wrap(err, "decode openai stream chunk")
	}
	var text string
	if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil {
		text = chunk.Choices[0].Delta.Content
	}
	switch dst {
	case signature.FamilyClaude:
		return ClaudeNormalizer{}.renderStreamDelta(text), nil
	case signature.FamilyGemini:
		return GeminiNormalizer{}.renderStreamDelta(text), nil
	default:
		return line, nil
	}
}

func (OpenAINormalizer) ExtractUsage(body []byte, src signature.ApiFamily) (Usage, bool) {
	var resp openaiChatResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Usage == nil {
		return Usage{}, false
	}
	u := resp.Usage
	return Usage{
		InputTokens:     u.PromptTokens,
		OutputTokens:    u.CompletionTokens,
		TotalTokens:     u.TotalTokens,
		CachedTokens:    u.PromptTokensDetails.CachedTokens,
		ReasoningTokens: u.CompletionTokensDetails.ReasoningTokens,
	}, true
}

func (OpenAINormalizer) ExtractText(body []byte, src signature.ApiFamily) (string, bool) {
	var resp openaiChatResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Choices) == 0 {
		return "", false
	}
	c := resp.Choices[0]
	if c.Message != nil && c.Message.Content != "" {
		return c.Message.Content, true
	}
	if c.Delta != nil {
		return c.Delta.Content, c.Delta.Content != ""
	}
	return "", false
}

func (OpenAINormalizer) IsErrorResponse(body map[string]any, src signature.ApiFamily) (string, string, int, bool) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", "", 0, false
	}
	var e openaiError
	if err := json.Unmarshal(raw, &e); err != nil || e.Error == nil {
		return "", "", 0, false
	}
	code := ""
	if e.Error.Code != nil {
		if s, ok := e.Error.Code.(string); ok {
			code = s
		}
	}
	return code, e.Error.Message, 0, true
}

func (n OpenAINormalizer) renderResponse(text string, u Usage) []byte {
	resp := openaiChatResponse{
		Choices: []openaiChoice{{Message: &openaiMessage{Role: "assistant", Content: text}, FinishReason: "stop"}},
		Usage: &openaiUsage{
			PromptTokens:     u.InputTokens,
			CompletionTokens: u.OutputTokens,
			TotalTokens:      u.TotalTokens,
		},
	}
	out, _ := json.Marshal(resp)
	return out
}

func (n OpenAINormalizer) renderStreamDelta(text string) []byte {
	resp := openaiChatResponse{Choices: []openaiChoice{{Delta: &openaiMessage{Content: text}}}}
	out, _ := json.Marshal(resp)
	return out
}
