package convert

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/nexusgate/llmgateway/internal/signature"
)

// ClaudeNormalizer translates between Anthropic Messages API bodies and
// this gateway's canonical request form. Anthropic's own adaptor package in
// the reference tree ships only its test suite, so the wire shapes here
// are grounded directly on the Messages API's documented fields as
// exercised by relay/adaptor/anthropic's stream_error_test.go and
// thinking_test.go fixtures (content blocks, usage.input/output_tokens,
// message_stop event).
type ClaudeNormalizer struct{}

type claudeRequest struct {
	Model     string          `json:"model"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type claudeMessage struct {
	Role    string         `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeResponse struct {
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Content    []claudeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      *claudeUsage    `json:"usage"`
}

type claudeUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

type claudeStreamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

type claudeError struct {
	Type  string `json:"type"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func flattenClaudeContent(blocks []claudeContent) string {
	var text string
	for _, b := range blocks {
		if b.Type == "text" || b.Type == "" {
			text += b.Text
		}
	}
	return text
}

func (ClaudeNormalizer) toCanonical(body []byte) (canonicalRequest, error) {
	var req claudeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return canonicalRequest{}, errors.Wrap(err, "decode claude request")
	}
	out := canonicalRequest{
		Model:     req.Model,
		System:    req.System,
		Stream:    req.Stream,
		MaxTokens: req.MaxTokens,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, canonicalMessage{Role: m.Role, Text: flattenClaudeContent(m.Content)})
	}
	return out, nil
}

func (ClaudeNormalizer) fromCanonical(c canonicalRequest) ([]byte, error) {
	req := claudeRequest{
		Model:     c.Model,
		System:    c.System,
		Stream:    c.Stream,
		MaxTokens: c.MaxTokens,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}
	for _, m := range c.Messages {
		req.Messages = append(req.Messages, claudeMessage{Role: m.Role, Content: []claudeContent{{Type: "text", Text: m.Text}}})
	}
	return json.Marshal(req)
}

func (n ClaudeNormalizer) ConvertRequest(body []byte, src, dst signature.ApiFamily) ([]byte, error) {
	canonical, err := n.toCanonical(body)
	if err != nil {
		return nil, err
	}
	switch dst {
	case signature.FamilyOpenAI:
		return OpenAINormalizer{}.fromCanonical(canonical)
	case signature.FamilyGemini:
		return GeminiNormalizer{}.fromCanonical(canonical)
	default:
		return n.fromCanonical(canonical)
	}
}

func (n ClaudeNormalizer) ConvertResponse(body []byte, src, dst signature.ApiFamily) ([]byte, error) {
	usage, _ := n.ExtractUsage(body, src)
	text, _ := n.ExtractText(body, src)
	switch dst {
	case signature.FamilyOpenAI:
		return OpenAINormalizer{}.renderResponse(text, usage), nil
	case signature.FamilyGemini:
		return GeminiNormalizer{}.renderResponse(text, usage), nil
	default:
		return body, nil
	}
}

func (n ClaudeNormalizer) ConvertStreamLine(line []byte, src, dst signature.ApiFamily) ([]byte, error) {
	var ev claudeStreamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, errors.Wrap(err, "decode claude stream event")
	}
	if ev.Delta == nil || ev.Delta.Text == "" {
		// Control events (message_start, content_block_stop, ...) have no
		// client-visible equivalent in the other families' delta shape.
		return nil, nil
	}
	switch dst {
	case signature.FamilyOpenAI:
		return OpenAINormalizer{}.renderStreamDelta(ev.Delta.Text), nil
	case signature.FamilyGemini:
		return GeminiNormalizer{}.renderStreamDelta(ev.Delta.Text), nil
	default:
		return line, nil
	}
}

func (ClaudeNormalizer) ExtractUsage(body []byte, src signature.ApiFamily) (Usage, bool) {
	var resp claudeResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Usage == nil {
		return Usage{}, false
	}
	u := resp.Usage
	return Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		CachedTokens: u.CacheReadInputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens,
	}, true
}

func (ClaudeNormalizer) ExtractText(body []byte, src signature.ApiFamily) (string, bool) {
	var resp claudeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	text := flattenClaudeContent(resp.Content)
	return text, text != ""
}

func (ClaudeNormalizer) IsErrorResponse(body map[string]any, src signature.ApiFamily) (string, string, int, bool) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", "", 0, false
	}
	var e claudeError
	if err := json.Unmarshal(raw, &e); err != nil || e.Type != "error" || e.Error == nil {
		return "", "", 0, false
	}
	return e.Error.Type, e.Error.Message, 0, true
}

func (ClaudeNormalizer) renderResponse(text string, u Usage) []byte {
	resp := claudeResponse{
		Type:       "message",
		Role:       "assistant",
		Content:    []claudeContent{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      &claudeUsage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens},
	}
	out, _ := json.Marshal(resp)
	return out
}

func (ClaudeNormalizer) renderStreamDelta(text string) []byte {
	ev := claudeStreamEvent{Type: "content_block_delta"}
	ev.Delta = &struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "text_delta", Text: text}
	out, _ := json.Marshal(ev)
	return out
}
