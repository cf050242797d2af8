package convert

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"

	"github.com/nexusgate/llmgateway/internal/signature"
)

// GeminiNormalizer translates between Gemini generateContent bodies and
// this gateway's canonical request form, grounded on
// relay/adaptor/gemini/main.go's field names (contents[].parts[].text,
// usageMetadata.{prompt,candidates,total}TokenCount, candidates[].content).
type GeminiNormalizer struct{}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	GenerationConfig *struct {
		MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
		Temperature     *float64 `json:"temperature,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *geminiUsage `json:"usageMetadata"`
}

type geminiUsage struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type geminiError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func flattenGeminiParts(parts []geminiPart) string {
	var text string
	for _, p := range parts {
		text += p.Text
	}
	return text
}

func geminiRole(canonicalRole string) string {
	if canonicalRole == "assistant" {
		return "model"
	}
	return "user"
}

func canonicalRole(geminiRole string) string {
	if geminiRole == "model" {
		return "assistant"
	}
	return "user"
}

func (GeminiNormalizer) toCanonical(body []byte) (canonicalRequest, error) {
	var req geminiRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return canonicalRequest{}, errors.Wrap(err, "decode gemini request")
	}
	var out canonicalRequest
	if req.SystemInstruction != nil {
		out.System = flattenGeminiParts(req.SystemInstruction.Parts)
	}
	if req.GenerationConfig != nil {
		out.MaxTokens = req.GenerationConfig.MaxOutputTokens
		out.Temperature = req.GenerationConfig.Temperature
	}
	for _, c := range req.Contents {
		out.Messages = append(out.Messages, canonicalMessage{Role: canonicalRole(c.Role), Text: flattenGeminiParts(c.Parts)})
	}
	return out, nil
}

func (GeminiNormalizer) fromCanonical(c canonicalRequest) ([]byte, error) {
	req := geminiRequest{}
	if c.System != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: c.System}}}
	}
	if c.MaxTokens != 0 || c.Temperature != nil {
		req.GenerationConfig = &struct {
			MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
			Temperature     *float64 `json:"temperature,omitempty"`
		}{MaxOutputTokens: c.MaxTokens, Temperature: c.Temperature}
	}
	for _, m := range c.Messages {
		req.Contents = append(req.Contents, geminiContent{Role: geminiRole(m.Role), Parts: []geminiPart{{Text: m.Text}}})
	}
	return json.Marshal(req)
}

func (n GeminiNormalizer) ConvertRequest(body []byte, src, dst signature.ApiFamily) ([]byte, error) {
	canonical, err := n.toCanonical(body)
	if err != nil {
		return nil, err
	}
	switch dst {
	case signature.FamilyOpenAI:
		return OpenAINormalizer{}.fromCanonical(canonical)
	case signature.FamilyClaude:
		return ClaudeNormalizer{}.fromCanonical(canonical)
	default:
		return n.fromCanonical(canonical)
	}
}

func (n GeminiNormalizer) ConvertResponse(body []byte, src, dst signature.ApiFamily) ([]byte, error) {
	usage, _ := n.ExtractUsage(body, src)
	text, _ := n.ExtractText(body, src)
	switch dst {
	case signature.FamilyOpenAI:
		return OpenAINormalizer{}.renderResponse(text, usage), nil
	case signature.FamilyClaude:
		return ClaudeNormalizer{}.renderResponse(text, usage), nil
	default:
		return body, nil
	}
}

func (n GeminiNormalizer) ConvertStreamLine(line []byte, src, dst signature.ApiFamily) ([]byte, error) {
	var chunk geminiResponse
	if err := json.Unmarshal(line, &chunk); err != nil {
		return nil, errors.Wrap(err, "decode gemini stream chunk")
	}
	if len(chunk.Candidates) == 0 {
		return nil, nil
	}
	text := flattenGeminiParts(chunk.Candidates[0].Content.Parts)
	switch dst {
	case signature.FamilyOpenAI:
		return OpenAINormalizer{}.renderStreamDelta(text), nil
	case signature.FamilyClaude:
		return ClaudeNormalizer{}.renderStreamDelta(text), nil
	default:
		return line, nil
	}
}

func (GeminiNormalizer) ExtractUsage(body []byte, src signature.ApiFamily) (Usage, bool) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.UsageMetadata == nil {
		return Usage{}, false
	}
	u := resp.UsageMetadata
	return Usage{
		InputTokens:  u.PromptTokenCount,
		OutputTokens: u.CandidatesTokenCount,
		TotalTokens:  u.TotalTokenCount,
		CachedTokens: u.CachedContentTokenCount,
	}, true
}

func (GeminiNormalizer) ExtractText(body []byte, src signature.ApiFamily) (string, bool) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Candidates) == 0 {
		return "", false
	}
	text := flattenGeminiParts(resp.Candidates[0].Content.Parts)
	return text, text != ""
}

func (GeminiNormalizer) IsErrorResponse(body map[string]any, src signature.ApiFamily) (string, string, int, bool) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", "", 0, false
	}
	var e geminiError
	if err := json.Unmarshal(raw, &e); err != nil || e.Error == nil {
		return "", "", 0, false
	}
	return e.Error.Status, e.Error.Message, e.Error.Code, true
}

func (GeminiNormalizer) renderResponse(text string, u Usage) []byte {
	resp := geminiResponse{
		UsageMetadata: &geminiUsage{
			PromptTokenCount:     u.InputTokens,
			CandidatesTokenCount: u.OutputTokens,
			TotalTokenCount:      u.TotalTokens,
		},
	}
	resp.Candidates = append(resp.Candidates, struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	}{Content: geminiContent{Role: "model", Parts: []geminiPart{{Text: text}}}, FinishReason: "STOP"})
	out, _ := json.Marshal(resp)
	return out
}

func (GeminiNormalizer) renderStreamDelta(text string) []byte {
	resp := geminiResponse{}
	resp.Candidates = append(resp.Candidates, struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	}{Content: geminiContent{Role: "model", Parts: []geminiPart{{Text: text}}}})
	out, _ := json.Marshal(resp)
	return out
}
