package convert

import "github.com/nexusgate/llmgateway/internal/signature"

// DefaultRegistry wires one normalizer per family, matching the teacher's
// per-adaptor package layout (relay/adaptor/{openai,anthropic,gemini}).
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(signature.FamilyOpenAI, OpenAINormalizer{})
	r.Register(signature.FamilyClaude, ClaudeNormalizer{})
	r.Register(signature.FamilyGemini, GeminiNormalizer{})
	return r
}
