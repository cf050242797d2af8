package convert

// canonicalMessage is the family-neutral shape the three normalizers
// convert through, modeled on the common subset of OpenAI chat messages,
// Claude messages and Gemini contents that this gateway actually needs to
// round-trip (spec.md §8: "for any (A,B) pair, convert(convert(req,A,B),B,A)
// preserves model, message roles and text content").
type canonicalMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type canonicalRequest struct {
	Model       string             `json:"model"`
	Messages    []canonicalMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Stream      bool               `json:"stream"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}
