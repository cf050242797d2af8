package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignatureKey(t *testing.T) {
	cases := []struct {
		in      string
		want    Signature
		wantErr bool
	}{
		{"openai:chat", Signature{FamilyOpenAI, KindChat}, false},
		{"  Claude:CLI ", Signature{FamilyClaude, KindCLI}, false},
		{"GEMINI:video", Signature{FamilyGemini, KindVideo}, false},
		{"bogus", Signature{}, true},
		{"unknown:chat", Signature{}, true},
		{"openai:unknown", Signature{}, true},
		{"", Signature{}, true},
	}

	for _, tc := range cases {
		got, err := ParseSignatureKey(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	// For all valid signatures s: parse(normalize(s.key)).key == s.key (spec.md §8).
	inputs := []string{"openai:chat", "Claude:Cli", "GEMINI:VIDEO", " openai:image "}
	for _, in := range inputs {
		normalized, err := NormalizeSignatureKey(in)
		require.NoError(t, err, in)

		parsed, err := ParseSignatureKey(normalized)
		require.NoError(t, err, in)
		assert.Equal(t, normalized, parsed.Key(), in)
	}
}

func TestMakeSignatureKeyMatchesNormalize(t *testing.T) {
	sig, err := ParseSignatureKey("OpenAI:Chat")
	require.NoError(t, err)
	normalized, err := NormalizeSignatureKey("OpenAI:Chat")
	require.NoError(t, err)
	assert.Equal(t, normalized, MakeSignatureKey(sig.Family, sig.Kind))
}

func TestCanPassthroughEndpoint(t *testing.T) {
	a := Signature{FamilyOpenAI, KindChat}
	b := Signature{FamilyOpenAI, KindChat}
	c := Signature{FamilyClaude, KindChat}

	assert.True(t, CanPassthroughEndpoint(a, b))
	assert.False(t, CanPassthroughEndpoint(a, c))
}

func TestResolveEndpointDefinition(t *testing.T) {
	def, ok := ResolveEndpointDefinition(Signature{FamilyClaude, KindChat})
	require.True(t, ok)
	assert.Equal(t, AuthAPIKey, def.AuthMethod)
	assert.True(t, def.IsHeaderProtected("X-API-Key"))

	_, ok = ResolveEndpointDefinition(Signature{FamilyGemini, KindImage})
	assert.False(t, ok)
}
