package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusgate/llmgateway/internal/convert"
	"github.com/nexusgate/llmgateway/internal/signature"
)

func TestBuildCandidatesExactBeforeConvertible(t *testing.T) {
	openaiChat := signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindChat}
	claudeChat := signature.Signature{Family: signature.FamilyClaude, Kind: signature.KindChat}

	providers := []Provider{
		{
			ID: 1,
			Endpoints: []ProviderEndpoint{
				{ID: 10, Signature: claudeChat, Enabled: true, Acceptance: convert.FormatAcceptanceConfig{
					Enabled: true, AcceptFormats: []string{"openai:chat"}, StreamConversion: true,
				}},
			},
			Keys: []ProviderKey{{ID: 100, Enabled: true, InternalPriority: 5}},
		},
		{
			ID: 2,
			Endpoints: []ProviderEndpoint{
				{ID: 20, Signature: openaiChat, Enabled: true},
			},
			Keys: []ProviderKey{{ID: 200, Enabled: true, InternalPriority: 1}},
		},
	}

	candidates := BuildCandidates(providers, openaiChat, "gpt-4o", "", true, false,
		func(int64, string) bool { return true },
		func(ProviderKey) bool { return true },
	)

	require.Len(t, candidates, 2)
	assert.False(t, candidates[0].NeedsConversion)
	assert.Equal(t, int64(20), candidates[0].EndpointID)
	assert.True(t, candidates[1].NeedsConversion)
	assert.Equal(t, int64(10), candidates[1].EndpointID)
}

func TestBuildCandidatesFiltersDisabledAndUnsupported(t *testing.T) {
	openaiChat := signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindChat}
	providers := []Provider{
		{
			ID:        1,
			Endpoints: []ProviderEndpoint{{ID: 10, Signature: openaiChat, Enabled: false}},
			Keys:      []ProviderKey{{ID: 100, Enabled: true}},
		},
		{
			ID:        2,
			Endpoints: []ProviderEndpoint{{ID: 20, Signature: openaiChat, Enabled: true}},
			Keys:      []ProviderKey{{ID: 200, Enabled: true}},
		},
	}

	candidates := BuildCandidates(providers, openaiChat, "gpt-4o", "", true, false,
		func(providerID int64, model string) bool { return providerID == 2 },
		func(ProviderKey) bool { return true },
	)

	require.Len(t, candidates, 1)
	assert.Equal(t, int64(2), candidates[0].ProviderID)
}

func TestOrderCandidatesByPriorityTieBreak(t *testing.T) {
	candidates := []Candidate{
		{EndpointID: 2, KeyID: 2},
		{EndpointID: 1, KeyID: 1},
	}
	OrderCandidatesByPriority(candidates, map[int64]int{1: 1, 2: 5})
	assert.Equal(t, int64(2), candidates[0].EndpointID)
}

func TestDispatchFailsOverOnRetryableError(t *testing.T) {
	candidates := []Candidate{{EndpointID: 1}, {EndpointID: 2}}
	var resets, attempts int

	err := Dispatch(context.Background(), candidates, DefaultMaxCandidates,
		func() { resets++ },
		func(ctx context.Context, c Candidate) error {
			attempts++
			if c.EndpointID == 1 {
				return Retryable(assertError("boom"))
			}
			return nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, resets)
}

func TestDispatchStopsOnNonRetryableError(t *testing.T) {
	candidates := []Candidate{{EndpointID: 1}, {EndpointID: 2}}
	attempts := 0

	err := Dispatch(context.Background(), candidates, DefaultMaxCandidates, nil,
		func(ctx context.Context, c Candidate) error {
			attempts++
			return assertError("fatal")
		},
	)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDispatchExhaustsMaxCandidates(t *testing.T) {
	candidates := []Candidate{{EndpointID: 1}, {EndpointID: 2}, {EndpointID: 3}}
	attempts := 0

	err := Dispatch(context.Background(), candidates, 2, nil,
		func(ctx context.Context, c Candidate) error {
			attempts++
			return Retryable(assertError("boom"))
		},
	)

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

type assertError string

func (e assertError) Error() string { return string(e) }
