package video

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusgate/llmgateway/internal/convert"
	"github.com/nexusgate/llmgateway/internal/gatewayerr"
	"github.com/nexusgate/llmgateway/internal/signature"
	"github.com/nexusgate/llmgateway/internal/store"
)

func TestSubmitGeminiExtractsOperationNameAndHidesExternalID(t *testing.T) {
	req := SubmitRequest{
		UserID:     1,
		APIKeyID:   2,
		ProviderID: 3,
		EndpointID: 4,
		KeyID:      5,
		ClientSignature:   signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindVideo},
		ProviderSignature: signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindVideo},
		Model:        "veo-3",
		Prompt:       "a cat on a skateboard",
		OriginalBody: []byte(`{"prompt":"a cat on a skateboard"}`),
	}

	post := func(ctx context.Context, body []byte) (int, []byte, error) {
		return 200, []byte(`{"name":"operations/upstream-secret-id"}`), nil
	}

	op, task, err := Submit(context.Background(), convert.DefaultRegistry(), req, post, 5, 360)
	require.NoError(t, err)
	require.Contains(t, op, "models/veo-3/operations/")
	require.NotContains(t, op, "upstream-secret-id")
	require.Equal(t, "operations/upstream-secret-id", task.ExternalTaskID)
	require.Equal(t, store.VideoTaskSubmitted, task.Status)
	require.False(t, task.FormatConverted)
}

func TestSubmitOpenAIExtractsIDField(t *testing.T) {
	req := SubmitRequest{
		ClientSignature:   signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindVideo},
		ProviderSignature: signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindVideo},
		Model:        "sora-2",
		OriginalBody: []byte(`{"prompt":"x"}`),
	}
	post := func(ctx context.Context, body []byte) (int, []byte, error) {
		return 200, []byte(`{"id":"video_abc123"}`), nil
	}

	_, task, err := Submit(context.Background(), convert.DefaultRegistry(), req, post, 5, 360)
	require.NoError(t, err)
	require.Equal(t, "video_abc123", task.ExternalTaskID)
}

func TestSubmitMissingExternalIDFails(t *testing.T) {
	req := SubmitRequest{
		ClientSignature:   signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindVideo},
		ProviderSignature: signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindVideo},
		OriginalBody: []byte(`{}`),
	}
	post := func(ctx context.Context, body []byte) (int, []byte, error) {
		return 200, []byte(`{"status":"queued"}`), nil
	}

	_, _, err := Submit(context.Background(), convert.DefaultRegistry(), req, post, 5, 360)
	require.Error(t, err)
}

func TestSubmitUpstreamErrorStatusIsRetryable(t *testing.T) {
	req := SubmitRequest{
		ClientSignature:   signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindVideo},
		ProviderSignature: signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindVideo},
		OriginalBody: []byte(`{}`),
	}
	post := func(ctx context.Context, body []byte) (int, []byte, error) {
		return 503, []byte(`{"error":"unavailable"}`), nil
	}

	_, _, err := Submit(context.Background(), convert.DefaultRegistry(), req, post, 5, 360)
	require.Error(t, err)
	require.True(t, gatewayerr.IsRetryableAcrossCandidates(err))
}
