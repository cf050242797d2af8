package dimension

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectResolvesRequestResponseAndMetadataSources(t *testing.T) {
	runtime := &Runtime{
		Collectors: []Collector{
			{APIFormat: "openai:chat", TaskType: "chat", DimensionName: "input_tokens",
				SourceType: SourceResponse, SourcePath: "usage.prompt_tokens", ValueType: "int", IsEnabled: true, Priority: 100},
			{APIFormat: "openai:chat", TaskType: "chat", DimensionName: "model_name",
				SourceType: SourceRequest, SourcePath: "model", ValueType: "string", IsEnabled: true, Priority: 100},
			{APIFormat: "openai:chat", TaskType: "chat", DimensionName: "endpoint_id",
				SourceType: SourceMetadata, SourcePath: "endpoint_id", ValueType: "int", IsEnabled: true, Priority: 100},
		},
	}

	request := map[string]any{"model": "gpt-4o"}
	response := map[string]any{"usage": map[string]any{"prompt_tokens": float64(120)}}
	metadata := map[string]any{"endpoint_id": 7}

	result := runtime.Collect("openai:chat", "chat", request, response, metadata, nil)
	require.Equal(t, 120, result["input_tokens"])
	require.Equal(t, "gpt-4o", result["model_name"])
	require.Equal(t, 7, result["endpoint_id"])
}

func TestCollectPrefersHigherPriorityCollectorForSameDimension(t *testing.T) {
	runtime := &Runtime{
		Collectors: []Collector{
			{APIFormat: "openai:video", TaskType: "video", DimensionName: "duration_seconds",
				SourceType: SourceResponse, SourcePath: "video.duration_seconds", ValueType: "float", IsEnabled: true, Priority: 200},
			{APIFormat: "openai:video", TaskType: "video", DimensionName: "duration_seconds",
				SourceType: SourceRequest, SourcePath: "duration_seconds", ValueType: "float", IsEnabled: true, Priority: 100},
		},
	}

	// Higher-priority collector's path is absent from the response, so
	// resolution falls through to the lower-priority request-based one.
	request := map[string]any{"duration_seconds": float64(8)}
	result := runtime.Collect("openai:video", "video", request, map[string]any{}, nil, nil)
	require.Equal(t, float64(8), result["duration_seconds"])
}

func TestCollectSkipsDisabledCollectors(t *testing.T) {
	runtime := &Runtime{
		Collectors: []Collector{
			{APIFormat: "openai:chat", TaskType: "chat", DimensionName: "input_tokens",
				SourceType: SourceRequest, SourcePath: "input_tokens", ValueType: "int", IsEnabled: false, Priority: 100},
		},
	}
	result := runtime.Collect("openai:chat", "chat", map[string]any{"input_tokens": 5}, nil, nil, nil)
	_, ok := result["input_tokens"]
	require.False(t, ok)
}

func TestCollectAppliesTransformExpression(t *testing.T) {
	runtime := &Runtime{
		Collectors: []Collector{
			{APIFormat: "openai:chat", TaskType: "chat", DimensionName: "input_tokens_thousands",
				SourceType: SourceResponse, SourcePath: "usage.prompt_tokens", ValueType: "float",
				TransformExpression: "value / 1000", IsEnabled: true, Priority: 100},
		},
	}
	response := map[string]any{"usage": map[string]any{"prompt_tokens": float64(2000)}}
	result := runtime.Collect("openai:chat", "chat", nil, response, nil, nil)
	require.Equal(t, float64(2), result["input_tokens_thousands"])
}

func TestCollectFallsBackToDefaultOnCoercionFailure(t *testing.T) {
	runtime := &Runtime{
		Collectors: []Collector{
			{APIFormat: "openai:chat", TaskType: "chat", DimensionName: "retry_count",
				SourceType: SourceMetadata, SourcePath: "retry_count", ValueType: "int",
				DefaultValue: "0", IsEnabled: true, Priority: 100},
		},
	}
	metadata := map[string]any{"retry_count": "not-a-number"}
	result := runtime.Collect("openai:chat", "chat", nil, nil, metadata, nil)
	require.Equal(t, 0, result["retry_count"])
}

func TestCollectVideoFallsBackToChatCollectors(t *testing.T) {
	runtime := &Runtime{
		Collectors: []Collector{
			{APIFormat: "openai:chat", TaskType: "video", DimensionName: "model_name",
				SourceType: SourceRequest, SourcePath: "model", ValueType: "string", IsEnabled: true, Priority: 100},
			{APIFormat: "openai:video", TaskType: "video", DimensionName: "duration_seconds",
				SourceType: SourceRequest, SourcePath: "duration_seconds", ValueType: "float", IsEnabled: true, Priority: 100},
		},
	}
	request := map[string]any{"model": "sora-2", "duration_seconds": float64(8)}
	result := runtime.Collect("openai:video", "video", request, nil, nil, nil)
	require.Equal(t, "sora-2", result["model_name"])
	require.Equal(t, float64(8), result["duration_seconds"])
}

func TestCollectComputedDimensionSeesResolvedDimensions(t *testing.T) {
	runtime := &Runtime{
		Collectors: []Collector{
			{APIFormat: "openai:video", TaskType: "video", DimensionName: "duration_seconds",
				SourceType: SourceRequest, SourcePath: "duration_seconds", ValueType: "float", IsEnabled: true, Priority: 100},
			{APIFormat: "openai:video", TaskType: "video", DimensionName: "video_cost",
				SourceType: SourceComputed, TransformExpression: "duration_seconds * 0.1", ValueType: "float", IsEnabled: true, Priority: 100},
		},
	}
	request := map[string]any{"duration_seconds": float64(8)}
	result := runtime.Collect("openai:video", "video", request, nil, nil, nil)
	require.Equal(t, float64(0.8), result["video_cost"])
}
