package detect

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusgate/llmgateway/internal/signature"
)

func header(kv map[string]string) http.Header {
	h := http.Header{}
	for k, v := range kv {
		h.Set(k, v)
	}
	return h
}

func TestDetectPathRules(t *testing.T) {
	cases := []struct {
		name     string
		path     string
		header   http.Header
		query    url.Values
		wantSig  signature.Signature
		wantType EndpointType
	}{
		{
			name:     "claude messages with api key",
			path:     "/v1/messages",
			header:   header(map[string]string{"x-api-key": "sk"}),
			wantSig:  signature.Signature{Family: signature.FamilyClaude, Kind: signature.KindChat},
			wantType: EndpointChat,
		},
		{
			name:     "claude messages with bearer is cli",
			path:     "/v1/messages",
			header:   header(map[string]string{"Authorization": "Bearer tok"}),
			wantSig:  signature.Signature{Family: signature.FamilyClaude, Kind: signature.KindCLI},
			wantType: EndpointChat,
		},
		{
			name:     "responses is openai cli",
			path:     "/responses",
			header:   http.Header{},
			wantSig:  signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindCLI},
			wantType: EndpointChat,
		},
		{
			name:     "v1beta defaults to gemini chat",
			path:     "/v1beta/models/gemini-pro:generateContent",
			header:   http.Header{},
			wantSig:  signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindChat},
			wantType: EndpointChat,
		},
		{
			name:     "v1beta predictLongRunning is gemini video",
			path:     "/v1beta/models/veo:predictLongRunning",
			header:   http.Header{},
			wantSig:  signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindVideo},
			wantType: EndpointVideo,
		},
		{
			name:     "v1 videos is openai video",
			path:     "/v1/videos",
			header:   http.Header{},
			wantSig:  signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindVideo},
			wantType: EndpointVideo,
		},
		{
			name:     "chat completions is openai chat",
			path:     "/v1/chat/completions",
			header:   http.Header{},
			wantSig:  signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindChat},
			wantType: EndpointChat,
		},
		{
			name:     "files path",
			path:     "/upload/v1beta/files",
			header:   http.Header{},
			wantSig:  signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindChat},
			wantType: EndpointFiles,
		},
		{
			name:     "models path",
			path:     "/v1/models",
			header:   http.Header{},
			wantSig:  headerHeuristic(http.Header{}),
			wantType: EndpointModels,
		},
		{
			name:     "embeddings path",
			path:     "/v1/embeddings",
			header:   http.Header{},
			wantSig:  headerHeuristic(http.Header{}),
			wantType: EndpointEmbedding,
		},
		{
			name:     "images path",
			path:     "/v1/images/generations",
			header:   http.Header{},
			wantSig:  headerHeuristic(http.Header{}),
			wantType: EndpointImage,
		},
		{
			name:     "audio path",
			path:     "/v1/audio/speech",
			header:   http.Header{},
			wantSig:  headerHeuristic(http.Header{}),
			wantType: EndpointAudio,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.query
			if q == nil {
				q = url.Values{}
			}
			rc, err := Detect(tc.path, tc.header, q)
			require.NoError(t, err)
			assert.Equal(t, tc.wantSig, rc.Endpoint)
			assert.Equal(t, tc.wantType, rc.EndpointType)
		})
	}
}

func TestDetectHeaderHeuristicFallback(t *testing.T) {
	cases := []struct {
		name   string
		header http.Header
		query  url.Values
		want   signature.Signature
	}{
		{
			name:   "anthropic headers",
			header: header(map[string]string{"x-api-key": "sk", "anthropic-version": "2023-06-01"}),
			want:   signature.Signature{Family: signature.FamilyClaude, Kind: signature.KindChat},
		},
		{
			name:   "query key implies gemini",
			header: http.Header{},
			query:  url.Values{"key": []string{"abc"}},
			want:   signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindChat},
		},
		{
			name:   "goog api key header implies gemini",
			header: header(map[string]string{"x-goog-api-key": "abc"}),
			want:   signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindChat},
		},
		{
			name:   "bearer implies openai",
			header: header(map[string]string{"Authorization": "Bearer tok"}),
			want:   signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindChat},
		},
		{
			name:   "lone api key implies openai",
			header: header(map[string]string{"x-api-key": "sk"}),
			want:   signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindChat},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := tc.query
			if q == nil {
				q = url.Values{}
			}
			rc, err := Detect("/unknown/custom/path", tc.header, q)
			require.NoError(t, err)
			assert.Equal(t, tc.want, rc.Endpoint)
		})
	}
}

func TestDetectCredentialPriority(t *testing.T) {
	h := header(map[string]string{
		"x-goog-api-key": "goog",
		"x-api-key":      "apikey",
		"Authorization":  "Bearer bt",
	})
	q := url.Values{"key": []string{"qk"}}

	rc, err := Detect("/v1beta/models/foo:generateContent", h, q)
	require.NoError(t, err)
	assert.Equal(t, signature.AuthQueryKey, rc.AuthMethod)
	assert.Equal(t, "qk", rc.Credential.Value)
}
