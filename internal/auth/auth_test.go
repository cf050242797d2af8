package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusgate/llmgateway/internal/signature"
)

func newReq(t *testing.T, target string, headers map[string]string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, target, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestExtractClientCredentialPriority(t *testing.T) {
	// query_key beats everything else.
	r := newReq(t, "/v1beta/models/foo:generateContent?key=qk", map[string]string{
		"x-goog-api-key": "goog",
		"x-api-key":      "apikey",
		"Authorization":  "Bearer bt",
	})
	cred, ok := ExtractClientCredential(r)
	require.True(t, ok)
	assert.Equal(t, signature.AuthQueryKey, cred.Method)
	assert.Equal(t, "qk", cred.Value)

	// goog_api_key beats api_key and bearer.
	r = newReq(t, "/v1beta/models/foo:generateContent", map[string]string{
		"x-goog-api-key": "goog",
		"x-api-key":      "apikey",
		"Authorization":  "Bearer bt",
	})
	cred, ok = ExtractClientCredential(r)
	require.True(t, ok)
	assert.Equal(t, signature.AuthGoogAPIKey, cred.Method)

	// api_key beats bearer.
	r = newReq(t, "/v1/messages", map[string]string{
		"x-api-key":     "apikey",
		"Authorization": "Bearer bt",
	})
	cred, ok = ExtractClientCredential(r)
	require.True(t, ok)
	assert.Equal(t, signature.AuthAPIKey, cred.Method)

	// bearer alone.
	r = newReq(t, "/v1/chat/completions", map[string]string{"Authorization": "Bearer bt"})
	cred, ok = ExtractClientCredential(r)
	require.True(t, ok)
	assert.Equal(t, signature.AuthBearer, cred.Method)
	assert.Equal(t, "bt", cred.Value)
}

func TestQueryKeyUpstreamEmitsGoogHeader(t *testing.T) {
	reg := DefaultRegistry()
	h := reg[signature.AuthQueryKey]
	upstream := h.BuildUpstreamHeaders(Credential{Method: signature.AuthQueryKey, Value: "abc"})
	assert.Equal(t, "abc", upstream.Get("x-goog-api-key"))
}

func TestOAuth2ReusesBearer(t *testing.T) {
	reg := DefaultRegistry()
	h := reg[signature.AuthOAuth2]
	upstream := h.BuildUpstreamHeaders(Credential{Method: signature.AuthOAuth2, Value: "tok"})
	assert.Equal(t, "Bearer tok", upstream.Get("Authorization"))
}
