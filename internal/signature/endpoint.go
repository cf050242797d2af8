package signature

import "strings"

// AuthMethod identifies how a client (or upstream) credential is carried.
type AuthMethod string

const (
	AuthBearer     AuthMethod = "bearer"
	AuthAPIKey     AuthMethod = "api_key"
	AuthGoogAPIKey AuthMethod = "goog_api_key"
	AuthOAuth2     AuthMethod = "oauth2"
	AuthQueryKey   AuthMethod = "query_key"
)

// EndpointDefinition is the static, signature-keyed metadata describing how
// to reach and shape a request for one endpoint variant.
type EndpointDefinition struct {
	Signature            Signature
	DefaultPath           string
	AuthMethod            AuthMethod
	ExtraStaticHeaders    map[string]string
	ProtectedHeaderKeys   map[string]bool
	PassthroughAllowed    bool
}

var endpointDefinitions = map[string]EndpointDefinition{
	MakeSignatureKey(FamilyOpenAI, KindChat): {
		Signature:          Signature{FamilyOpenAI, KindChat},
		DefaultPath:        "/v1/chat/completions",
		AuthMethod:         AuthBearer,
		ProtectedHeaderKeys: map[string]bool{"authorization": true},
		PassthroughAllowed: true,
	},
	MakeSignatureKey(FamilyOpenAI, KindCLI): {
		Signature:          Signature{FamilyOpenAI, KindCLI},
		DefaultPath:        "/v1/responses",
		AuthMethod:         AuthBearer,
		ProtectedHeaderKeys: map[string]bool{"authorization": true},
		PassthroughAllowed: true,
	},
	MakeSignatureKey(FamilyOpenAI, KindVideo): {
		Signature:          Signature{FamilyOpenAI, KindVideo},
		DefaultPath:        "/v1/videos",
		AuthMethod:         AuthBearer,
		ProtectedHeaderKeys: map[string]bool{"authorization": true},
		PassthroughAllowed: true,
	},
	MakeSignatureKey(FamilyClaude, KindChat): {
		Signature:          Signature{FamilyClaude, KindChat},
		DefaultPath:        "/v1/messages",
		AuthMethod:         AuthAPIKey,
		ExtraStaticHeaders: map[string]string{"anthropic-version": "2023-06-01"},
		ProtectedHeaderKeys: map[string]bool{"x-api-key": true, "anthropic-version": true},
		PassthroughAllowed: true,
	},
	MakeSignatureKey(FamilyClaude, KindCLI): {
		Signature:          Signature{FamilyClaude, KindCLI},
		DefaultPath:        "/v1/messages",
		AuthMethod:         AuthBearer,
		ExtraStaticHeaders: map[string]string{"anthropic-version": "2023-06-01"},
		ProtectedHeaderKeys: map[string]bool{"authorization": true, "anthropic-version": true},
		PassthroughAllowed: true,
	},
	MakeSignatureKey(FamilyGemini, KindChat): {
		Signature:          Signature{FamilyGemini, KindChat},
		DefaultPath:        "/v1beta/models/{model}:generateContent",
		AuthMethod:         AuthGoogAPIKey,
		ProtectedHeaderKeys: map[string]bool{"x-goog-api-key": true},
		PassthroughAllowed: true,
	},
	MakeSignatureKey(FamilyGemini, KindVideo): {
		Signature:          Signature{FamilyGemini, KindVideo},
		DefaultPath:        "/v1beta/models/{model}:predictLongRunning",
		AuthMethod:         AuthGoogAPIKey,
		ProtectedHeaderKeys: map[string]bool{"x-goog-api-key": true},
		PassthroughAllowed: true,
	},
}

// ResolveEndpointDefinition looks up the static endpoint definition for a
// signature. Returns (def, false) when no definition is registered.
func ResolveEndpointDefinition(sig Signature) (EndpointDefinition, bool) {
	def, ok := endpointDefinitions[sig.Key()]
	return def, ok
}

// IsHeaderProtected reports whether a header key is protected from client
// override for the given endpoint definition (case-insensitive).
func (d EndpointDefinition) IsHeaderProtected(headerKey string) bool {
	if d.ProtectedHeaderKeys == nil {
		return false
	}
	return d.ProtectedHeaderKeys[strings.ToLower(headerKey)]
}
