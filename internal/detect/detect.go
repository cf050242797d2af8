// Package detect classifies an inbound HTTP request into a RequestContext
// carrying the endpoint signature, endpoint type, auth method and
// extracted credential, per spec.md §4.3.
package detect

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/nexusgate/llmgateway/internal/auth"
	"github.com/nexusgate/llmgateway/internal/signature"
)

// EndpointType is the coarse operation classification used for routing and
// billing task-type resolution ("chat", "video", "embedding", ...).
type EndpointType string

const (
	EndpointFiles     EndpointType = "files"
	EndpointVideo     EndpointType = "video"
	EndpointModels    EndpointType = "models"
	EndpointEmbedding EndpointType = "embedding"
	EndpointImage     EndpointType = "image"
	EndpointAudio     EndpointType = "audio"
	EndpointChat      EndpointType = "chat"
)

// RequestContext is the result of detection: everything downstream needs to
// pick a candidate and authenticate upstream.
type RequestContext struct {
	Endpoint     signature.Signature
	EndpointType EndpointType
	AuthMethod   signature.AuthMethod
	Credential   auth.Credential
}

// Detect classifies path/headers/query into a RequestContext. Headers are
// expected pre-lowercased by the caller (matching net/http.Header's
// canonical form, which Detect also tolerates via Header.Get).
func Detect(path string, header http.Header, query url.Values) (RequestContext, error) {
	endpointType := detectEndpointType(path)
	sig := detectSignature(path, header, query, endpointType)

	cred, hasCred := extractCredentialForDetection(header, query)

	authMethod := signature.AuthBearer
	if hasCred {
		authMethod = cred.Method
	}

	return RequestContext{
		Endpoint:     sig,
		EndpointType: endpointType,
		AuthMethod:   authMethod,
		Credential:   cred,
	}, nil
}

// detectEndpointType applies the first-match-wins path rules of spec.md §4.3.
func detectEndpointType(path string) EndpointType {
	switch {
	case strings.HasPrefix(path, "/upload/v1beta/files") || strings.HasPrefix(path, "/v1beta/files"):
		return EndpointFiles
	case strings.HasPrefix(path, "/v1/videos"),
		strings.Contains(path, "predictLongRunning"),
		strings.HasPrefix(path, "/v1beta/operations"):
		return EndpointVideo
	case strings.HasPrefix(path, "/v1/models"):
		return EndpointModels
	case strings.Contains(path, "/embeddings"):
		return EndpointEmbedding
	case strings.Contains(path, "/images"):
		return EndpointImage
	case strings.Contains(path, "/audio"):
		return EndpointAudio
	default:
		return EndpointChat
	}
}

// detectSignature resolves the endpoint signature using spec.md §4.3's
// path rules, falling back to the header-based heuristic; on that fallback
// a "key" query parameter marks the request as gemini unless the headers
// identify it as claude.
func detectSignature(path string, header http.Header, query url.Values, endpointType EndpointType) signature.Signature {
	switch {
	case path == "/v1/messages" || strings.HasPrefix(path, "/v1/messages"):
		if isBearer(header) {
			return signature.Signature{Family: signature.FamilyClaude, Kind: signature.KindCLI}
		}
		return signature.Signature{Family: signature.FamilyClaude, Kind: signature.KindChat}
	case strings.HasPrefix(path, "/responses"), strings.Contains(path, "/v1/responses"):
		return signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindCLI}
	case strings.HasPrefix(path, "/v1beta/") || strings.HasPrefix(path, "/upload/v1beta/"):
		if endpointType == EndpointVideo {
			return signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindVideo}
		}
		return signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindChat}
	case strings.HasPrefix(path, "/v1/videos"):
		return signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindVideo}
	case strings.HasPrefix(path, "/v1/chat/completions"):
		return signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindChat}
	default:
		sig := headerHeuristic(header)
		if query.Get("key") != "" && sig.Family != signature.FamilyClaude {
			return signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindChat}
		}
		return sig
	}
}

// headerHeuristic is the fallback classifier of spec.md §4.3 when the path
// doesn't match any of the known route shapes.
func headerHeuristic(header http.Header) signature.Signature {
	hasAPIKey := header.Get("x-api-key") != ""
	hasAnthropicVersion := header.Get("anthropic-version") != ""
	hasGoogKey := header.Get("x-goog-api-key") != ""
	hasBearer := isBearer(header)

	switch {
	case hasAPIKey && hasAnthropicVersion:
		return signature.Signature{Family: signature.FamilyClaude, Kind: signature.KindChat}
	case hasGoogKey:
		return signature.Signature{Family: signature.FamilyGemini, Kind: signature.KindChat}
	case hasBearer || hasAPIKey:
		return signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindChat}
	default:
		return signature.Signature{Family: signature.FamilyOpenAI, Kind: signature.KindChat}
	}
}

func isBearer(header http.Header) bool {
	return strings.HasPrefix(strings.ToLower(header.Get("Authorization")), "bearer ")
}

// extractCredentialForDetection mirrors auth.ExtractClientCredential but
// works off already-parsed header/query values (Detect doesn't have a full
// *http.Request when called from some entrypoints, e.g. websocket upgrades).
func extractCredentialForDetection(header http.Header, query url.Values) (auth.Credential, bool) {
	if v := query.Get("key"); v != "" {
		return auth.Credential{Method: signature.AuthQueryKey, Value: v}, true
	}
	if v := header.Get("x-goog-api-key"); v != "" {
		return auth.Credential{Method: signature.AuthGoogAPIKey, Value: v}, true
	}
	if v := header.Get("x-api-key"); v != "" {
		return auth.Credential{Method: signature.AuthAPIKey, Value: v}, true
	}
	if isBearer(header) {
		return auth.Credential{Method: signature.AuthBearer, Value: strings.TrimSpace(header.Get("Authorization")[len("Bearer "):])}, true
	}
	return auth.Credential{}, false
}
