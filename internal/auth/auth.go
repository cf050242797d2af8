// Package auth implements per-AuthMethod credential extraction (from an
// inbound client request) and upstream header construction (from a
// resolved credential).
//
// Grounded on the teacher's enum-keyed-handler style (relay/channeltype's
// static lookup tables) generalized to auth methods per spec.md §4.2/§9:
// "the auth handler collection is a map of AuthMethod -> handler".
package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/nexusgate/llmgateway/internal/signature"
)

// Credential is the client-supplied (or upstream-resolved) secret value,
// tagged with the method it was extracted under.
type Credential struct {
	Method signature.AuthMethod
	Value  string
}

// Handler extracts a client credential from an inbound request and builds
// the upstream header map for a resolved credential.
type Handler interface {
	ExtractCredential(r *http.Request) (Credential, bool)
	BuildUpstreamHeaders(cred Credential) http.Header
}

// Registry maps AuthMethod to its Handler. Built once; safe for concurrent reads.
type Registry map[signature.AuthMethod]Handler

// DefaultRegistry returns the gateway's built-in AuthMethod -> Handler map.
func DefaultRegistry() Registry {
	return Registry{
		signature.AuthBearer:     bearerHandler{},
		signature.AuthAPIKey:     apiKeyHandler{},
		signature.AuthGoogAPIKey: googAPIKeyHandler{},
		signature.AuthOAuth2:     oauth2Handler{},
		signature.AuthQueryKey:   queryKeyHandler{},
	}
}

// ExtractClientCredential applies the priority order from spec.md §4.2:
// query_key > goog_api_key header > api_key header > bearer.
func ExtractClientCredential(r *http.Request) (Credential, bool) {
	if cred, ok := (queryKeyHandler{}).ExtractCredential(r); ok {
		return cred, true
	}
	if cred, ok := (googAPIKeyHandler{}).ExtractCredential(r); ok {
		return cred, true
	}
	if cred, ok := (apiKeyHandler{}).ExtractCredential(r); ok {
		return cred, true
	}
	if cred, ok := (bearerHandler{}).ExtractCredential(r); ok {
		return cred, true
	}
	return Credential{}, false
}

type bearerHandler struct{}

func (bearerHandler) ExtractCredential(r *http.Request) (Credential, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return Credential{Method: signature.AuthBearer, Value: strings.TrimSpace(h[len(prefix):])}, true
	}
	return Credential{}, false
}

func (bearerHandler) BuildUpstreamHeaders(cred Credential) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+cred.Value)
	return h
}

type apiKeyHandler struct{}

func (apiKeyHandler) ExtractCredential(r *http.Request) (Credential, bool) {
	if v := r.Header.Get("x-api-key"); v != "" {
		return Credential{Method: signature.AuthAPIKey, Value: v}, true
	}
	return Credential{}, false
}

func (apiKeyHandler) BuildUpstreamHeaders(cred Credential) http.Header {
	h := http.Header{}
	h.Set("x-api-key", cred.Value)
	return h
}

type googAPIKeyHandler struct{}

func (googAPIKeyHandler) ExtractCredential(r *http.Request) (Credential, bool) {
	if v := r.Header.Get("x-goog-api-key"); v != "" {
		return Credential{Method: signature.AuthGoogAPIKey, Value: v}, true
	}
	return Credential{}, false
}

func (googAPIKeyHandler) BuildUpstreamHeaders(cred Credential) http.Header {
	h := http.Header{}
	h.Set("x-goog-api-key", cred.Value)
	return h
}

// oauth2Handler reuses bearer extraction/injection on both client and
// upstream sides (spec.md §4.2: "oauth2 reuses bearer on the upstream").
type oauth2Handler struct{ bearerHandler }

type queryKeyHandler struct{}

func (queryKeyHandler) ExtractCredential(r *http.Request) (Credential, bool) {
	q := r.URL.Query()
	if v := q.Get("key"); v != "" {
		return Credential{Method: signature.AuthQueryKey, Value: v}, true
	}
	return Credential{}, false
}

// BuildUpstreamHeaders emits x-goog-api-key, per spec.md §4.2:
// "query_key upstream emits x-goog-api-key".
func (queryKeyHandler) BuildUpstreamHeaders(cred Credential) http.Header {
	h := http.Header{}
	h.Set("x-goog-api-key", cred.Value)
	return h
}

// AppendQueryKey builds a URL with ?key=<value> appended, a convenience for
// callers that need the query-string form rather than a header.
func AppendQueryKey(rawURL, key string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "key=" + url.QueryEscape(key)
}
