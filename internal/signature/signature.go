// Package signature implements the canonical `family:kind` endpoint
// signature system: parsing, normalization, and static endpoint-definition
// lookup.
//
// Grounded on relay/channeltype/endpoints.go's static per-endpoint metadata
// table, generalized from the teacher's single-family "relay mode" enum
// into the gateway's two-axis (family, kind) signature.
package signature

import (
	"strings"

	"github.com/Laisky/errors/v2"
)

// ApiFamily identifies the upstream wire-format family a request/endpoint speaks.
type ApiFamily string

// EndpointKind identifies the operation shape within a family.
type EndpointKind string

const (
	FamilyOpenAI ApiFamily = "openai"
	FamilyClaude ApiFamily = "claude"
	FamilyGemini ApiFamily = "gemini"

	KindChat  EndpointKind = "chat"
	KindCLI   EndpointKind = "cli"
	KindVideo EndpointKind = "video"
	KindImage EndpointKind = "image"
)

var validFamilies = map[ApiFamily]bool{
	FamilyOpenAI: true,
	FamilyClaude: true,
	FamilyGemini: true,
}

var validKinds = map[EndpointKind]bool{
	KindChat:  true,
	KindCLI:   true,
	KindVideo: true,
	KindImage: true,
}

// Signature is a value-type endpoint identifier: (family, kind).
type Signature struct {
	Family ApiFamily
	Kind   EndpointKind
}

// Key returns the canonical lowercase "family:kind" string.
func (s Signature) Key() string {
	return string(s.Family) + ":" + string(s.Kind)
}

// DataFormatID is the identity used for passthrough comparison; two
// signatures with the same DataFormatID can be relayed byte-for-byte.
func (s Signature) DataFormatID() string { return s.Key() }

// MakeSignatureKey builds the canonical key for a (family, kind) pair.
func MakeSignatureKey(family ApiFamily, kind EndpointKind) string {
	return Signature{Family: ApiFamily(strings.ToLower(string(family))), Kind: EndpointKind(strings.ToLower(string(kind)))}.Key()
}

// ParseSignatureKey parses "family:kind" (case-insensitive, whitespace
// trimmed) into a Signature. Returns invalid_signature on any malformed or
// unknown input.
func ParseSignatureKey(raw string) (Signature, error) {
	trimmed := strings.TrimSpace(raw)
	idx := strings.Index(trimmed, ":")
	if idx < 0 {
		return Signature{}, errInvalidSignature(raw)
	}

	family := ApiFamily(strings.ToLower(strings.TrimSpace(trimmed[:idx])))
	kind := EndpointKind(strings.ToLower(strings.TrimSpace(trimmed[idx+1:])))
	if family == "" || kind == "" {
		return Signature{}, errInvalidSignature(raw)
	}
	if !validFamilies[family] {
		return Signature{}, errInvalidSignature(raw)
	}
	if !validKinds[kind] {
		return Signature{}, errInvalidSignature(raw)
	}

	return Signature{Family: family, Kind: kind}, nil
}

// NormalizeSignatureKey parses and re-emits a signature string in canonical form.
func NormalizeSignatureKey(raw string) (string, error) {
	sig, err := ParseSignatureKey(raw)
	if err != nil {
		return "", err
	}
	return sig.Key(), nil
}

// CanPassthroughEndpoint reports whether a client signature can reach a
// provider endpoint without any conversion, i.e. both share a DataFormatID.
func CanPassthroughEndpoint(client, provider Signature) bool {
	return client.DataFormatID() == provider.DataFormatID()
}

func errInvalidSignature(raw string) error {
	return errors.Errorf("invalid_signature: %q is not a valid family:kind endpoint signature", raw)
}
