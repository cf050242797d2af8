// Package convert implements the format conversion registry and the
// compatibility decision (spec.md §4.4), generalizing the teacher's
// per-adaptor request/response translation (relay/adaptor/{openai,
// anthropic,gemini,vertexai}) into a signature-keyed registry.
package convert

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/Laisky/errors/v2"

	"github.com/nexusgate/llmgateway/common/helper"
	"github.com/nexusgate/llmgateway/internal/signature"
)

// Usage carries the normalized token accounting extracted from a response
// or a completed stream, independent of the originating family's shape.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CachedTokens     int
	ReasoningTokens  int
	TotalTokens      int
}

// Normalizer is the per-family collaborator the registry dispatches to. One
// Normalizer instance handles all conversions where the given family is
// either the source or the destination.
type Normalizer interface {
	// ConvertRequest translates a chat/video request body from srcFamily's
	// wire shape into dstFamily's wire shape.
	ConvertRequest(body []byte, srcFamily, dstFamily signature.ApiFamily) ([]byte, error)

	// ConvertResponse translates a non-streaming response/poll body from
	// srcFamily's wire shape into dstFamily's wire shape.
	ConvertResponse(body []byte, srcFamily, dstFamily signature.ApiFamily) ([]byte, error)

	// ConvertStreamLine translates one already-parsed SSE data line from
	// srcFamily's wire shape into dstFamily's wire shape. A nil returned
	// slice with a nil error means "drop this line" (e.g. a provider
	// ping/comment event with no client-visible equivalent).
	ConvertStreamLine(line []byte, srcFamily, dstFamily signature.ApiFamily) ([]byte, error)

	// ExtractUsage pulls normalized usage out of a response or final
	// stream chunk in srcFamily's shape.
	ExtractUsage(body []byte, srcFamily signature.ApiFamily) (Usage, bool)

	// ExtractText pulls the plain-text completion content out of a
	// response or final stream chunk, for logging/moderation purposes.
	ExtractText(body []byte, srcFamily signature.ApiFamily) (string, bool)

	// IsErrorResponse reports whether body (already known to parse as a
	// JSON object) represents an upstream error, per srcFamily's shape.
	IsErrorResponse(body map[string]any, srcFamily signature.ApiFamily) (code string, message string, status int, isErr bool)
}

// Registry holds one Normalizer per family. A single Normalizer may be
// registered under more than one family key if it handles conversions on
// both sides (this gateway registers one per family, matching the
// teacher's per-adaptor layout).
type Registry struct {
	normalizers map[signature.ApiFamily]Normalizer
}

// NewRegistry builds an empty registry; call Register for each family.
func NewRegistry() *Registry {
	return &Registry{normalizers: make(map[signature.ApiFamily]Normalizer)}
}

// Register installs n as the normalizer responsible for family.
func (r *Registry) Register(family signature.ApiFamily, n Normalizer) {
	r.normalizers[family] = n
}

var errNoNormalizer = errors.New("no normalizer registered for family")

// normalizerFor returns the Normalizer registered for family, with no
// fallback. Each normalizer parses bodies in its own family's shape, so
// conversions look up the source family.
func (r *Registry) normalizerFor(family signature.ApiFamily) (Normalizer, error) {
	n, ok := r.normalizers[family]
	if !ok {
		return nil, errors.Wrapf(errNoNormalizer, "family %q", family)
	}
	return n, nil
}

// ConvertRequest converts a request body between families via the
// source family's normalizer, which parses its own shape and writes dst's.
func (r *Registry) ConvertRequest(body []byte, src, dst signature.ApiFamily) ([]byte, error) {
	if src == dst {
		return body, nil
	}
	n, err := r.normalizerFor(src)
	if err != nil {
		return nil, err
	}
	out, err := n.ConvertRequest(body, src, dst)
	if err != nil {
		return nil, errors.Wrapf(err, "convert request %s->%s", src, dst)
	}
	return out, nil
}

// ConvertResponse converts a non-streaming response body between families
// via the source family's normalizer (the side that actually knows how to
// read its own upstream shape).
func (r *Registry) ConvertResponse(body []byte, src, dst signature.ApiFamily) ([]byte, error) {
	if src == dst {
		return body, nil
	}
	n, err := r.normalizerFor(src)
	if err != nil {
		return nil, err
	}
	out, err := n.ConvertResponse(body, src, dst)
	if err != nil {
		return nil, errors.Wrapf(err, "convert response %s->%s", src, dst)
	}
	return out, nil
}

// ConvertStreamLine converts one SSE data line between families.
func (r *Registry) ConvertStreamLine(line []byte, src, dst signature.ApiFamily) ([]byte, error) {
	if src == dst {
		return line, nil
	}
	n, err := r.normalizerFor(src)
	if err != nil {
		return nil, err
	}
	return n.ConvertStreamLine(line, src, dst)
}

// ExtractUsage delegates to the family's own normalizer.
func (r *Registry) ExtractUsage(body []byte, family signature.ApiFamily) (Usage, bool) {
	n, err := r.normalizerFor(family)
	if err != nil {
		return Usage{}, false
	}
	return n.ExtractUsage(body, family)
}

// ExtractText delegates to the family's own normalizer.
func (r *Registry) ExtractText(body []byte, family signature.ApiFamily) (string, bool) {
	n, err := r.normalizerFor(family)
	if err != nil {
		return "", false
	}
	return n.ExtractText(body, family)
}

// IsErrorResponse delegates to the family's own normalizer.
func (r *Registry) IsErrorResponse(body map[string]any, family signature.ApiFamily) (string, string, int, bool) {
	n, err := r.normalizerFor(family)
	if err != nil {
		return "", "", 0, false
	}
	return n.IsErrorResponse(body, family)
}

// SupportsFullConversion reports whether the registry can perform a
// complete request+response (and, if streaming, stream-line) conversion
// between src and dst, per spec.md §4.4 step 5.
func (r *Registry) SupportsFullConversion(src, dst signature.ApiFamily, streaming bool) bool {
	if _, ok := r.normalizers[src]; !ok {
		return false
	}
	if _, ok := r.normalizers[dst]; !ok {
		return false
	}
	// Both normalizers exist; the registry always implements the stream
	// variant alongside the non-stream one, so no separate capability
	// flag is needed here beyond family presence.
	_ = streaming
	return true
}

// FormatAcceptanceConfig mirrors the persisted provider_endpoints JSON
// column of the same name (spec.md §6).
type FormatAcceptanceConfig struct {
	Enabled          bool                  `json:"enabled"`
	AcceptFormats    []string              `json:"accept_formats"`
	RejectFormats    []string              `json:"reject_formats"`
	StreamConversion bool                  `json:"stream_conversion"`
}

// EndpointFormatInfo is the minimal view of a candidate provider endpoint
// the compatibility decision needs.
type EndpointFormatInfo struct {
	DataFormatID string
	Acceptance   FormatAcceptanceConfig
}

// CompatibilityResult is the three-valued verdict of is_format_compatible.
type CompatibilityResult struct {
	IsCompatible   bool
	NeedsConversion bool
	SkipReason     string
}

// Compatibility implements the ordered switch of spec.md §4.4.
type Compatibility struct {
	Registry                *Registry
	GlobalConversionEnabled bool
}

// Check decides whether clientSig can reach an endpoint whose own
// signature is providerSig, with providerEndpoint carrying its format
// acceptance config. callerOverride skips the endpoint-config gate (step
// 3) when the caller explicitly pinned this endpoint.
func (c Compatibility) Check(clientSig, providerSig signature.Signature, endpoint EndpointFormatInfo, streaming, callerOverride bool) CompatibilityResult {
	// Step 1: passthrough.
	if clientSig == providerSig {
		return CompatibilityResult{IsCompatible: true, NeedsConversion: false}
	}

	// Step 2: global conversion flag.
	if !c.GlobalConversionEnabled {
		return CompatibilityResult{IsCompatible: false, NeedsConversion: false, SkipReason: "conversion disabled"}
	}

	// Step 3: endpoint-config gate, unless caller pinned this endpoint.
	if !callerOverride {
		if !endpoint.Acceptance.Enabled {
			return CompatibilityResult{IsCompatible: false, SkipReason: "endpoint conversion disabled"}
		}
		clientKey := clientSig.Key()
		for _, rejected := range endpoint.Acceptance.RejectFormats {
			if rejected == clientKey {
				return CompatibilityResult{IsCompatible: false, SkipReason: "format rejected"}
			}
		}
		if len(endpoint.Acceptance.AcceptFormats) > 0 {
			accepted := false
			for _, a := range endpoint.Acceptance.AcceptFormats {
				if a == clientKey {
					accepted = true
					break
				}
			}
			if !accepted {
				return CompatibilityResult{IsCompatible: false, SkipReason: "format not accepted"}
			}
		}
		if streaming && !endpoint.Acceptance.StreamConversion {
			return CompatibilityResult{IsCompatible: false, SkipReason: "stream conversion disabled"}
		}
	}

	// Step 4: shared data_format_id means the wire bytes are identical
	// even though the logical signatures differ (e.g. two openai:chat
	// compatible providers exposed under different signatures).
	clientDataFormatID := signature.MakeSignatureKey(clientSig.Family, clientSig.Kind)
	if clientDataFormatID == endpoint.DataFormatID {
		return CompatibilityResult{IsCompatible: true, NeedsConversion: false}
	}

	// Step 5: require a full registry conversion.
	if c.Registry == nil || !c.Registry.SupportsFullConversion(clientSig.Family, providerSig.Family, streaming) {
		return CompatibilityResult{IsCompatible: false, SkipReason: "no conversion path"}
	}
	return CompatibilityResult{IsCompatible: true, NeedsConversion: true}
}

// ReadJSONLines is a small helper shared by normalizers: it scans r line by
// line, skipping blank lines, and hands each decoded JSON object to fn.
// Lines that fail to parse as a JSON object are passed through fn as nil
// with the raw bytes so callers can still forward non-JSON SSE control
// lines (e.g. "[DONE]").
func ReadJSONLines(r io.Reader, fn func(raw []byte, obj map[string]any)) error {
	scanner := bufio.NewScanner(r)
	helper.ConfigureScannerBuffer(scanner)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			fn(line, nil)
			continue
		}
		fn(line, obj)
	}
	return scanner.Err()
}
