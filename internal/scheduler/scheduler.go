// Package scheduler implements the cache-aware candidate builder and
// attempt/failover dispatch loop of spec.md §4.5, generalizing the
// teacher's channel-selection logic in middleware/distributor.go
// (stable priority ordering via slices.SortStableFunc, group/endpoint
// filtering, exclude-and-retry-lower-priority fallback) from a single
// "channel" concept to the gateway's (provider, endpoint, key) triple.
package scheduler

import (
	"context"
	stderrors "errors"
	"slices"

	"github.com/Laisky/errors/v2"

	"github.com/nexusgate/llmgateway/internal/convert"
	"github.com/nexusgate/llmgateway/internal/signature"
)

// ProviderKey is the minimal view of a provider_api_keys row the scheduler
// needs to rank and filter candidates.
type ProviderKey struct {
	ID               int64
	APIFormats       []string
	InternalPriority int
	Enabled          bool
}

// ProviderEndpoint is the minimal view of a provider_endpoints row.
type ProviderEndpoint struct {
	ID         int64
	Signature  signature.Signature
	Acceptance convert.FormatAcceptanceConfig
	Enabled    bool
}

// DataFormatID returns the endpoint's own signature key, used by the
// compatibility decision's shared-format passthrough step.
func (e ProviderEndpoint) DataFormatID() string {
	return e.Signature.Key()
}

// Provider is the minimal view of a providers row: one provider has N
// endpoints and M keys (spec.md §5).
type Provider struct {
	ID        int64
	Endpoints []ProviderEndpoint
	Keys      []ProviderKey
}

// Candidate is a specific (provider, endpoint, key) tuple selected at
// dispatch, per spec.md §4.5.
type Candidate struct {
	ProviderID        int64
	EndpointID        int64
	KeyID             int64
	NeedsConversion   bool
	ProviderAPIFormat string
	AffinityScore     int
}

// ModelSupportChecker reports whether providerID supports model.
type ModelSupportChecker func(providerID int64, model string) bool

// KeyAvailabilityChecker reports whether key is currently usable (not
// rate-limited, not suspended).
type KeyAvailabilityChecker func(key ProviderKey) bool

// BuildCandidates implements spec.md §4.5's build_candidates: for each
// provider, filter inactive keys/endpoints, check model support and key
// availability, run the compatibility decision per endpoint, and return
// candidates in stable priority order.
func BuildCandidates(
	providers []Provider,
	clientSig signature.Signature,
	model string,
	affinityKey string,
	globalConversionEnabled bool,
	streaming bool,
	modelSupported ModelSupportChecker,
	keyAvailable KeyAvailabilityChecker,
) []Candidate {
	compat := convert.Compatibility{Registry: convert.DefaultRegistry(), GlobalConversionEnabled: globalConversionEnabled}

	var candidates []Candidate
	for _, p := range providers {
		if modelSupported != nil && !modelSupported(p.ID, model) {
			continue
		}

		for _, endpoint := range p.Endpoints {
			if !endpoint.Enabled {
				continue
			}

			for _, key := range p.Keys {
				if !key.Enabled {
					continue
				}
				if keyAvailable != nil && !keyAvailable(key) {
					continue
				}
				if !keySupportsFormat(key, endpoint.Signature) {
					continue
				}

				result := compat.Check(clientSig, endpoint.Signature, convert.EndpointFormatInfo{
					DataFormatID: endpoint.DataFormatID(),
					Acceptance:   endpoint.Acceptance,
				}, streaming, false)
				if !result.IsCompatible {
					continue
				}

				candidates = append(candidates, Candidate{
					ProviderID:        p.ID,
					EndpointID:        endpoint.ID,
					KeyID:             key.ID,
					NeedsConversion:   result.NeedsConversion,
					ProviderAPIFormat: endpoint.Signature.Key(),
					AffinityScore:     affinityScore(endpoint, affinityKey),
				})
			}
		}
	}

	orderCandidates(candidates)
	return candidates
}

func keySupportsFormat(key ProviderKey, endpointSig signature.Signature) bool {
	if len(key.APIFormats) == 0 {
		return true
	}
	target := endpointSig.Key()
	return slices.Contains(key.APIFormats, target)
}

// affinityScore returns 1 when the endpoint matches the caller's sticky
// routing hint, 0 otherwise; higher sorts first.
func affinityScore(endpoint ProviderEndpoint, affinityKey string) int {
	if affinityKey == "" {
		return 0
	}
	if affinityKey == endpoint.DataFormatID() {
		return 1
	}
	return 0
}

// orderCandidates applies the first two tiers of spec.md §4.5's stable
// ordering: exact-format matches before convertible ones, then by
// affinity hit. The third tier (key internal_priority) is layered in by
// OrderCandidatesByPriority once the caller has the key table at hand.
func orderCandidates(candidates []Candidate) {
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		if a.NeedsConversion != b.NeedsConversion {
			if !a.NeedsConversion {
				return -1
			}
			return 1
		}
		if a.AffinityScore != b.AffinityScore {
			return b.AffinityScore - a.AffinityScore
		}
		if a.EndpointID != b.EndpointID {
			if a.EndpointID < b.EndpointID {
				return -1
			}
			return 1
		}
		return 0
	})
}

// OrderCandidatesByPriority re-sorts candidates using each key's
// internal_priority, the third tie-break named in spec.md §4.5, when the
// caller has the key priority table at hand (BuildCandidates already
// applies format-group and affinity ordering; this layers priority in
// before the final endpoint-id tie-break).
func OrderCandidatesByPriority(candidates []Candidate, priorityByKeyID map[int64]int) {
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		if a.NeedsConversion != b.NeedsConversion {
			if !a.NeedsConversion {
				return -1
			}
			return 1
		}
		if a.AffinityScore != b.AffinityScore {
			return b.AffinityScore - a.AffinityScore
		}
		pa, pb := priorityByKeyID[a.KeyID], priorityByKeyID[b.KeyID]
		if pa != pb {
			return pb - pa
		}
		if a.EndpointID != b.EndpointID {
			if a.EndpointID < b.EndpointID {
				return -1
			}
			return 1
		}
		return 0
	})
}

// RetryableError marks a dispatch attempt failure as eligible for failover
// to the next candidate, versus a terminal error that should abort the
// whole dispatch loop.
type RetryableError struct {
	Cause error
}

func (e *RetryableError) Error() string { return e.Cause.Error() }
func (e *RetryableError) Unwrap() error { return e.Cause }

// Retryable wraps err so Dispatch treats it as failover-eligible.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Cause: err}
}

func isRetryable(err error) bool {
	var re *RetryableError
	return stderrors.As(err, &re)
}

// DefaultMaxCandidates is spec.md §4.5's default max_candidates.
const DefaultMaxCandidates = 10

// AttemptFunc executes one dispatch attempt against a candidate. Errors
// must be wrapped with Retryable to trigger failover to the next
// candidate; any other error aborts the dispatch loop immediately.
type AttemptFunc func(ctx context.Context, candidate Candidate) error

// Dispatch hands candidates to attempt, in order, calling resetForRetry
// before each attempt per spec.md §4.5 ("each attempt calls
// ctx.reset_for_retry() first"), stopping at the first success, the first
// non-retryable error, or after maxCandidates attempts — whichever comes
// first.
func Dispatch(ctx context.Context, candidates []Candidate, maxCandidates int, resetForRetry func(), attempt AttemptFunc) error {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	if len(candidates) == 0 {
		return errors.New("no candidates available")
	}

	var lastErr error
	tried := 0
	for _, candidate := range candidates {
		if tried >= maxCandidates {
			break
		}
		tried++

		if resetForRetry != nil {
			resetForRetry()
		}

		err := attempt(ctx, candidate)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("no candidates available")
	}
	return errors.Wrapf(lastErr, "exhausted %d candidate(s)", tried)
}
