// Package gatewayerr defines the gateway's sentinel error kinds (spec.md
// §4.12), each wrapping github.com/Laisky/errors/v2 the way the teacher's
// controller/relay layers already do, plus the HTTP status mapping used to
// surface them to clients.
package gatewayerr

import (
	stderrors "errors"
	"net/http"

	"github.com/Laisky/errors/v2"
)

// Kind identifies one of the gateway's well-known error classes.
type Kind string

const (
	KindInvalidRequest        Kind = "invalid_request"
	KindEmbeddedError         Kind = "embedded_error"
	KindProviderNotAvailable  Kind = "provider_not_available"
	KindClientDisconnected    Kind = "client_disconnected"
	KindPollPermanentError    Kind = "poll_permanent_error"
	KindPollTimeout           Kind = "poll_timeout"
	KindDecryptionError       Kind = "decryption_error"
	KindMissingProviderInfo   Kind = "missing_provider_info"
	KindMissingExternalTaskID Kind = "missing_external_task_id"
	KindBillingIncomplete     Kind = "billing_incomplete"
)

// Error is a gateway sentinel error: a Kind plus a human-readable message
// and, for some kinds, the upstream details needed to decide retry policy.
type Error struct {
	Kind     Kind
	Message  string
	Provider string
	Code     string
	Status   int
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is a gatewayerr of the same Kind, so callers
// can use errors.Is(err, gatewayerr.New(gatewayerr.KindPollTimeout, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a bare gatewayerr of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches kind/message to an underlying cause, preserving it for
// errors.Unwrap/errors.Is chains the way Laisky/errors.Wrap does.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.Wrap(cause, message)}
}

// InvalidRequest reports a syntactic or schema violation: 4xx, not retried.
func InvalidRequest(message string) *Error {
	return New(KindInvalidRequest, message)
}

// EmbeddedError reports an upstream 200 response carrying an error body;
// signals the scheduler to try the next candidate.
func EmbeddedError(provider, code, message string, status int) *Error {
	return &Error{Kind: KindEmbeddedError, Message: message, Provider: provider, Code: code, Status: status}
}

// ProviderNotAvailable reports an HTML body (misconfigured base URL) or a
// 5xx upstream response; retryable across candidates.
func ProviderNotAvailable(message string) *Error {
	return New(KindProviderNotAvailable, message)
}

// ClientDisconnected is terminal for the current request: status 499, no retry.
func ClientDisconnected() *Error {
	return New(KindClientDisconnected, "client_disconnected")
}

// PollPermanentError marks a video poll outcome as non-retryable.
func PollPermanentError(message string) *Error {
	return New(KindPollPermanentError, message)
}

// PollTimeout reports poll_count >= max_poll_count without terminality.
func PollTimeout() *Error {
	return New(KindPollTimeout, "poll_timeout")
}

// DecryptionError reports a credential decryption fault.
func DecryptionError(cause error) *Error {
	return Wrap(cause, KindDecryptionError, "decrypt upstream credential")
}

// MissingProviderInfo reports a task with no resolvable endpoint/key.
func MissingProviderInfo(message string) *Error {
	return New(KindMissingProviderInfo, message)
}

// MissingExternalTaskID reports an upstream submit response with no usable id.
func MissingExternalTaskID() *Error {
	return New(KindMissingExternalTaskID, "missing_external_task_id")
}

// BillingIncomplete reports missing required dimensions under strict mode.
func BillingIncomplete(message string) *Error {
	return New(KindBillingIncomplete, message)
}

// HTTPStatus maps a Kind to the HTTP status mapping of spec.md §4.12/§7.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindEmbeddedError, KindProviderNotAvailable:
		return http.StatusBadGateway
	case KindClientDisconnected:
		return 499
	case KindMissingProviderInfo, KindMissingExternalTaskID, KindDecryptionError:
		return http.StatusInternalServerError
	case KindPollTimeout, KindPollPermanentError:
		return http.StatusUnprocessableEntity
	case KindBillingIncomplete:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryableAcrossCandidates reports whether the scheduler should advance
// to the next candidate rather than surface the error to the client
// immediately, per spec.md §4.12's per-kind retry policy.
func IsRetryableAcrossCandidates(err error) bool {
	var gerr *Error
	if !stderrors.As(err, &gerr) {
		return false
	}
	switch gerr.Kind {
	case KindEmbeddedError, KindProviderNotAvailable:
		return true
	default:
		return false
	}
}
