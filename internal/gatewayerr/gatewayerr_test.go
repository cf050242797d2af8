package gatewayerr

import (
	"net/http"
	"testing"

	goerrors "errors"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindInvalidRequest))
	assert.Equal(t, 499, HTTPStatus(KindClientDisconnected))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(KindPollTimeout))
}

func TestIsRetryableAcrossCandidates(t *testing.T) {
	assert.True(t, IsRetryableAcrossCandidates(EmbeddedError("gemini", "429", "quota", 429)))
	assert.True(t, IsRetryableAcrossCandidates(ProviderNotAvailable("base_url misconfigured")))
	assert.False(t, IsRetryableAcrossCandidates(ClientDisconnected()))
	assert.False(t, IsRetryableAcrossCandidates(goerrors.New("plain")))
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := PollTimeout()
	assert.ErrorIs(t, err, New(KindPollTimeout, ""))
	assert.False(t, goerrors.Is(err, New(KindBillingIncomplete, "")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := goerrors.New("bad key")
	err := DecryptionError(cause)
	assert.Equal(t, KindDecryptionError, err.Kind)
	assert.ErrorContains(t, err, "bad key")
}
